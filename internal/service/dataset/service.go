package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/pkg/converters"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/storage"
)

const stagingPrefix = "staging/"

var (
	// ErrUnsupportedFileType is returned for uploads that are not CSV.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrFileTooLarge is returned for uploads above MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
)

// ServiceConfig 数据集服务配置
type ServiceConfig struct {
	MaxFileSize      int64
	AllowedTypes     []string
	MaxConcurrent    int
	StagingRetention time.Duration
}

// UploadRequest 上传请求
type UploadRequest struct {
	UserID    string
	DatasetID string
	Filename  string
	Reader    io.Reader
}

// UploadResult describes a stored dataset and its base version.
type UploadResult struct {
	DatasetID   string                 `json:"dataset_id"`
	Filename    string                 `json:"filename"`
	Version     *models.DatasetVersion `json:"version"`
	Suggestions []string               `json:"suggestions,omitempty"`
}

// Suggester proposes transformations for freshly uploaded data.
type Suggester interface {
	SuggestTransformations(df *dataframe.DataFrame) []string
}

// Service stores datasets in blob storage and is the frame load/save
// boundary for the transformation services.
type Service struct {
	storage   storage.Storage
	versions  *version.Manager
	csv       *converters.CSVConverter
	suggester Suggester
	logger    logger.Logger
	config    *ServiceConfig
	now       func() time.Time
}

func NewService(
	store storage.Storage,
	versions *version.Manager,
	suggester Suggester,
	log logger.Logger,
	cfg *ServiceConfig,
) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{
			MaxFileSize:      100 * 1024 * 1024, // 100MB
			AllowedTypes:     []string{".csv"},
			MaxConcurrent:    5,
			StagingRetention: 24 * time.Hour,
		}
	}
	return &Service{
		storage:   store,
		versions:  versions,
		csv:       converters.NewCSVConverter(),
		suggester: suggester,
		logger:    log,
		config:    cfg,
		now:       time.Now,
	}
}

// Upload parses a CSV file, stores the raw bytes and creates the dataset's
// base version.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := s.validateFile(req.Filename); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(req.Reader, s.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.config.MaxFileSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.config.MaxFileSize)
	}

	df, err := s.csv.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("Rejected upload",
			logger.String("filename", req.Filename),
			logger.Error(err),
		)
		return nil, err
	}

	datasetID := req.DatasetID
	if datasetID == "" {
		datasetID = uuid.New().String()
	}
	if req.DatasetID != "" {
		if existing, err := s.versions.ListVersions(ctx, datasetID); err != nil {
			return nil, err
		} else if len(existing) > 0 {
			return nil, &version.IntegrityError{DatasetID: datasetID, Reason: "dataset already has a base version"}
		}
	}

	// every upload gets its own key; a stored base file is never overwritten
	location := path.Join("datasets", datasetID, "raw", uuid.New().String(), filepath.Base(req.Filename))
	key, err := s.storage.Store(ctx, bytes.NewReader(data), location)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	v, err := s.versions.CreateBaseVersion(ctx, version.BaseVersionRequest{
		DatasetID: datasetID,
		UserID:    req.UserID,
		FilePath:  key,
		Frame:     df,
	})
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	result := &UploadResult{DatasetID: datasetID, Filename: req.Filename, Version: v}
	if s.suggester != nil {
		result.Suggestions = s.suggester.SuggestTransformations(df)
	}

	s.logger.Info("Dataset uploaded",
		logger.String("datasetId", datasetID),
		logger.String("filename", req.Filename),
		logger.Int("rows", df.NumRows()),
		logger.Int("columns", df.NumColumns()),
	)
	return result, nil
}

// UploadBatch uploads each file as its own dataset, concurrently. Results
// for files that succeeded are returned alongside the first error.
func (s *Service) UploadBatch(ctx context.Context, userID string, files []*multipart.FileHeader) ([]*UploadResult, error) {
	results := make([]*UploadResult, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}
	for _, header := range files {
		header := header
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			result, err := s.Upload(ctx, UploadRequest{UserID: userID, Filename: header.Filename, Reader: file})
			if err != nil {
				return fmt.Errorf("failed to upload file %s: %w", header.Filename, err)
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// LoadFrame reads and parses the CSV object at location.
func (s *Service) LoadFrame(ctx context.Context, location string) (*dataframe.DataFrame, error) {
	reader, err := s.storage.Get(ctx, location)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	df, err := s.csv.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", location, err)
	}
	return df, nil
}

// SaveFrame writes df as CSV to location. It returns the stored key and the
// frame as it reads back from that key, which can differ from df in dtypes.
func (s *Service) SaveFrame(ctx context.Context, df *dataframe.DataFrame, location string) (string, *dataframe.DataFrame, error) {
	var buf bytes.Buffer
	if err := s.csv.Encode(&buf, df); err != nil {
		return "", nil, err
	}
	stored := df
	if df.NumColumns() > 0 {
		var err error
		if stored, err = s.csv.Decode(bytes.NewReader(buf.Bytes())); err != nil {
			return "", nil, fmt.Errorf("failed to read back %s: %w", location, err)
		}
	}
	key, err := s.storage.Store(ctx, &buf, location)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store %s: %w", location, err)
	}
	return key, stored, nil
}

// DeleteFrame removes the object at location. A missing object is not an
// error.
func (s *Service) DeleteFrame(ctx context.Context, location string) error {
	if err := s.storage.Delete(ctx, location); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", location, err)
	}
	return nil
}

// discard removes a blob written for a request that then failed.
func (s *Service) discard(ctx context.Context, key string) {
	if err := s.DeleteFrame(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("Failed to remove orphaned file",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}

// CleanupStaging removes uncommitted outputs older than the retention.
func (s *Service) CleanupStaging(ctx context.Context) (int, error) {
	threshold := s.now().Add(-s.config.StagingRetention)
	removed, err := s.storage.CleanupBefore(ctx, stagingPrefix, threshold)
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed staging cleanup",
		logger.Time("threshold", threshold),
		logger.Int("removed", removed),
	)
	return removed, nil
}

// validateFile 验证文件类型
func (s *Service) validateFile(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, t := range s.config.AllowedTypes {
		if t == ext {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
}
