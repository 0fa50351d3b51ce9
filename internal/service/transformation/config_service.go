package transformation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/engine"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/pkg/docstore"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// CollectionConfigs is the document collection holding configs.
const CollectionConfigs = "transformation_configs"

var (
	// ErrConfigNotFound is returned when a config id does not exist.
	ErrConfigNotFound = errors.New("transformation config not found")
	// ErrConfigExists is returned when creating a config with a taken id.
	ErrConfigExists = errors.New("transformation config already exists")
	// ErrEmptyPipeline is returned when running a config without steps.
	ErrEmptyPipeline = errors.New("no transformation steps to apply")
	// ErrDatasetRequired is returned when a config names no dataset.
	ErrDatasetRequired = errors.New("dataset id is required")
)

// FrameStore loads and saves materialized frames at storage locations.
// SaveFrame returns the frame as it will be loaded again.
type FrameStore interface {
	LoadFrame(ctx context.Context, location string) (*dataframe.DataFrame, error)
	SaveFrame(ctx context.Context, df *dataframe.DataFrame, location string) (string, *dataframe.DataFrame, error)
	DeleteFrame(ctx context.Context, location string) error
}

// EngineFactory returns a fresh engine; history is per instance.
type EngineFactory func() *engine.Engine

// CreateConfigRequest 创建配置请求
type CreateConfigRequest struct {
	ConfigID        string                      `json:"config_id,omitempty"`
	UserID          string                      `json:"-"`
	DatasetID       string                      `json:"dataset_id" binding:"required"`
	SourceVersionID string                      `json:"source_version_id,omitempty"`
	Steps           []models.TransformationStep `json:"transformations,omitempty"`
}

// ConfigService manages the lifecycle of transformation configs.
type ConfigService struct {
	configs   *docstore.Collection[models.TransformationConfig]
	registry  *transform.Registry
	versions  *version.Manager
	frames    FrameStore
	newEngine EngineFactory
	logger    logger.Logger
	now       func() time.Time
}

func NewConfigService(
	store docstore.Store,
	registry *transform.Registry,
	versions *version.Manager,
	frames FrameStore,
	newEngine EngineFactory,
	log logger.Logger,
) *ConfigService {
	return &ConfigService{
		configs: docstore.NewCollection(store, CollectionConfigs, func(c *models.TransformationConfig) (string, string) {
			return c.ID, c.DatasetID
		}),
		registry:  registry,
		versions:  versions,
		frames:    frames,
		newEngine: newEngine,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new, unapplied config. Initial steps must have valid
// parameters; column references are checked later against data.
func (s *ConfigService) Create(ctx context.Context, req CreateConfigRequest) (*models.TransformationConfig, error) {
	if req.DatasetID == "" {
		return nil, ErrDatasetRequired
	}
	for _, step := range req.Steps {
		if _, err := s.registry.Build(step); err != nil {
			return nil, err
		}
	}

	now := s.now()
	cfg := &models.TransformationConfig{
		ID:              req.ConfigID,
		UserID:          req.UserID,
		DatasetID:       req.DatasetID,
		SourceVersionID: req.SourceVersionID,
		Steps:           append([]models.TransformationStep{}, req.Steps...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	if err := s.configs.Insert(ctx, cfg); err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrConfigExists, cfg.ID)
		}
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	s.logger.Info("Transformation config created",
		logger.String("configId", cfg.ID),
		logger.String("datasetId", cfg.DatasetID),
		logger.String("userId", cfg.UserID),
		logger.Int("steps", len(cfg.Steps)),
	)
	return cfg, nil
}

// Get loads one config.
func (s *ConfigService) Get(ctx context.Context, configID string) (*models.TransformationConfig, error) {
	cfg, err := s.configs.FindOne(ctx, configID)
	if err != nil {
		return nil, s.notFound(configID, err)
	}
	return cfg, nil
}

// ListByDataset returns the configs of a dataset.
func (s *ConfigService) ListByDataset(ctx context.Context, datasetID string) ([]*models.TransformationConfig, error) {
	cfgs, err := s.configs.Find(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	return cfgs, nil
}

// AddStep appends a step. Existing steps are not re-validated.
func (s *ConfigService) AddStep(ctx context.Context, configID string, step models.TransformationStep) (*models.TransformationConfig, error) {
	if _, err := s.registry.Build(step); err != nil {
		return nil, err
	}
	cfg, err := s.mutate(ctx, configID, func(c *models.TransformationConfig) {
		c.Steps = append(c.Steps, step)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transformation step added",
		logger.String("configId", configID),
		logger.String("type", string(step.Type)),
		logger.Int("position", len(cfg.Steps)-1),
	)
	return cfg, nil
}

// Validate runs every step in order against the config's source data, each
// against the state left by the steps before it, and stores the outcome.
func (s *ConfigService) Validate(ctx context.Context, configID string) (*models.ValidationSummary, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	_, df, err := s.sourceFrame(ctx, cfg)
	if err != nil {
		return nil, err
	}

	summary := s.newEngine().ValidatePipeline(ctx, df, cfg.Steps)
	if _, err := s.mutate(ctx, configID, func(c *models.TransformationConfig) {
		c.LastValidation = summary
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Transformation config validated",
		logger.String("configId", configID),
		logger.Bool("valid", summary.IsValid),
		logger.Int("steps", len(cfg.Steps)),
	)
	return summary, nil
}

// MarkApplied records the output location. Re-applying overwrites it.
func (s *ConfigService) MarkApplied(ctx context.Context, configID, filePath string) (*models.TransformationConfig, error) {
	return s.mutate(ctx, configID, func(c *models.TransformationConfig) {
		at := s.now()
		c.IsApplied = true
		c.CurrentFilePath = filePath
		c.AppliedAt = &at
	})
}

// Clear empties the step list and resets the applied state. Lineage is kept.
func (s *ConfigService) Clear(ctx context.Context, configID string) (*models.TransformationConfig, error) {
	cfg, err := s.mutate(ctx, configID, func(c *models.TransformationConfig) {
		c.Steps = []models.TransformationStep{}
		c.IsApplied = false
		c.AppliedAt = nil
		c.LastValidation = nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Transformation config cleared", logger.String("configId", configID))
	return cfg, nil
}

// Delete removes the config. Versions and lineage are left untouched.
func (s *ConfigService) Delete(ctx context.Context, configID string) error {
	if err := s.configs.Delete(ctx, configID); err != nil {
		return s.notFound(configID, err)
	}
	s.logger.Info("Transformation config deleted", logger.String("configId", configID))
	return nil
}

// mutate applies fn atomically and bumps the revision.
func (s *ConfigService) mutate(ctx context.Context, configID string, fn func(*models.TransformationConfig)) (*models.TransformationConfig, error) {
	cfg, err := s.configs.Update(ctx, configID, func(c *models.TransformationConfig) error {
		fn(c)
		c.Revision++
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, s.notFound(configID, err)
	}
	return cfg, nil
}

// sourceFrame resolves the version a config runs from: its pinned source or
// the latest version of the dataset.
func (s *ConfigService) sourceFrame(ctx context.Context, cfg *models.TransformationConfig) (*models.DatasetVersion, *dataframe.DataFrame, error) {
	var v *models.DatasetVersion
	var err error
	if cfg.SourceVersionID != "" {
		v, err = s.versions.GetVersion(ctx, cfg.SourceVersionID)
	} else {
		v, err = s.versions.LatestVersion(ctx, cfg.DatasetID)
	}
	if err != nil {
		return nil, nil, err
	}
	df, err := s.frames.LoadFrame(ctx, v.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load version %s: %w", v.ID, err)
	}
	return v, df, nil
}

func (s *ConfigService) notFound(configID string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, configID)
	}
	return fmt.Errorf("config %s: %w", configID, err)
}
