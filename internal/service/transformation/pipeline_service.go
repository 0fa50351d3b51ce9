package transformation

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/engine"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
)

// Storage prefixes for pipeline output.
const (
	StagingPrefix  = "staging/"
	DatasetsPrefix = "datasets/"
)

// PreviewRequest 预览请求
type PreviewRequest struct {
	VersionID string                    `json:"version_id,omitempty"`
	DatasetID string                    `json:"dataset_id,omitempty"`
	Step      models.TransformationStep `json:"transformation"`
	NRows     int                       `json:"n_rows,omitempty"`
}

// ApplyRequest 单步执行请求
type ApplyRequest struct {
	VersionID string                    `json:"version_id,omitempty"`
	DatasetID string                    `json:"dataset_id,omitempty"`
	Step      models.TransformationStep `json:"transformation"`
	Commit    bool                      `json:"commit"`
	UserID    string                    `json:"-"`
}

// PipelineRequest 多步执行请求
type PipelineRequest struct {
	VersionID string                      `json:"version_id,omitempty"`
	DatasetID string                      `json:"dataset_id,omitempty"`
	Steps     []models.TransformationStep `json:"transformations" binding:"required"`
	Commit    bool                        `json:"commit"`
	UserID    string                      `json:"-"`
}

// StepResult is a single applied step and where its output went.
type StepResult struct {
	*engine.ApplyResult
	SourceVersionID string                        `json:"source_version_id"`
	OutputPath      string                        `json:"output_path"`
	Version         *models.DatasetVersion        `json:"version,omitempty"`
	Lineage         *models.TransformationLineage `json:"lineage,omitempty"`
}

// RunResult is a pipeline run and where its output went.
type RunResult struct {
	*engine.PipelineResult
	SourceVersionID string                        `json:"source_version_id"`
	OutputPath      string                        `json:"output_path,omitempty"`
	Version         *models.DatasetVersion        `json:"version,omitempty"`
	Lineage         *models.TransformationLineage `json:"lineage,omitempty"`
}

// PipelineService loads source data, runs the engine and commits results
// into the version tree.
type PipelineService struct {
	configs   *ConfigService
	versions  *version.Manager
	frames    FrameStore
	newEngine EngineFactory
	queue     queue.Queue
	logger    logger.Logger
}

func NewPipelineService(
	configs *ConfigService,
	versions *version.Manager,
	frames FrameStore,
	newEngine EngineFactory,
	log logger.Logger,
) *PipelineService {
	return &PipelineService{
		configs:   configs,
		versions:  versions,
		frames:    frames,
		newEngine: newEngine,
		logger:    log,
	}
}

// Preview runs step on the head of the source version. Failures are
// reported in the result; only a missing source is an error.
func (s *PipelineService) Preview(ctx context.Context, req PreviewRequest) (*engine.PreviewResult, error) {
	_, df, err := s.Source(ctx, req.VersionID, req.DatasetID)
	if err != nil {
		return nil, err
	}
	return s.newEngine().Preview(ctx, df, req.Step, req.NRows), nil
}

// ValidateSteps dry-runs steps against the source data without saving.
func (s *PipelineService) ValidateSteps(ctx context.Context, versionID, datasetID string, steps []models.TransformationStep) (*models.ValidationSummary, error) {
	_, df, err := s.Source(ctx, versionID, datasetID)
	if err != nil {
		return nil, err
	}
	return s.newEngine().ValidatePipeline(ctx, df, steps), nil
}

// ApplyStep applies one step to the full source data and saves the output.
func (s *PipelineService) ApplyStep(ctx context.Context, req ApplyRequest) (*StepResult, error) {
	started := time.Now().UTC()
	src, df, err := s.Source(ctx, req.VersionID, req.DatasetID)
	if err != nil {
		return nil, err
	}

	eng := s.newEngine()
	applied, err := eng.Apply(ctx, df, req.Step)
	if err != nil {
		return nil, err
	}

	out := &StepResult{ApplyResult: applied, SourceVersionID: src.ID}
	out.OutputPath, out.Version, out.Lineage, err = s.persist(ctx, src, applied.Frame, persistRequest{
		steps:     []models.TransformationStep{req.Step},
		history:   eng.History(),
		commit:    req.Commit,
		userID:    req.UserID,
		startedAt: started,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunPipeline applies steps in order. A failing step aborts the run; the
// returned result then carries the failing index alongside the error.
func (s *PipelineService) RunPipeline(ctx context.Context, req PipelineRequest) (*RunResult, error) {
	src, df, err := s.Source(ctx, req.VersionID, req.DatasetID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, src, df, req.Steps, req.Commit, req.UserID)
}

// ApplyConfig runs a config's steps from its source version, commits a new
// version and marks the config applied.
func (s *PipelineService) ApplyConfig(ctx context.Context, configID, userID string) (*RunResult, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("%w: config %s", ErrEmptyPipeline, configID)
	}
	if userID == "" {
		userID = cfg.UserID
	}
	src, df, err := s.configs.sourceFrame(ctx, cfg)
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, src, df, cfg.Steps, true, userID)
	if err != nil {
		return result, err
	}
	if _, err := s.configs.MarkApplied(ctx, configID, result.OutputPath); err != nil {
		return result, err
	}

	s.logger.Info("Transformation config applied",
		logger.String("configId", configID),
		logger.String("versionId", result.Version.ID),
		logger.String("path", result.OutputPath),
	)
	return result, nil
}

func (s *PipelineService) run(ctx context.Context, src *models.DatasetVersion, df *dataframe.DataFrame, steps []models.TransformationStep, commit bool, userID string) (*RunResult, error) {
	started := time.Now().UTC()
	eng := s.newEngine()
	pipeline, err := eng.ApplyPipeline(ctx, df, steps)
	out := &RunResult{PipelineResult: pipeline, SourceVersionID: src.ID}
	if err != nil {
		s.logger.Warn("Pipeline run failed",
			logger.String("sourceVersionId", src.ID),
			logger.Int("steps", len(steps)),
			logger.Error(err),
		)
		return out, err
	}

	out.OutputPath, out.Version, out.Lineage, err = s.persist(ctx, src, pipeline.Frame, persistRequest{
		steps:     steps,
		history:   eng.History(),
		commit:    commit,
		userID:    userID,
		startedAt: started,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type persistRequest struct {
	steps     []models.TransformationStep
	history   []models.HistoryEntry
	commit    bool
	userID    string
	startedAt time.Time
}

// persist saves the output under staging/ or, when committing, under the
// dataset's prefix together with a new version and lineage edge. The version
// describes the frame as stored, so its hashes match what a reload sees.
func (s *PipelineService) persist(ctx context.Context, src *models.DatasetVersion, df *dataframe.DataFrame, req persistRequest) (string, *models.DatasetVersion, *models.TransformationLineage, error) {
	prefix := StagingPrefix
	if req.commit {
		prefix = DatasetsPrefix
	}
	location := path.Join(prefix, src.DatasetID, uuid.New().String()+".csv")
	key, stored, err := s.frames.SaveFrame(ctx, df, location)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to save output: %w", err)
	}
	if !req.commit {
		return key, nil, nil, nil
	}

	v, edge, err := s.versions.CreateVersion(ctx, version.DerivedVersionRequest{
		ParentVersionID: src.ID,
		UserID:          req.userID,
		FilePath:        key,
		Frame:           stored,
		Steps:           req.steps,
		History:         req.history,
		StartedAt:       req.startedAt,
	})
	if err != nil {
		if derr := s.frames.DeleteFrame(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Warn("Failed to remove uncommitted output",
				logger.String("path", key),
				logger.Error(derr),
			)
		}
		return "", nil, nil, err
	}
	return key, v, edge, nil
}

// Source resolves a version id, or the latest version of a dataset, and
// loads its data.
func (s *PipelineService) Source(ctx context.Context, versionID, datasetID string) (*models.DatasetVersion, *dataframe.DataFrame, error) {
	if versionID == "" && datasetID == "" {
		return nil, nil, fmt.Errorf("version_id or dataset_id is required")
	}
	return s.configs.sourceFrame(ctx, &models.TransformationConfig{
		SourceVersionID: versionID,
		DatasetID:       datasetID,
	})
}
