package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/internal/utils/validator"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// Engine runs transformations over materialized frames. History is scoped to
// the instance; create one engine per pipeline run.
type Engine struct {
	registry  *transform.Registry
	validator *validator.TransformationValidator
	logger    logger.Logger
	config    *Config

	mu      sync.Mutex
	history []models.HistoryEntry
}

// Config 引擎配置
type Config struct {
	PreviewTimeout     time.Duration
	ApplyTimeout       time.Duration
	DefaultPreviewRows int
	MaxPreviewRows     int
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() *Config {
	return &Config{
		PreviewTimeout:     2 * time.Second,
		ApplyTimeout:       30 * time.Second,
		DefaultPreviewRows: 100,
		MaxPreviewRows:     10000,
	}
}

// PreviewResult is the outcome of a preview. Failures are reported in the
// result, never as errors.
type PreviewResult struct {
	Success            bool                      `json:"success"`
	TransformationType models.TransformationType `json:"transformation_type"`
	PreviewData        []map[string]any          `json:"preview_data"`
	AffectedRows       int                       `json:"affected_rows"`
	AffectedColumns    []string                  `json:"affected_columns"`
	StatsBefore        *dataframe.FrameStats     `json:"stats_before,omitempty"`
	StatsAfter         *dataframe.FrameStats     `json:"stats_after,omitempty"`
	Warnings           []string                  `json:"warnings"`
	ValidationErrors   []string                  `json:"validation_errors"`
	Error              string                    `json:"error,omitempty"`
}

// ApplyResult describes one applied step.
type ApplyResult struct {
	Frame              *dataframe.DataFrame      `json:"-"`
	TransformationType models.TransformationType `json:"transformation_type"`
	RowsBefore         int                       `json:"rows_before"`
	RowsAfter          int                       `json:"rows_after"`
	ColumnsBefore      int                       `json:"columns_before"`
	ColumnsAfter       int                       `json:"columns_after"`
	AffectedRows       int                       `json:"affected_rows"`
	AffectedColumns    []string                  `json:"affected_columns"`
	Warnings           []string                  `json:"warnings"`
	ExecutionTime      float64                   `json:"execution_time"` // seconds
}

// PipelineResult describes a chained run. On failure Frame holds the output
// of the last successful step.
type PipelineResult struct {
	Success       bool                 `json:"success"`
	Frame         *dataframe.DataFrame `json:"-"`
	Steps         []*ApplyResult       `json:"steps"`
	FailedStep    *int                 `json:"failed_step,omitempty"`
	Error         string               `json:"error,omitempty"`
	RowsBefore    int                  `json:"rows_before"`
	RowsAfter     int                  `json:"rows_after"`
	ColumnsBefore int                  `json:"columns_before"`
	ColumnsAfter  int                  `json:"columns_after"`
	ExecutionTime float64              `json:"execution_time"`
}

// New creates an engine. A nil config uses DefaultConfig.
func New(registry *transform.Registry, v *validator.TransformationValidator, log logger.Logger, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		registry:  registry,
		validator: v,
		logger:    log,
		config:    cfg,
	}
}

// Preview applies step to the first nRows rows of df and reports the
// before/after statistics of that sample.
func (e *Engine) Preview(ctx context.Context, df *dataframe.DataFrame, step models.TransformationStep, nRows int) (result *PreviewResult) {
	result = &PreviewResult{
		TransformationType: step.Type,
		PreviewData:        []map[string]any{},
		AffectedColumns:    []string{},
		Warnings:           []string{},
		ValidationErrors:   []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Preview panicked",
				logger.String("type", string(step.Type)),
				logger.Any("panic", r),
			)
			result.Success = false
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if df == nil {
		result.Error = "no data to preview"
		return result
	}
	sample := df.Head(e.previewRows(nRows))
	result.StatsBefore = dataframe.Describe(sample)

	validation := e.validator.Validate(sample, step)
	result.Warnings = append(result.Warnings, validation.Warnings...)
	if !validation.IsValid {
		result.ValidationErrors = append(result.ValidationErrors, validation.Errors...)
		result.Error = strings.Join(validation.Errors, "; ")
		return result
	}

	tr, err := e.registry.Build(step)
	if err != nil {
		result.ValidationErrors = append(result.ValidationErrors, err.Error())
		result.Error = err.Error()
		return result
	}

	out, err := e.run(ctx, e.config.PreviewTimeout, tr, sample)
	if err != nil {
		e.logger.Warn("Preview failed",
			logger.String("type", string(step.Type)),
			logger.Error(err),
		)
		result.Error = wrapStep(step.Type, -1, err).Error()
		return result
	}

	result.Success = true
	result.PreviewData = out.Records()
	result.AffectedRows = dataframe.CountChangedRows(sample, out)
	result.AffectedColumns = append(result.AffectedColumns, dataframe.ChangedColumns(sample, out)...)
	result.StatsAfter = dataframe.Describe(out)
	return result
}

// Apply runs step over the full frame and records a history entry.
func (e *Engine) Apply(ctx context.Context, df *dataframe.DataFrame, step models.TransformationStep) (*ApplyResult, error) {
	return e.applyStep(ctx, df, step, -1)
}

// ApplyPipeline applies steps in order, validating each one against the
// output of the steps before it. The first failure aborts the chain.
func (e *Engine) ApplyPipeline(ctx context.Context, df *dataframe.DataFrame, steps []models.TransformationStep) (*PipelineResult, error) {
	start := time.Now()
	result := &PipelineResult{
		Frame:         df,
		Steps:         make([]*ApplyResult, 0, len(steps)),
		RowsBefore:    df.NumRows(),
		ColumnsBefore: df.NumColumns(),
	}

	current := df
	for i, step := range steps {
		stepResult, err := e.applyStep(ctx, current, step, i)
		if err != nil {
			failed := i
			result.FailedStep = &failed
			result.Error = err.Error()
			result.Frame = current
			result.RowsAfter = current.NumRows()
			result.ColumnsAfter = current.NumColumns()
			result.ExecutionTime = time.Since(start).Seconds()
			e.logger.Warn("Pipeline aborted",
				logger.Int("failedStep", i),
				logger.String("type", string(step.Type)),
				logger.Error(err),
			)
			return result, err
		}
		result.Steps = append(result.Steps, stepResult)
		current = stepResult.Frame
	}

	result.Success = true
	result.Frame = current
	result.RowsAfter = current.NumRows()
	result.ColumnsAfter = current.NumColumns()
	result.ExecutionTime = time.Since(start).Seconds()
	e.logger.Info("Pipeline completed",
		logger.Int("steps", len(steps)),
		logger.Int("rowsBefore", result.RowsBefore),
		logger.Int("rowsAfter", result.RowsAfter),
		logger.Float64("executionTime", result.ExecutionTime),
	)
	return result, nil
}

// ValidatePipeline validates each step against the frame produced by the
// steps before it, without recording history. Validation stops at the first
// invalid or failing step.
func (e *Engine) ValidatePipeline(ctx context.Context, df *dataframe.DataFrame, steps []models.TransformationStep) *models.ValidationSummary {
	summary := &models.ValidationSummary{
		IsValid:     true,
		StepResults: make([]models.StepValidation, 0, len(steps)),
		ValidatedAt: time.Now().UTC(),
	}
	current := df
	for i, step := range steps {
		res := e.validator.Validate(current, step)
		summary.StepResults = append(summary.StepResults, models.StepValidation{StepIndex: i, Type: step.Type, Result: res})
		if res.IsValid {
			tr, err := e.registry.Build(step)
			if err == nil {
				var next *dataframe.DataFrame
				if next, err = e.run(ctx, e.config.ApplyTimeout, tr, current); err == nil {
					current = next
					continue
				}
			}
			res.AddError(fmt.Sprintf("Step failed during dry run: %v", err))
		}
		failed := i
		summary.IsValid = false
		summary.FailedStep = &failed
		break
	}
	return summary
}

// History returns a copy of the entries recorded by this engine.
func (e *Engine) History() []models.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) applyStep(ctx context.Context, df *dataframe.DataFrame, step models.TransformationStep, index int) (*ApplyResult, error) {
	if df == nil {
		return nil, wrapStep(step.Type, index, errors.New("no data to transform"))
	}

	validation := e.validator.Validate(df, step)
	if !validation.IsValid {
		return nil, wrapStep(step.Type, index, fmt.Errorf("%w: %s", ErrValidation, strings.Join(validation.Errors, "; ")))
	}
	tr, err := e.registry.Build(step)
	if err != nil {
		return nil, wrapStep(step.Type, index, err)
	}

	start := time.Now()
	out, err := e.run(ctx, e.config.ApplyTimeout, tr, df)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Error("Transformation failed",
			logger.String("type", string(step.Type)),
			logger.Int("stepIndex", index),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
		return nil, wrapStep(step.Type, index, err)
	}

	result := &ApplyResult{
		Frame:              out,
		TransformationType: step.Type,
		RowsBefore:         df.NumRows(),
		RowsAfter:          out.NumRows(),
		ColumnsBefore:      df.NumColumns(),
		ColumnsAfter:       out.NumColumns(),
		AffectedRows:       dataframe.CountChangedRows(df, out),
		AffectedColumns:    dataframe.ChangedColumns(df, out),
		Warnings:           validation.Warnings,
		ExecutionTime:      elapsed.Seconds(),
	}
	if result.AffectedColumns == nil {
		result.AffectedColumns = []string{}
	}

	e.mu.Lock()
	e.history = append(e.history, models.HistoryEntry{
		Type:          step.Type,
		Parameters:    step.Parameters,
		Timestamp:     start.UTC(),
		RowsAffected:  result.AffectedRows,
		ExecutionTime: result.ExecutionTime,
	})
	e.mu.Unlock()

	e.logger.Debug("Transformation applied",
		logger.String("type", string(step.Type)),
		logger.Int("stepIndex", index),
		logger.Int("affectedRows", result.AffectedRows),
		logger.Duration("elapsed", elapsed),
	)
	return result, nil
}

// run executes tr within budget. A panic inside the transformation is
// returned as an error. The computation is abandoned, not interrupted, when
// the budget expires.
func (e *Engine) run(ctx context.Context, budget time.Duration, tr transform.Transformation, df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	type outcome struct {
		df  *dataframe.DataFrame
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Transformation panicked",
					logger.String("type", string(tr.Type())),
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())),
				)
				done <- outcome{err: fmt.Errorf("internal error: %v", r)}
			}
		}()
		out, err := tr.Apply(df)
		done <- outcome{df: out, err: err}
	}()

	select {
	case res := <-done:
		return res.df, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, budget)
		}
		return nil, ctx.Err()
	}
}

func (e *Engine) previewRows(n int) int {
	if n <= 0 {
		n = e.config.DefaultPreviewRows
	}
	if e.config.MaxPreviewRows > 0 && n > e.config.MaxPreviewRows {
		n = e.config.MaxPreviewRows
	}
	return n
}
