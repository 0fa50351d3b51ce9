package models

import (
	"time"
)

// TransformationType names a catalog entry
type TransformationType string

const (
	TypeRemoveDuplicates TransformationType = "remove_duplicates"
	TypeTrimWhitespace   TransformationType = "trim_whitespace"
	TypeFillMissing      TransformationType = "fill_missing"
	TypeDropMissing      TransformationType = "drop_missing"
	TypeChangeCase       TransformationType = "change_case"
	TypeReplaceText      TransformationType = "replace_text"
	TypeConvertType      TransformationType = "convert_type"
	TypeOneHotEncode     TransformationType = "one_hot_encode"
	TypeLabelEncode      TransformationType = "label_encode"
	TypeExtractDatePart  TransformationType = "extract_date_part"
	TypeCreateFormula    TransformationType = "create_formula"
	TypeConditional      TransformationType = "conditional_column"
	TypeRenameColumns    TransformationType = "rename_columns"
	TypeDropColumns      TransformationType = "drop_columns"
	TypeRemoveOutliers   TransformationType = "remove_outliers"
)

// TransformationStep is one named, parameterized operation. Column references
// are only checked against data at validation or apply time.
type TransformationStep struct {
	Type        TransformationType `json:"type" yaml:"type"`
	Column      string             `json:"column,omitempty" yaml:"column,omitempty"`
	Columns     []string           `json:"columns,omitempty" yaml:"columns,omitempty"`
	Parameters  map[string]any     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
}

// TransformationConfig is the ordered step list a user builds for a dataset.
type TransformationConfig struct {
	ID              string               `json:"config_id"`
	UserID          string               `json:"user_id"`
	DatasetID       string               `json:"dataset_id"`
	SourceVersionID string               `json:"source_version_id,omitempty"`
	Steps           []TransformationStep `json:"transformations"`
	IsApplied       bool                 `json:"is_applied"`
	CurrentFilePath string               `json:"current_file_path,omitempty"`
	LastValidation  *ValidationSummary   `json:"last_validation,omitempty"`
	Revision        int64                `json:"revision"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	AppliedAt       *time.Time           `json:"applied_at,omitempty"`
}

// ValidationResult is produced per validation call and never persisted on
// its own.
type ValidationResult struct {
	IsValid      bool     `json:"is_valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	Info         []string `json:"info"`
	AffectedRows []int    `json:"affected_rows"`
	Suggestions  []string `json:"suggestions"`
}

// NewValidationResult returns a valid, empty result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid:      true,
		Errors:       []string{},
		Warnings:     []string{},
		Info:         []string{},
		AffectedRows: []int{},
		Suggestions:  []string{},
	}
}

// AddError marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
}

func (r *ValidationResult) AddWarning(msg string) { r.Warnings = append(r.Warnings, msg) }
func (r *ValidationResult) AddInfo(msg string)    { r.Info = append(r.Info, msg) }

// StepValidation is the validation outcome of one step of a config.
type StepValidation struct {
	StepIndex int                `json:"step_index"`
	Type      TransformationType `json:"type"`
	Result    *ValidationResult  `json:"result"`
}

// ValidationSummary is the latest validation persisted on a config.
type ValidationSummary struct {
	IsValid     bool             `json:"is_valid"`
	StepResults []StepValidation `json:"step_results"`
	FailedStep  *int             `json:"failed_step,omitempty"`
	ValidatedAt time.Time        `json:"validated_at"`
}

// HistoryEntry records one applied transformation.
type HistoryEntry struct {
	Type          TransformationType `json:"type"`
	Parameters    map[string]any     `json:"parameters"`
	Timestamp     time.Time          `json:"timestamp"`
	RowsAffected  int                `json:"rows_affected"`
	ExecutionTime float64            `json:"execution_time"`
}
