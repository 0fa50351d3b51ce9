package models

import (
	"time"
)

// ColumnInfo describes one column of a stored version.
type ColumnInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Hash  string `json:"hash"`
}

// DatasetVersion is an immutable node of a dataset's version tree. Only
// IsPinned, RetentionDays and ExpiresAt change after creation.
type DatasetVersion struct {
	ID                      string       `json:"version_id"`
	DatasetID               string       `json:"dataset_id"`
	VersionNumber           int          `json:"version_number"`
	IsBaseVersion           bool         `json:"is_base_version"`
	ParentVersionID         *string      `json:"parent_version_id"`
	TransformationLineageID *string      `json:"transformation_lineage_id"`
	FilePath                string       `json:"file_path"`
	ContentHash             string       `json:"content_hash"`
	SchemaHash              string       `json:"schema_hash"`
	NumRows                 int          `json:"num_rows"`
	NumColumns              int          `json:"num_columns"`
	Columns                 []ColumnInfo `json:"columns"`
	QualityScore            float64      `json:"quality_score"`
	IsPinned                bool         `json:"is_pinned"`
	RetentionDays           *int         `json:"retention_days,omitempty"`
	ExpiresAt               *time.Time   `json:"expires_at,omitempty"`
	CreatedAt               time.Time    `json:"created_at"`
	CreatedBy               string       `json:"created_by"`
}

// ColumnNames lists the version's columns in order.
func (v *DatasetVersion) ColumnNames() []string {
	names := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		names[i] = c.Name
	}
	return names
}

// TransformationLineage is the edge between a parent and a child version.
type TransformationLineage struct {
	ID                  string               `json:"lineage_id"`
	DatasetID           string               `json:"dataset_id"`
	ParentVersionID     string               `json:"parent_version_id"`
	ChildVersionID      string               `json:"child_version_id"`
	TransformationSteps []TransformationStep `json:"transformation_steps"`
	History             []HistoryEntry       `json:"history,omitempty"`
	RowsBefore          int                  `json:"rows_before"`
	RowsAfter           int                  `json:"rows_after"`
	ColumnsBefore       int                  `json:"columns_before"`
	ColumnsAfter        int                  `json:"columns_after"`
	DataLossPercentage  float64              `json:"data_loss_percentage"`
	QualityBefore       float64              `json:"quality_before"`
	QualityAfter        float64              `json:"quality_after"`
	IsReproducible      bool                 `json:"is_reproducible"`
	CreatedAt           time.Time            `json:"created_at"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
}

// ColumnRename is a detected rename between two versions.
type ColumnRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DTypeChange is a column whose dtype differs between two versions.
type DTypeChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// VersionComparison is the structural diff of two versions.
type VersionComparison struct {
	Version1ID       string                 `json:"version1_id"`
	Version2ID       string                 `json:"version2_id"`
	RowCountDelta    int                    `json:"row_count_delta"`
	ColumnCountDelta int                    `json:"column_count_delta"`
	ColumnsAdded     []string               `json:"columns_added"`
	ColumnsRemoved   []string               `json:"columns_removed"`
	ColumnsRenamed   []ColumnRename         `json:"columns_renamed"`
	DTypeChanges     map[string]DTypeChange `json:"dtype_changes"`
	SchemaChanged    bool                   `json:"schema_changed"`
	ContentIdentical bool                   `json:"content_identical"`
	SimilarityScore  float64                `json:"similarity_score"`
	QualityDelta     float64                `json:"quality_delta"`
	SameLineagePath  bool                   `json:"same_lineage_path"`
	LineagePath      []string               `json:"lineage_path,omitempty"`
}
