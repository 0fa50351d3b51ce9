package transform

import (
	"sort"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

// RenameColumns renames columns per mapping.
type RenameColumns struct {
	Mapping map[string]string `json:"mapping"`
}

func newRenameColumns(step models.TransformationStep) (Transformation, error) {
	t := &RenameColumns{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	if len(t.Mapping) == 0 {
		return nil, paramError(step.Type, "mapping", "at least one column mapping is required")
	}
	for from, to := range t.Mapping {
		if to == "" {
			return nil, paramError(step.Type, "mapping", "empty target name for column %q", from)
		}
	}
	return t, nil
}

func (t *RenameColumns) Type() models.TransformationType { return models.TypeRenameColumns }

func (t *RenameColumns) InputColumns() []string {
	cols := make([]string, 0, len(t.Mapping))
	for from := range t.Mapping {
		cols = append(cols, from)
	}
	sort.Strings(cols)
	return cols
}

func (t *RenameColumns) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	return df.Rename(t.Mapping)
}

// DropColumns removes columns.
type DropColumns struct {
	Columns []string `json:"columns"`
}

func newDropColumns(step models.TransformationStep) (Transformation, error) {
	t := &DropColumns{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if len(t.Columns) == 0 {
		return nil, paramError(step.Type, "columns", "at least one column is required")
	}
	return t, nil
}

func (t *DropColumns) Type() models.TransformationType { return models.TypeDropColumns }
func (t *DropColumns) InputColumns() []string          { return t.Columns }

func (t *DropColumns) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	return df.Drop(t.Columns...), nil
}
