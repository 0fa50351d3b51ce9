package transform

import (
	"fmt"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

const defaultMaxCategories = 100

// OneHotEncode replaces categorical columns with 0/1 indicator columns
// named <prefix>_<value>.
type OneHotEncode struct {
	Columns       []string `json:"columns"`
	Prefix        string   `json:"prefix"`
	DropOriginal  *bool    `json:"drop_original"`
	MaxCategories int      `json:"max_categories"`
}

func newOneHotEncode(step models.TransformationStep) (Transformation, error) {
	t := &OneHotEncode{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if len(t.Columns) == 0 {
		return nil, paramError(step.Type, "columns", "at least one column is required")
	}
	if t.MaxCategories < 0 {
		return nil, paramError(step.Type, "max_categories", "must be positive")
	}
	if t.MaxCategories == 0 {
		t.MaxCategories = defaultMaxCategories
	}
	return t, nil
}

func (t *OneHotEncode) Type() models.TransformationType { return models.TypeOneHotEncode }
func (t *OneHotEncode) InputColumns() []string          { return t.Columns }

func (t *OneHotEncode) dropOriginal() bool {
	return t.DropOriginal == nil || *t.DropOriginal
}

func (t *OneHotEncode) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range t.Columns {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		categories := dataframe.SortedDistinct(s.Values)
		if len(categories) > t.MaxCategories {
			return nil, fmt.Errorf("column %q has %d categories, more than the limit of %d", col, len(categories), t.MaxCategories)
		}
		prefix := t.Prefix
		if prefix == "" {
			prefix = col
		}
		indicators := make([]*dataframe.Series, 0, len(categories))
		for _, cat := range categories {
			key := dataframe.FormatValue(cat)
			values := make([]any, s.Len())
			for r, v := range s.Values {
				if !dataframe.IsNull(v) && dataframe.FormatValue(v) == key {
					values[r] = int64(1)
				} else {
					values[r] = int64(0)
				}
			}
			name := prefix + "_" + key
			if out.HasColumn(name) {
				return nil, fmt.Errorf("indicator column %q already exists", name)
			}
			indicators = append(indicators, &dataframe.Series{Name: name, DType: dataframe.DTypeInt, Values: values})
		}
		var err error
		if len(indicators) > 0 {
			if out, err = out.InsertAfter(col, indicators...); err != nil {
				return nil, err
			}
		}
		if t.dropOriginal() {
			out = out.Drop(col)
		}
	}
	return out, nil
}

// LabelEncode replaces values with integer codes assigned in sorted order of
// the distinct values. Missing values stay missing.
type LabelEncode struct {
	Columns []string `json:"columns"`
}

func newLabelEncode(step models.TransformationStep) (Transformation, error) {
	t := &LabelEncode{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if len(t.Columns) == 0 {
		return nil, paramError(step.Type, "columns", "at least one column is required")
	}
	return t, nil
}

func (t *LabelEncode) Type() models.TransformationType { return models.TypeLabelEncode }
func (t *LabelEncode) InputColumns() []string          { return t.Columns }

func (t *LabelEncode) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range t.Columns {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		codes := make(map[string]int64)
		for i, v := range dataframe.SortedDistinct(s.Values) {
			codes[dataframe.FormatValue(v)] = int64(i)
		}
		values := make([]any, s.Len())
		for r, v := range s.Values {
			if dataframe.IsNull(v) {
				continue
			}
			values[r] = codes[dataframe.FormatValue(v)]
		}
		var err error
		if out, err = out.WithSeries(&dataframe.Series{Name: col, DType: dataframe.DTypeInt, Values: values}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
