package transform

import (
	"fmt"
	"math"
	"strings"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

// RemoveDuplicates drops rows whose subset tuple appeared before.
type RemoveDuplicates struct {
	Subset []string `json:"subset"`
	Keep   string   `json:"keep"`
}

func newRemoveDuplicates(step models.TransformationStep) (Transformation, error) {
	t := &RemoveDuplicates{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Subset = stepColumns(step, t.Subset)
	if t.Keep == "" {
		t.Keep = "first"
	}
	if !oneOf(t.Keep, "first", "last") {
		return nil, paramError(step.Type, "keep", "must be one of first, last; got %q", t.Keep)
	}
	return t, nil
}

func (t *RemoveDuplicates) Type() models.TransformationType { return models.TypeRemoveDuplicates }
func (t *RemoveDuplicates) InputColumns() []string          { return t.Subset }

func (t *RemoveDuplicates) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	mask := dataframe.DuplicateMask(df, t.Subset, t.Keep == "last")
	keep := make([]bool, len(mask))
	for i, dup := range mask {
		keep[i] = !dup
	}
	return df.FilterRows(keep), nil
}

// TrimWhitespace strips values of the target columns, converting them to
// text. Without explicit columns every string column is trimmed.
type TrimWhitespace struct {
	Columns []string `json:"columns"`
}

func newTrimWhitespace(step models.TransformationStep) (Transformation, error) {
	t := &TrimWhitespace{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	return t, nil
}

func (t *TrimWhitespace) Type() models.TransformationType { return models.TypeTrimWhitespace }
func (t *TrimWhitespace) InputColumns() []string          { return t.Columns }

// TargetColumns resolves the columns trimmed for df.
func (t *TrimWhitespace) TargetColumns(df *dataframe.DataFrame) []string {
	return targetColumns(df, t.Columns, dataframe.DTypeString, dataframe.DTypeObject)
}

func (t *TrimWhitespace) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range t.TargetColumns(df) {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		values := make([]any, s.Len())
		for i, v := range s.Values {
			if dataframe.IsNull(v) {
				continue
			}
			values[i] = strings.TrimSpace(dataframe.FormatValue(v))
		}
		var err error
		out, err = out.WithSeries(&dataframe.Series{Name: col, DType: dataframe.DTypeString, Values: values})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Fill methods
const (
	FillMean     = "mean"
	FillMedian   = "median"
	FillMode     = "mode"
	FillForward  = "forward"
	FillBackward = "backward"
)

// FillMissing imputes missing values with a constant or a method. Mean and
// median skip non-numeric columns.
type FillMissing struct {
	Columns []string `json:"columns"`
	Value   any      `json:"value"`
	Method  string   `json:"method"`
}

func newFillMissing(step models.TransformationStep) (Transformation, error) {
	t := &FillMissing{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	hasValue := t.Value != nil
	hasMethod := t.Method != ""
	switch {
	case hasValue && hasMethod:
		return nil, paramError(step.Type, "value", "exactly one of value or method is allowed")
	case !hasValue && !hasMethod:
		return nil, paramError(step.Type, "value", "one of value or method is required")
	case hasMethod && !oneOf(t.Method, FillMean, FillMedian, FillMode, FillForward, FillBackward):
		return nil, paramError(step.Type, "method", "unsupported method %q", t.Method)
	}
	return t, nil
}

func (t *FillMissing) Type() models.TransformationType { return models.TypeFillMissing }
func (t *FillMissing) InputColumns() []string          { return t.Columns }

// TargetColumns resolves the columns filled for df.
func (t *FillMissing) TargetColumns(df *dataframe.DataFrame) []string {
	if len(t.Columns) > 0 {
		return t.Columns
	}
	return df.ColumnNames()
}

// SkipsColumn reports whether the method cannot be applied to s.
func (t *FillMissing) SkipsColumn(s *dataframe.Series) bool {
	return (t.Method == FillMean || t.Method == FillMedian) && !s.DType.IsNumeric()
}

func (t *FillMissing) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range t.TargetColumns(df) {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		if s.NullCount() == 0 || t.SkipsColumn(s) {
			continue
		}
		filled, err := t.fill(s)
		if err != nil {
			return nil, err
		}
		out, err = out.WithSeries(filled)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *FillMissing) fill(s *dataframe.Series) (*dataframe.Series, error) {
	values := make([]any, s.Len())
	copy(values, s.Values)

	switch t.Method {
	case "":
		fillConstant(values, coerceFill(s.DType, t.Value))
	case FillMean, FillMedian:
		nums := s.Floats()
		if len(nums) == 0 {
			return s, nil
		}
		stat := dataframe.Mean(nums)
		if t.Method == FillMedian {
			stat = dataframe.Median(nums)
		}
		fillConstant(values, coerceFill(s.DType, stat))
	case FillMode:
		mode, ok := dataframe.Mode(s.Values)
		if !ok {
			return s, nil
		}
		fillConstant(values, mode)
	case FillForward:
		var last any
		for i, v := range values {
			if dataframe.IsNull(v) {
				values[i] = last
				continue
			}
			last = v
		}
	case FillBackward:
		var next any
		for i := len(values) - 1; i >= 0; i-- {
			if dataframe.IsNull(values[i]) {
				values[i] = next
				continue
			}
			next = values[i]
		}
	}
	return dataframe.NewSeries(s.Name, values), nil
}

func fillConstant(values []any, fill any) {
	for i, v := range values {
		if dataframe.IsNull(v) {
			values[i] = fill
		}
	}
}

// coerceFill keeps int columns integral when the fill value allows it.
func coerceFill(dtype dataframe.DType, v any) any {
	switch x := v.(type) {
	case float64:
		if dtype == dataframe.DTypeInt && x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x)
		}
	case int:
		return int64(x)
	}
	return v
}

// DropMissing drops rows with missing values in the target columns.
type DropMissing struct {
	Columns []string `json:"columns"`
	How     string   `json:"how"`
}

func newDropMissing(step models.TransformationStep) (Transformation, error) {
	t := &DropMissing{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if t.How == "" {
		t.How = "any"
	}
	if !oneOf(t.How, "any", "all") {
		return nil, paramError(step.Type, "how", "must be one of any, all; got %q", t.How)
	}
	return t, nil
}

func (t *DropMissing) Type() models.TransformationType { return models.TypeDropMissing }
func (t *DropMissing) InputColumns() []string          { return t.Columns }

// Mask marks the rows that are dropped.
func (t *DropMissing) Mask(df *dataframe.DataFrame) []bool {
	cols := t.Columns
	if len(cols) == 0 {
		cols = df.ColumnNames()
	}
	drop := make([]bool, df.NumRows())
	for r := range drop {
		missing := 0
		for _, c := range cols {
			if dataframe.IsNull(df.Value(r, c)) {
				missing++
			}
		}
		if t.How == "all" {
			drop[r] = len(cols) > 0 && missing == len(cols)
		} else {
			drop[r] = missing > 0
		}
	}
	return drop
}

func (t *DropMissing) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	keep := t.Mask(df)
	for i := range keep {
		keep[i] = !keep[i]
	}
	return df.FilterRows(keep), nil
}

// RemoveOutliers drops rows whose numeric values fall outside
// [Q1 - factor·IQR, Q3 + factor·IQR]. Missing values are kept.
type RemoveOutliers struct {
	Columns []string `json:"columns"`
	Factor  float64  `json:"factor"`
}

func newRemoveOutliers(step models.TransformationStep) (Transformation, error) {
	t := &RemoveOutliers{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if t.Factor == 0 {
		t.Factor = 1.5
	}
	if t.Factor < 0 {
		return nil, paramError(step.Type, "factor", "must be positive")
	}
	return t, nil
}

func (t *RemoveOutliers) Type() models.TransformationType { return models.TypeRemoveOutliers }
func (t *RemoveOutliers) InputColumns() []string          { return t.Columns }

// TargetColumns resolves the numeric columns checked for df.
func (t *RemoveOutliers) TargetColumns(df *dataframe.DataFrame) []string {
	return targetColumns(df, t.Columns, dataframe.DTypeInt, dataframe.DTypeFloat)
}

// Mask marks outlier rows.
func (t *RemoveOutliers) Mask(df *dataframe.DataFrame) []bool {
	drop := make([]bool, df.NumRows())
	for _, col := range t.TargetColumns(df) {
		s, ok := df.Column(col)
		if !ok || !s.DType.IsNumeric() {
			continue
		}
		nums := s.Floats()
		if len(nums) == 0 {
			continue
		}
		lower, upper := dataframe.IQRFences(nums, t.Factor)
		for r, v := range s.Values {
			if f, ok := dataframe.ToFloat(v); ok && (f < lower || f > upper) {
				drop[r] = true
			}
		}
	}
	return drop
}

func (t *RemoveOutliers) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	keep := t.Mask(df)
	for i := range keep {
		keep[i] = !keep[i]
	}
	return df.FilterRows(keep), nil
}
