package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

// ParseTime converts a value to time.Time using layout when set, otherwise
// the common layouts.
func ParseTime(v any, layout string) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if layout != "" {
			ts, err := time.Parse(layout, s)
			return ts, err == nil
		}
		for _, l := range dateLayouts {
			if ts, err := time.Parse(l, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// ConvertType coerces column values to a target dtype. With errors=raise a
// malformed value fails the transformation; with errors=coerce it becomes
// missing.
type ConvertType struct {
	Columns    []string `json:"columns"`
	TargetType string   `json:"target_type"`
	Errors     string   `json:"errors"`
	Format     string   `json:"format"`
}

func newConvertType(step models.TransformationStep) (Transformation, error) {
	t := &ConvertType{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if len(t.Columns) == 0 {
		return nil, paramError(step.Type, "columns", "at least one column is required")
	}
	if !oneOf(t.TargetType, "int", "float", "string", "bool", "datetime") {
		return nil, paramError(step.Type, "target_type", "must be one of int, float, string, bool, datetime; got %q", t.TargetType)
	}
	if t.Errors == "" {
		t.Errors = "raise"
	}
	if !oneOf(t.Errors, "raise", "coerce") {
		return nil, paramError(step.Type, "errors", "must be one of raise, coerce; got %q", t.Errors)
	}
	return t, nil
}

func (t *ConvertType) Type() models.TransformationType { return models.TypeConvertType }
func (t *ConvertType) InputColumns() []string          { return t.Columns }

// TargetDType is the dtype produced by the conversion.
func (t *ConvertType) TargetDType() dataframe.DType {
	switch t.TargetType {
	case "int":
		return dataframe.DTypeInt
	case "float":
		return dataframe.DTypeFloat
	case "bool":
		return dataframe.DTypeBool
	case "datetime":
		return dataframe.DTypeDatetime
	}
	return dataframe.DTypeString
}

// Convert converts one non-missing value.
func (t *ConvertType) Convert(v any) (any, bool) {
	switch t.TargetType {
	case "int":
		return toInt(v)
	case "float":
		return toFloat(v)
	case "bool":
		return toBool(v)
	case "datetime":
		ts, ok := ParseTime(v, t.Format)
		if !ok {
			return nil, false
		}
		return ts, true
	}
	if ts, ok := v.(time.Time); ok && t.Format != "" {
		return ts.Format(t.Format), true
	}
	return dataframe.FormatValue(v), true
}

func (t *ConvertType) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range t.Columns {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		values := make([]any, s.Len())
		for i, v := range s.Values {
			if dataframe.IsNull(v) {
				continue
			}
			converted, ok := t.Convert(v)
			if !ok {
				if t.Errors == "raise" {
					return nil, fmt.Errorf("column %q row %d: cannot convert %q to %s", col, i, dataframe.FormatValue(v), t.TargetType)
				}
				continue
			}
			values[i] = converted
		}
		var err error
		out, err = out.WithSeries(&dataframe.Series{Name: col, DType: t.TargetDType(), Values: values})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toInt(v any) (any, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return int64(1), true
		}
		return int64(0), true
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return nil, false
}

// floatToInt accepts only integral values inside the int64 range.
func floatToInt(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, false
	}
	return int64(f), true
}

func toFloat(v any) (any, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1.0, true
		}
		return 0.0, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f, true
		}
	}
	return nil, false
}

func toBool(v any) (any, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case float64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "yes", "y", "1":
			return true, true
		case "false", "f", "no", "n", "0":
			return false, true
		}
	}
	return nil, false
}

var datePartNames = []string{"year", "month", "day", "weekday", "hour", "quarter"}

// ExtractDatePart adds <column>_<part> integer columns next to each source
// column. Unparseable values yield missing parts.
type ExtractDatePart struct {
	Columns []string `json:"columns"`
	Parts   []string `json:"parts"`
	Format  string   `json:"format"`
}

func newExtractDatePart(step models.TransformationStep) (Transformation, error) {
	t := &ExtractDatePart{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if len(t.Columns) == 0 {
		return nil, paramError(step.Type, "columns", "at least one column is required")
	}
	if len(t.Parts) == 0 {
		t.Parts = []string{"year", "month", "day"}
	}
	for _, p := range t.Parts {
		if !oneOf(p, datePartNames...) {
			return nil, paramError(step.Type, "parts", "unsupported date part %q", p)
		}
	}
	return t, nil
}

func (t *ExtractDatePart) Type() models.TransformationType { return models.TypeExtractDatePart }
func (t *ExtractDatePart) InputColumns() []string          { return t.Columns }

func (t *ExtractDatePart) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range t.Columns {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		parts := make([]*dataframe.Series, len(t.Parts))
		for i, p := range t.Parts {
			parts[i] = &dataframe.Series{Name: col + "_" + p, DType: dataframe.DTypeInt, Values: make([]any, s.Len())}
		}
		for r, v := range s.Values {
			ts, ok := ParseTime(v, t.Format)
			if !ok {
				continue
			}
			for i, p := range t.Parts {
				parts[i].Values[r] = datePart(ts, p)
			}
		}
		// replace parts that already exist, insert the rest after the source
		var fresh []*dataframe.Series
		var err error
		for _, p := range parts {
			if out.HasColumn(p.Name) {
				if out, err = out.WithSeries(p); err != nil {
					return nil, err
				}
				continue
			}
			fresh = append(fresh, p)
		}
		if len(fresh) > 0 {
			if out, err = out.InsertAfter(col, fresh...); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func datePart(ts time.Time, part string) int64 {
	switch part {
	case "year":
		return int64(ts.Year())
	case "month":
		return int64(ts.Month())
	case "day":
		return int64(ts.Day())
	case "weekday":
		// Monday=0 .. Sunday=6
		return int64((int(ts.Weekday()) + 6) % 7)
	case "hour":
		return int64(ts.Hour())
	case "quarter":
		return int64((int(ts.Month())-1)/3 + 1)
	}
	return 0
}
