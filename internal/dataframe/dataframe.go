// Package dataframe holds the in-memory, column-oriented table that every
// transformation, validation and statistics routine operates on.
package dataframe

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DType is the logical type of a column.
type DType string

const (
	DTypeInt      DType = "int64"
	DTypeFloat    DType = "float64"
	DTypeBool     DType = "bool"
	DTypeString   DType = "string"
	DTypeDatetime DType = "datetime"
	DTypeObject   DType = "object"
)

// IsNumeric reports whether the dtype holds numbers.
func (d DType) IsNumeric() bool {
	return d == DTypeInt || d == DTypeFloat
}

// Series is a named column. Values hold nil (missing), int64, float64, bool,
// string or time.Time.
type Series struct {
	Name   string
	DType  DType
	Values []any
}

// NewSeries builds a series and infers its dtype from the values.
func NewSeries(name string, values []any) *Series {
	return &Series{Name: name, DType: InferDType(values), Values: values}
}

func (s *Series) Len() int { return len(s.Values) }

// Clone copies the value slice. Values themselves are immutable scalars.
func (s *Series) Clone() *Series {
	values := make([]any, len(s.Values))
	copy(values, s.Values)
	return &Series{Name: s.Name, DType: s.DType, Values: values}
}

func (s *Series) IsNull(i int) bool { return IsNull(s.Values[i]) }

// NullCount returns the number of missing values.
func (s *Series) NullCount() int {
	n := 0
	for _, v := range s.Values {
		if IsNull(v) {
			n++
		}
	}
	return n
}

// Floats returns the non-missing values converted to float64. Non-numeric
// values are skipped.
func (s *Series) Floats() []float64 {
	out := make([]float64, 0, len(s.Values))
	for _, v := range s.Values {
		if f, ok := ToFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// DataFrame is an ordered set of equal-length series.
type DataFrame struct {
	series []*Series
	index  map[string]int
	rows   int
}

// New builds a frame from series. Names must be unique and lengths equal.
func New(series ...*Series) (*DataFrame, error) {
	df := &DataFrame{
		series: make([]*Series, 0, len(series)),
		index:  make(map[string]int, len(series)),
	}
	for i, s := range series {
		if s == nil {
			return nil, fmt.Errorf("series %d is nil", i)
		}
		if _, dup := df.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", s.Name)
		}
		if i == 0 {
			df.rows = s.Len()
		} else if s.Len() != df.rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", s.Name, s.Len(), df.rows)
		}
		df.index[s.Name] = len(df.series)
		df.series = append(df.series, s)
	}
	return df, nil
}

// FromRows builds a frame from row-major values, inferring dtypes.
func FromRows(columns []string, rows [][]any) (*DataFrame, error) {
	cols := make([][]any, len(columns))
	for i := range cols {
		cols[i] = make([]any, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(columns))
		}
		for c, v := range row {
			cols[c][r] = normalize(v)
		}
	}
	series := make([]*Series, len(columns))
	for i, name := range columns {
		series[i] = NewSeries(name, cols[i])
	}
	return New(series...)
}

// FromColumns builds a frame from named value slices in the given order.
func FromColumns(columns []string, values map[string][]any) (*DataFrame, error) {
	series := make([]*Series, len(columns))
	for i, name := range columns {
		vals := values[name]
		normalized := make([]any, len(vals))
		for j, v := range vals {
			normalized[j] = normalize(v)
		}
		series[i] = NewSeries(name, normalized)
	}
	return New(series...)
}

func (df *DataFrame) NumRows() int    { return df.rows }
func (df *DataFrame) NumColumns() int { return len(df.series) }

// ColumnNames returns the column names in order.
func (df *DataFrame) ColumnNames() []string {
	names := make([]string, len(df.series))
	for i, s := range df.series {
		names[i] = s.Name
	}
	return names
}

// Column returns the named series. The returned series must not be mutated.
func (df *DataFrame) Column(name string) (*Series, bool) {
	i, ok := df.index[name]
	if !ok {
		return nil, false
	}
	return df.series[i], true
}

func (df *DataFrame) HasColumn(name string) bool {
	_, ok := df.index[name]
	return ok
}

// MissingColumns returns the names not present in the frame, in input order.
func (df *DataFrame) MissingColumns(names []string) []string {
	var missing []string
	for _, n := range names {
		if !df.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Series returns the columns in order.
func (df *DataFrame) Series() []*Series {
	out := make([]*Series, len(df.series))
	copy(out, df.series)
	return out
}

// DTypes maps column names to dtypes.
func (df *DataFrame) DTypes() map[string]DType {
	out := make(map[string]DType, len(df.series))
	for _, s := range df.series {
		out[s.Name] = s.DType
	}
	return out
}

// Value returns the value at row r of the named column.
func (df *DataFrame) Value(r int, column string) any {
	s, ok := df.Column(column)
	if !ok {
		return nil
	}
	return s.Values[r]
}

// Row returns the values of row r in column order.
func (df *DataFrame) Row(r int) []any {
	row := make([]any, len(df.series))
	for i, s := range df.series {
		row[i] = s.Values[r]
	}
	return row
}

// Records returns row dictionaries, suitable for JSON payloads.
func (df *DataFrame) Records() []map[string]any {
	out := make([]map[string]any, df.rows)
	for r := 0; r < df.rows; r++ {
		rec := make(map[string]any, len(df.series))
		for _, s := range df.series {
			rec[s.Name] = jsonValue(s.Values[r])
		}
		out[r] = rec
	}
	return out
}

// Clone returns a deep copy of the column slices.
func (df *DataFrame) Clone() *DataFrame {
	series := make([]*Series, len(df.series))
	for i, s := range df.series {
		series[i] = s.Clone()
	}
	out, _ := New(series...)
	if len(series) == 0 {
		out.rows = df.rows
	}
	return out
}

// Head returns the first n rows.
func (df *DataFrame) Head(n int) *DataFrame {
	if n < 0 {
		n = 0
	}
	if n > df.rows {
		n = df.rows
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return df.SelectRows(idx)
}

// SelectRows returns a frame holding the given rows in the given order.
func (df *DataFrame) SelectRows(idx []int) *DataFrame {
	series := make([]*Series, len(df.series))
	for i, s := range df.series {
		values := make([]any, len(idx))
		for j, r := range idx {
			values[j] = s.Values[r]
		}
		series[i] = &Series{Name: s.Name, DType: s.DType, Values: values}
	}
	out, _ := New(series...)
	if len(series) == 0 {
		out.rows = len(idx)
	}
	return out
}

// FilterRows keeps the rows whose mask entry is true.
func (df *DataFrame) FilterRows(keep []bool) *DataFrame {
	idx := make([]int, 0, df.rows)
	for r := 0; r < df.rows && r < len(keep); r++ {
		if keep[r] {
			idx = append(idx, r)
		}
	}
	return df.SelectRows(idx)
}

// WithSeries returns a new frame where s replaces the column of the same name
// or is appended when absent.
func (df *DataFrame) WithSeries(s *Series) (*DataFrame, error) {
	if len(df.series) > 0 && s.Len() != df.rows {
		return nil, fmt.Errorf("column %q has %d values, expected %d", s.Name, s.Len(), df.rows)
	}
	series := df.Series()
	if i, ok := df.index[s.Name]; ok {
		series[i] = s
	} else {
		series = append(series, s)
	}
	return New(series...)
}

// InsertAfter returns a new frame with the given series placed right after
// the anchor column.
func (df *DataFrame) InsertAfter(anchor string, add ...*Series) (*DataFrame, error) {
	pos, ok := df.index[anchor]
	if !ok {
		return nil, fmt.Errorf("column %q not found", anchor)
	}
	series := make([]*Series, 0, len(df.series)+len(add))
	series = append(series, df.series[:pos+1]...)
	series = append(series, add...)
	series = append(series, df.series[pos+1:]...)
	return New(series...)
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (df *DataFrame) Drop(names ...string) *DataFrame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	series := make([]*Series, 0, len(df.series))
	for _, s := range df.series {
		if !drop[s.Name] {
			series = append(series, s)
		}
	}
	out, _ := New(series...)
	if len(series) == 0 {
		out.rows = df.rows
	}
	return out
}

// Rename returns a frame with columns renamed per mapping.
func (df *DataFrame) Rename(mapping map[string]string) (*DataFrame, error) {
	series := make([]*Series, len(df.series))
	for i, s := range df.series {
		name := s.Name
		if to, ok := mapping[name]; ok {
			name = to
		}
		series[i] = &Series{Name: name, DType: s.DType, Values: s.Values}
	}
	return New(series...)
}

// Equal compares column names, dtypes and values.
func (df *DataFrame) Equal(other *DataFrame) bool {
	if other == nil || df.rows != other.rows || len(df.series) != len(other.series) {
		return false
	}
	for i, s := range df.series {
		o := other.series[i]
		if s.Name != o.Name || s.DType != o.DType {
			return false
		}
		for r := range s.Values {
			if !ValuesEqual(s.Values[r], o.Values[r]) {
				return false
			}
		}
	}
	return true
}

// RowKey returns a canonical string for row r restricted to cols.
func (df *DataFrame) RowKey(r int, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		writeCanonical(&b, df.Value(r, c))
		b.WriteByte(0x1f)
	}
	return b.String()
}

// IsNull reports whether v is a missing value.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// ValuesEqual treats missing values as equal to each other.
func ValuesEqual(a, b any) bool {
	an, bn := IsNull(a), IsNull(b)
	if an || bn {
		return an && bn
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case int64:
		if y, ok := b.(int64); ok {
			return x == y
		}
		return false
	case float64:
		if y, ok := b.(float64); ok {
			return x == y
		}
		return false
	}
	return a == b
}

// ToFloat converts numeric values. Missing and non-numeric values report false.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

// InferDType derives a dtype from the non-missing values.
func InferDType(values []any) DType {
	var ints, floats, bools, strs, times, other int
	for _, v := range values {
		if IsNull(v) {
			continue
		}
		switch v.(type) {
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case string:
			strs++
		case time.Time:
			times++
		default:
			other++
		}
	}
	total := ints + floats + bools + strs + times + other
	switch {
	case total == 0:
		if len(values) > 0 {
			return DTypeFloat
		}
		return DTypeObject
	case ints == total:
		return DTypeInt
	case ints+floats == total:
		return DTypeFloat
	case bools == total:
		return DTypeBool
	case strs == total:
		return DTypeString
	case times == total:
		return DTypeDatetime
	}
	return DTypeObject
}

// InferSeries parses raw text cells into typed values. Columns that are not
// uniformly numeric or boolean keep the raw text untouched.
func InferSeries(name string, raw []string) *Series {
	values := make([]any, len(raw))
	allInt, allNum, allBool := true, true, true
	seen := false
	for _, cell := range raw {
		if cell == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			allInt = false
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				allNum = false
			}
		}
		if !isBoolText(cell) {
			allBool = false
		}
	}
	for i, cell := range raw {
		if cell == "" {
			values[i] = nil
			continue
		}
		switch {
		case seen && allInt:
			n, _ := strconv.ParseInt(cell, 10, 64)
			values[i] = n
		case seen && allNum:
			f, _ := strconv.ParseFloat(cell, 64)
			values[i] = f
		case seen && allBool:
			values[i] = strings.EqualFold(cell, "true")
		default:
			values[i] = cell
		}
	}
	s := &Series{Name: name, Values: values}
	switch {
	case !seen:
		s.DType = DTypeFloat
	case allInt:
		s.DType = DTypeInt
	case allNum:
		s.DType = DTypeFloat
	case allBool:
		s.DType = DTypeBool
	default:
		s.DType = DTypeString
	}
	return s
}

func isBoolText(s string) bool {
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

// FormatValue renders a value as text. Missing values render empty.
func FormatValue(v any) string {
	if IsNull(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// SortedDistinct returns the distinct non-missing values ordered by their
// text form.
func SortedDistinct(values []any) []any {
	seen := make(map[string]bool)
	var out []any
	for _, v := range values {
		if IsNull(v) {
			continue
		}
		k := FormatValue(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		fi, iok := ToFloat(out[i])
		fj, jok := ToFloat(out[j])
		if iok && jok {
			return fi < fj
		}
		return FormatValue(out[i]) < FormatValue(out[j])
	})
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return v
}

func writeCanonical(b *strings.Builder, v any) {
	if IsNull(v) {
		b.WriteString("\x00null")
		return
	}
	switch x := v.(type) {
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		// integral floats and ints compare equal as row keys
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			b.WriteString("i:")
			b.WriteString(strconv.FormatInt(int64(x), 10))
			return
		}
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(x))
	case string:
		b.WriteString("s:")
		b.WriteString(x)
	case time.Time:
		b.WriteString("t:")
		b.WriteString(x.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString("o:")
		b.WriteString(fmt.Sprint(x))
	}
}
