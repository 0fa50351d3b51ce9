package dataframe

import (
	"math"
	"sort"
)

// ColumnStats summarizes a single column.
type ColumnStats struct {
	Name      string   `json:"name"`
	DType     DType    `json:"dtype"`
	Count     int      `json:"count"`
	NullCount int      `json:"null_count"`
	Unique    int      `json:"unique"`
	Mean      *float64 `json:"mean,omitempty"`
	Std       *float64 `json:"std,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Q1        *float64 `json:"q1,omitempty"`
	Median    *float64 `json:"median,omitempty"`
	Q3        *float64 `json:"q3,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Outliers  int      `json:"outliers,omitempty"`
}

// FrameStats summarizes a frame. It backs the stats_before/stats_after
// payloads of previews.
type FrameStats struct {
	RowCount        int                    `json:"row_count"`
	ColumnCount     int                    `json:"column_count"`
	MissingCells    int                    `json:"missing_cells"`
	MissingByColumn map[string]int         `json:"missing_by_column"`
	DuplicateRows   int                    `json:"duplicate_rows"`
	DTypes          map[string]DType       `json:"dtypes"`
	Columns         map[string]ColumnStats `json:"columns"`
}

// Describe computes frame statistics.
func Describe(df *DataFrame) *FrameStats {
	stats := &FrameStats{
		RowCount:        df.NumRows(),
		ColumnCount:     df.NumColumns(),
		MissingByColumn: make(map[string]int, df.NumColumns()),
		DTypes:          df.DTypes(),
		Columns:         make(map[string]ColumnStats, df.NumColumns()),
	}
	for _, s := range df.series {
		cs := DescribeSeries(s)
		stats.MissingByColumn[s.Name] = cs.NullCount
		stats.MissingCells += cs.NullCount
		stats.Columns[s.Name] = cs
	}
	stats.DuplicateRows = CountDuplicates(df, nil)
	return stats
}

// DescribeSeries computes column statistics. Numeric summaries are only
// filled for numeric dtypes.
func DescribeSeries(s *Series) ColumnStats {
	cs := ColumnStats{Name: s.Name, DType: s.DType}
	distinct := make(map[string]struct{})
	for _, v := range s.Values {
		if IsNull(v) {
			cs.NullCount++
			continue
		}
		cs.Count++
		distinct[FormatValue(v)] = struct{}{}
	}
	cs.Unique = len(distinct)
	if !s.DType.IsNumeric() {
		return cs
	}
	values := s.Floats()
	if len(values) == 0 {
		return cs
	}
	sorted := sortedCopy(values)
	mean := Mean(values)
	std := Std(values)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	q1, med, q3 := Quantile(sorted, 0.25), Quantile(sorted, 0.5), Quantile(sorted, 0.75)
	cs.Mean, cs.Std, cs.Min, cs.Max = &mean, &std, &lo, &hi
	cs.Q1, cs.Median, cs.Q3 = &q1, &med, &q3
	lower, upper := IQRFencesSorted(sorted, 1.5)
	for _, v := range values {
		if v < lower || v > upper {
			cs.Outliers++
		}
	}
	return cs
}

// Mean of values; NaN for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std is the sample standard deviation (ddof=1).
func Std(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// Median of values; NaN for an empty input.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return Quantile(sortedCopy(values), 0.5)
}

// Quantile computes the q-th quantile of sorted values with linear
// interpolation between closest ranks.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// IQRFences returns Q1 - factor·IQR and Q3 + factor·IQR.
func IQRFences(values []float64, factor float64) (lower, upper float64) {
	return IQRFencesSorted(sortedCopy(values), factor)
}

// IQRFencesSorted is IQRFences for already sorted input.
func IQRFencesSorted(sorted []float64, factor float64) (lower, upper float64) {
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - factor*iqr, q3 + factor*iqr
}

// Mode returns the most frequent non-missing value; ties resolve to the
// smallest by SortedDistinct order.
func Mode(values []any) (any, bool) {
	counts := make(map[string]int)
	for _, v := range values {
		if !IsNull(v) {
			counts[FormatValue(v)]++
		}
	}
	if len(counts) == 0 {
		return nil, false
	}
	var best any
	bestCount := 0
	for _, v := range SortedDistinct(values) {
		if c := counts[FormatValue(v)]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best, true
}

// DuplicateMask marks rows whose key over subset was already seen. With
// keepLast the scan runs from the end so the last occurrence survives.
// A nil subset means all columns.
func DuplicateMask(df *DataFrame, subset []string, keepLast bool) []bool {
	if len(subset) == 0 {
		subset = df.ColumnNames()
	}
	n := df.NumRows()
	mask := make([]bool, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		r := i
		if keepLast {
			r = n - 1 - i
		}
		key := df.RowKey(r, subset)
		if _, ok := seen[key]; ok {
			mask[r] = true
			continue
		}
		seen[key] = struct{}{}
	}
	return mask
}

// CountDuplicates counts rows that repeat an earlier row.
func CountDuplicates(df *DataFrame, subset []string) int {
	n := 0
	for _, dup := range DuplicateMask(df, subset, false) {
		if dup {
			n++
		}
	}
	return n
}

// QualityScore rates a frame in [0,100] as the mean of completeness and
// row uniqueness.
func QualityScore(df *DataFrame) float64 {
	rows, cols := df.NumRows(), df.NumColumns()
	if rows == 0 || cols == 0 {
		return 0
	}
	missing := 0
	for _, s := range df.series {
		missing += s.NullCount()
	}
	completeness := 1 - float64(missing)/float64(rows*cols)
	uniqueness := 1 - float64(CountDuplicates(df, nil))/float64(rows)
	return math.Round((completeness+uniqueness)/2*10000) / 100
}

// CountChangedRows counts rows of before that do not survive unchanged in
// after. Equal row counts compare positionally over the union of columns.
// Different row counts match rows as a multiset over the columns of before.
func CountChangedRows(before, after *DataFrame) int {
	if before.NumRows() == after.NumRows() {
		cols := unionColumns(before, after)
		changed := 0
		for r := 0; r < before.NumRows(); r++ {
			for _, c := range cols {
				bs, bok := before.Column(c)
				as, aok := after.Column(c)
				if bok != aok {
					changed++
					break
				}
				if !ValuesEqual(bs.Values[r], as.Values[r]) {
					changed++
					break
				}
			}
		}
		return changed
	}

	cols := before.ColumnNames()
	for _, c := range cols {
		if !after.HasColumn(c) {
			return before.NumRows()
		}
	}
	remaining := make(map[string]int, after.NumRows())
	for r := 0; r < after.NumRows(); r++ {
		remaining[after.RowKey(r, cols)]++
	}
	changed := 0
	for r := 0; r < before.NumRows(); r++ {
		key := before.RowKey(r, cols)
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		changed++
	}
	return changed
}

// ChangedColumns lists columns that were added, removed or whose values
// differ between the frames.
func ChangedColumns(before, after *DataFrame) []string {
	var out []string
	for _, c := range unionColumns(before, after) {
		bs, bok := before.Column(c)
		as, aok := after.Column(c)
		if bok != aok || bs.DType != as.DType || bs.Len() != as.Len() {
			out = append(out, c)
			continue
		}
		for r := range bs.Values {
			if !ValuesEqual(bs.Values[r], as.Values[r]) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func unionColumns(a, b *DataFrame) []string {
	cols := a.ColumnNames()
	for _, c := range b.ColumnNames() {
		if !a.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
