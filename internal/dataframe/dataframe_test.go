package dataframe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame(t *testing.T) *DataFrame {
	t.Helper()
	df, err := FromRows([]string{"id", "name", "score"}, [][]any{
		{1, "A", 10.5},
		{1, "A", 10.5},
		{2, "B", nil},
		{3, " C ", 99.0},
	})
	require.NoError(t, err)
	return df
}

func TestNew_RejectsMismatchedLengths(t *testing.T) {
	_, err := New(
		&Series{Name: "a", DType: DTypeInt, Values: []any{int64(1)}},
		&Series{Name: "b", DType: DTypeInt, Values: []any{int64(1), int64(2)}},
	)
	require.Error(t, err)

	_, err = New(
		&Series{Name: "a", Values: []any{}},
		&Series{Name: "a", Values: []any{}},
	)
	require.Error(t, err)
}

func TestFromRows_InfersDTypes(t *testing.T) {
	df := sampleFrame(t)

	dtypes := df.DTypes()
	assert.Equal(t, DTypeInt, dtypes["id"])
	assert.Equal(t, DTypeString, dtypes["name"])
	assert.Equal(t, DTypeFloat, dtypes["score"])
	assert.Equal(t, 4, df.NumRows())
	assert.Equal(t, 3, df.NumColumns())
	assert.Equal(t, []string{"id", "name", "score"}, df.ColumnNames())
}

func TestInferSeries(t *testing.T) {
	tests := []struct {
		name  string
		raw   []string
		dtype DType
		first any
	}{
		{"ints", []string{"1", "", "3"}, DTypeInt, int64(1)},
		{"floats", []string{"1", "2.5"}, DTypeFloat, 1.0},
		{"bools", []string{"True", "false"}, DTypeBool, true},
		{"strings keep whitespace", []string{" a ", "b"}, DTypeString, " a "},
		{"padded numbers stay text", []string{" 1", "2"}, DTypeString, " 1"},
		{"all empty", []string{"", ""}, DTypeFloat, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := InferSeries("c", tt.raw)
			assert.Equal(t, tt.dtype, s.DType)
			assert.Equal(t, tt.first, s.Values[0])
		})
	}
}

func TestHeadAndSelect(t *testing.T) {
	df := sampleFrame(t)

	head := df.Head(2)
	assert.Equal(t, 2, head.NumRows())
	assert.Equal(t, int64(1), head.Value(1, "id"))

	assert.Equal(t, 4, df.Head(100).NumRows())
	assert.Equal(t, 0, df.Head(-1).NumRows())

	filtered := df.FilterRows([]bool{false, true, false, true})
	assert.Equal(t, 2, filtered.NumRows())
	assert.Equal(t, " C ", filtered.Value(1, "name"))
}

func TestWithSeriesDoesNotMutateSource(t *testing.T) {
	df := sampleFrame(t)
	orig, _ := df.Column("name")

	replaced, err := df.WithSeries(&Series{Name: "name", DType: DTypeString, Values: []any{"x", "x", "x", "x"}})
	require.NoError(t, err)

	assert.Equal(t, "x", replaced.Value(0, "name"))
	assert.Equal(t, "A", orig.Values[0])
	assert.Equal(t, "A", df.Value(0, "name"))

	_, err = df.WithSeries(&Series{Name: "bad", Values: []any{1}})
	assert.Error(t, err)
}

func TestDropRenameInsert(t *testing.T) {
	df := sampleFrame(t)

	dropped := df.Drop("score", "unknown")
	assert.Equal(t, []string{"id", "name"}, dropped.ColumnNames())

	renamed, err := df.Rename(map[string]string{"name": "label"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "score"}, renamed.ColumnNames())

	_, err = df.Rename(map[string]string{"name": "id"})
	assert.Error(t, err)

	inserted, err := df.InsertAfter("id", NewSeries("flag", []any{true, true, false, false}))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "flag", "name", "score"}, inserted.ColumnNames())
}

func TestRecordsConvertsMissingToNull(t *testing.T) {
	df := sampleFrame(t)

	records := df.Records()
	require.Len(t, records, 4)
	assert.Nil(t, records[2]["score"])
	assert.Equal(t, "B", records[2]["name"])
}

func TestEqualAndClone(t *testing.T) {
	df := sampleFrame(t)
	clone := df.Clone()

	assert.True(t, df.Equal(clone))

	changed, err := clone.WithSeries(&Series{Name: "id", DType: DTypeInt, Values: []any{int64(9), int64(1), int64(2), int64(3)}})
	require.NoError(t, err)
	assert.False(t, df.Equal(changed))
}

func TestIsNullAndValuesEqual(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(math.NaN()))
	assert.False(t, IsNull(""))
	assert.True(t, ValuesEqual(nil, math.NaN()))
	assert.False(t, ValuesEqual(int64(1), 1.0))
	assert.True(t, ValuesEqual("a", "a"))
}

func TestSortedDistinct(t *testing.T) {
	got := SortedDistinct([]any{"b", "a", nil, "b", "c"})
	assert.Equal(t, []any{"a", "b", "c"}, got)

	nums := SortedDistinct([]any{int64(10), int64(2), int64(10)})
	assert.Equal(t, []any{int64(2), int64(10)}, nums)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "3", FormatValue(int64(3)))
	assert.Equal(t, "2.5", FormatValue(2.5))
	assert.Equal(t, "true", FormatValue(true))
}
