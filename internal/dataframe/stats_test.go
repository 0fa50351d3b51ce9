package dataframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantileLinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.75, Quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 2.5, Quantile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 3.25, Quantile(sorted, 0.75), 1e-9)
	assert.Equal(t, 1.0, Quantile(sorted, 0))
	assert.Equal(t, 4.0, Quantile(sorted, 1))
}

func TestIQRFences(t *testing.T) {
	lower, upper := IQRFences([]float64{4, 1, 3, 2}, 1.5)

	// Q1=1.75, Q3=3.25, IQR=1.5
	assert.InDelta(t, -0.5, lower, 1e-9)
	assert.InDelta(t, 5.5, upper, 1e-9)
}

func TestDescribe(t *testing.T) {
	df, err := FromRows([]string{"n", "s"}, [][]any{
		{1, "a"},
		{1, "a"},
		{3, nil},
		{100, "b"},
		{2, "c"},
	})
	require.NoError(t, err)

	stats := Describe(df)

	assert.Equal(t, 5, stats.RowCount)
	assert.Equal(t, 2, stats.ColumnCount)
	assert.Equal(t, 1, stats.MissingCells)
	assert.Equal(t, 1, stats.MissingByColumn["s"])
	assert.Equal(t, 1, stats.DuplicateRows)

	n := stats.Columns["n"]
	require.NotNil(t, n.Mean)
	assert.InDelta(t, 21.4, *n.Mean, 1e-9)
	assert.Equal(t, 1.0, *n.Min)
	assert.Equal(t, 100.0, *n.Max)
	assert.Equal(t, 1, n.Outliers)
	assert.Nil(t, stats.Columns["s"].Mean)
}

func TestDuplicateMask(t *testing.T) {
	df, err := FromRows([]string{"id", "name"}, [][]any{
		{1, "A"},
		{1, "A"},
		{2, "B"},
		{1, "C"},
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, false, false}, DuplicateMask(df, nil, false))
	assert.Equal(t, []bool{true, false, false, false}, DuplicateMask(df, nil, true))
	assert.Equal(t, []bool{false, true, false, true}, DuplicateMask(df, []string{"id"}, false))
}

func TestModeAndMedian(t *testing.T) {
	mode, ok := Mode([]any{"b", "a", "b", nil})
	require.True(t, ok)
	assert.Equal(t, "b", mode)

	_, ok = Mode([]any{nil})
	assert.False(t, ok)

	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestCountChangedRows(t *testing.T) {
	before, err := FromRows([]string{"s"}, [][]any{{"  a "}, {"b"}})
	require.NoError(t, err)
	after, err := FromRows([]string{"s"}, [][]any{{"a"}, {"b"}})
	require.NoError(t, err)

	assert.Equal(t, 1, CountChangedRows(before, after))
	assert.Equal(t, []string{"s"}, ChangedColumns(before, after))

	withDups, err := FromRows([]string{"id"}, [][]any{{1}, {1}, {2}})
	require.NoError(t, err)
	deduped, err := FromRows([]string{"id"}, [][]any{{1}, {2}})
	require.NoError(t, err)

	assert.Equal(t, 1, CountChangedRows(withDups, deduped))
}

func TestQualityScore(t *testing.T) {
	clean, err := FromRows([]string{"a"}, [][]any{{1}, {2}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, QualityScore(clean))

	dirty, err := FromRows([]string{"a"}, [][]any{{1}, {1}, {nil}, {2}})
	require.NoError(t, err)
	// completeness 0.75, uniqueness 0.75
	assert.Equal(t, 75.0, QualityScore(dirty))
}

func TestHashes(t *testing.T) {
	a, err := FromRows([]string{"x", "y"}, [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	b, err := FromRows([]string{"x", "y"}, [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	c, err := FromRows([]string{"x", "y"}, [][]any{{1, "a"}, {2, "c"}})
	require.NoError(t, err)

	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.NotEqual(t, ContentHash(a), ContentHash(c))
	assert.Equal(t, SchemaHash(a), SchemaHash(c))
	assert.Len(t, ContentHash(a), 32)

	renamed, err := a.Rename(map[string]string{"y": "z"})
	require.NoError(t, err)
	assert.Equal(t, ColumnHashes(a)["y"], ColumnHashes(renamed)["z"])
	assert.NotEqual(t, SchemaHash(a), SchemaHash(renamed))
}
