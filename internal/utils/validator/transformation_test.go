package validator

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

func newValidator() *TransformationValidator {
	return NewTransformationValidator(transform.NewRegistry(), logger.NewTestLogger(), nil)
}

func customers(t *testing.T) *dataframe.DataFrame {
	t.Helper()
	df, err := dataframe.FromRows(
		[]string{"name", "age", "city"},
		[][]any{
			{" Ann ", int64(30), "Oslo"},
			{"Bob", nil, "Rome"},
			{"Bob", nil, "Rome"},
			{"Cid", int64(41), nil},
		},
	)
	require.NoError(t, err)
	return df
}

func TestValidate_MissingColumnShortCircuits(t *testing.T) {
	v := newValidator()
	df := customers(t)

	steps := []models.TransformationStep{
		{Type: models.TypeFillMissing, Column: "salary", Parameters: map[string]any{"method": "mean"}},
		{Type: models.TypeDropColumns, Parameters: map[string]any{"columns": []any{"age", "zip", "country"}}},
		{Type: models.TypeConvertType, Column: "zip", Parameters: map[string]any{"target_type": "int"}},
	}
	for _, step := range steps {
		t.Run(string(step.Type), func(t *testing.T) {
			result := v.Validate(df, step)
			assert.False(t, result.IsValid)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], "Columns not found in dataset")
			assert.Empty(t, result.Warnings)
			assert.Empty(t, result.Info)
			assert.Empty(t, result.AffectedRows)
		})
	}

	result := v.Validate(df, steps[1])
	assert.Equal(t, "Columns not found in dataset: zip, country", result.Errors[0])
}

func TestValidate_ParameterErrorIsSingleError(t *testing.T) {
	v := newValidator()
	result := v.Validate(customers(t), models.TransformationStep{
		Type:       models.TypeChangeCase,
		Column:     "name",
		Parameters: map[string]any{"case": "sponge"},
	})
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "case")

	result = v.Validate(customers(t), models.TransformationStep{Type: "explode"})
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
}

func TestValidate_ChangeCaseCountsOnlyChangedValues(t *testing.T) {
	v := newValidator()
	df, err := dataframe.FromRows([]string{"code"}, [][]any{{"ABC"}, {"DEF"}})
	require.NoError(t, err)
	upper := models.TransformationStep{Type: models.TypeChangeCase, Column: "code", Parameters: map[string]any{"case": "upper"}}

	result := v.Validate(df, upper)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.AffectedRows)
	assert.Empty(t, result.Info)
	assert.Equal(t, []string{"No values will change"}, result.Warnings)

	mixed, err := dataframe.FromRows([]string{"code"}, [][]any{{"ABC"}, {"dEf"}, {"x1"}})
	require.NoError(t, err)
	result = v.Validate(mixed, upper)
	assert.Equal(t, []int{1, 2}, result.AffectedRows)
	assert.Equal(t, []string{"2 rows will change"}, result.Info)

	title := models.TransformationStep{Type: models.TypeChangeCase, Column: "code", Parameters: map[string]any{"case": "title"}}
	titled, err := dataframe.FromRows([]string{"code"}, [][]any{{"Ann Lee"}, {"bob"}})
	require.NoError(t, err)
	result = v.Validate(titled, title)
	assert.Equal(t, []int{1}, result.AffectedRows)
}

func TestValidate_RemoveDuplicates(t *testing.T) {
	v := newValidator()
	result := v.Validate(customers(t), models.TransformationStep{Type: models.TypeRemoveDuplicates})
	assert.True(t, result.IsValid)
	assert.Equal(t, []int{2}, result.AffectedRows)
	assert.Contains(t, result.Info[0], "Found 1 duplicate rows")

	clean, err := dataframe.FromRows([]string{"a"}, [][]any{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	result = v.Validate(clean, models.TransformationStep{Type: models.TypeRemoveDuplicates})
	assert.True(t, result.IsValid)
	assert.Equal(t, []string{"No duplicate rows found"}, result.Warnings)
}

func TestValidate_FillMissing(t *testing.T) {
	v := newValidator()
	df := customers(t)

	result := v.Validate(df, models.TransformationStep{
		Type: models.TypeFillMissing, Column: "age", Parameters: map[string]any{"method": "mean"},
	})
	assert.True(t, result.IsValid)
	assert.Equal(t, []int{1, 2}, result.AffectedRows)
	assert.Equal(t, []string{"Column age has 2 missing values"}, result.Info)

	// mean on a text column warns but stays valid
	result = v.Validate(df, models.TransformationStep{
		Type: models.TypeFillMissing, Column: "city", Parameters: map[string]any{"method": "mean"},
	})
	assert.True(t, result.IsValid)
	assert.NotEmpty(t, result.Warnings)
	assert.NotEmpty(t, result.Suggestions)
}

func TestValidate_TrimWhitespace(t *testing.T) {
	v := newValidator()
	result := v.Validate(customers(t), models.TransformationStep{Type: models.TypeTrimWhitespace})
	assert.True(t, result.IsValid)
	assert.Equal(t, []int{0}, result.AffectedRows)

	// trimming a numeric column converts it to text
	result = v.Validate(customers(t), models.TransformationStep{Type: models.TypeTrimWhitespace, Column: "age"})
	assert.True(t, result.IsValid)
	assert.Contains(t, result.Warnings[0], "not a text column")
}

func TestValidate_ConvertTypeFailuresAreWarnings(t *testing.T) {
	v := newValidator()
	df, err := dataframe.FromRows([]string{"n"}, [][]any{{"1"}, {"x"}, {"3"}})
	require.NoError(t, err)

	result := v.Validate(df, models.TransformationStep{
		Type: models.TypeConvertType, Column: "n", Parameters: map[string]any{"target_type": "int"},
	})
	assert.True(t, result.IsValid)
	assert.Equal(t, []int{1}, result.AffectedRows)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "will fail")
}

func TestValidate_FormulaChecksReferences(t *testing.T) {
	v := newValidator()
	df := customers(t)

	result := v.Validate(df, models.TransformationStep{
		Type:       models.TypeCreateFormula,
		Parameters: map[string]any{"new_column": "age2", "expression": "age * 2"},
	})
	assert.True(t, result.IsValid)

	result = v.Validate(df, models.TransformationStep{
		Type:       models.TypeCreateFormula,
		Parameters: map[string]any{"new_column": "x", "expression": "salary * 2"},
	})
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Empty(t, result.Warnings)
}

func TestValidate_AffectedRowsCapped(t *testing.T) {
	v := newValidator()
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{nil}
	}
	df, err := dataframe.FromRows([]string{"x"}, rows)
	require.NoError(t, err)

	result := v.Validate(df, models.TransformationStep{Type: models.TypeDropMissing})
	assert.True(t, result.IsValid)
	assert.Len(t, result.AffectedRows, 10)
	assert.Equal(t, 0, result.AffectedRows[0])
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	v := newValidator()
	df := customers(t)
	snapshot := df.Clone()

	for _, info := range transform.NewRegistry().Types() {
		v.Validate(df, models.TransformationStep{Type: info.Type, Column: "name"})
	}
	assert.True(t, df.Equal(snapshot))
}

func TestSuggestTransformations(t *testing.T) {
	v := newValidator()
	df, err := dataframe.FromRows(
		[]string{"id", "price", "label"},
		[][]any{
			{int64(1), "1.5", " a"},
			{int64(2), "2", "b"},
			{int64(2), "2", "b"},
			{int64(3), nil, math.NaN()},
		},
	)
	require.NoError(t, err)

	suggestions := v.SuggestTransformations(df)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 10)
	assert.Contains(t, suggestions[0], "Remove 1 duplicate rows")

	joined := fmt.Sprint(suggestions)
	assert.Contains(t, joined, "price looks numeric")
	assert.Contains(t, joined, "label has 1 values with surrounding whitespace")
	assert.Contains(t, joined, "fill_missing")
}

func TestSuggestTransformations_Capped(t *testing.T) {
	v := newValidator()
	names := make([]string, 15)
	row := make([]any, 15)
	for i := range names {
		names[i] = fmt.Sprintf("c%d", i)
	}
	df, err := dataframe.FromRows(names, [][]any{row, row})
	require.NoError(t, err)

	assert.Len(t, v.SuggestTransformations(df), 10)
	empty, err := dataframe.FromRows([]string{"a"}, nil)
	require.NoError(t, err)
	assert.Empty(t, v.SuggestTransformations(empty))
}
