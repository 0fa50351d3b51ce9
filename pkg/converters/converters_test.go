package converters

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

func TestCSVDecode_InfersTypesAndKeepsWhitespace(t *testing.T) {
	input := "\ufeffid,name,score,active\n1,  Ann ,2.5,true\n2,Bob,,false\n"
	df, err := NewCSVConverter().Decode(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "score", "active"}, df.ColumnNames())
	assert.Equal(t, map[string]dataframe.DType{
		"id":     dataframe.DTypeInt,
		"name":   dataframe.DTypeString,
		"score":  dataframe.DTypeFloat,
		"active": dataframe.DTypeBool,
	}, df.DTypes())
	assert.Equal(t, "  Ann ", df.Value(0, "name"))
	assert.Nil(t, df.Value(1, "score"))
}

func TestCSVDecode_Errors(t *testing.T) {
	_, err := NewCSVConverter().Decode(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = NewCSVConverter().Decode(strings.NewReader("a,a\n1,2\n"))
	assert.ErrorContains(t, err, "duplicate column")

	_, err = NewCSVConverter().Decode(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)

	limited := &CSVConverter{Comma: ',', MaxRows: 1}
	_, err = limited.Decode(strings.NewReader("a\n1\n2\n"))
	assert.ErrorContains(t, err, "limit of 1 rows")
}

func TestCSVEncode_PreservesFloatColumns(t *testing.T) {
	df, err := dataframe.FromRows([]string{"x", "label"}, [][]any{{30.0, "a,b"}, {nil, "c"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewCSVConverter().Encode(&buf, df))
	assert.Equal(t, "x,label\n30.0,\"a,b\"\n,c\n", buf.String())

	back, err := NewCSVConverter().Decode(&buf)
	require.NoError(t, err)
	assert.True(t, df.Equal(back))
}

func TestRecipeRoundTrip(t *testing.T) {
	c := NewRecipeConverter()
	recipe := &models.Recipe{
		Name:      "clean customers",
		Version:   models.RecipeVersion,
		DatasetID: "ds-1",
		Steps: []models.TransformationStep{
			{Type: models.TypeRemoveDuplicates, Parameters: map[string]any{"keep": "last"}},
			{Type: models.TypeRenameColumns, Parameters: map[string]any{"mapping": map[string]any{"a": "b"}}},
		},
	}

	data, err := c.Marshal(recipe)
	require.NoError(t, err)
	assert.Contains(t, string(data), "recipe-version: 1")

	back, err := c.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, recipe, back)
}

func TestRecipeUnmarshal_Rejects(t *testing.T) {
	c := NewRecipeConverter()

	_, err := c.Unmarshal([]byte("name: x\nunknown: 1\n"))
	assert.Error(t, err)

	_, err = c.Unmarshal([]byte("name: x\nrecipe-version: 9\n"))
	assert.ErrorContains(t, err, "unsupported recipe version")

	_, err = c.Unmarshal([]byte("name: x\nsteps:\n  - column: a\n"))
	assert.ErrorContains(t, err, "no type")

	r, err := c.Unmarshal([]byte("name: x\nsteps:\n  - type: fill_missing\n    column: a\n    parameters:\n      value: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Steps[0].Parameters["value"])
}
