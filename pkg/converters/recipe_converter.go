package converters

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/dataset-processor/internal/models"
)

// RecipeConverter encodes transformation recipes as YAML.
type RecipeConverter struct{}

func NewRecipeConverter() *RecipeConverter {
	return &RecipeConverter{}
}

func (c *RecipeConverter) Marshal(recipe *models.Recipe) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(recipe); err != nil {
		return nil, fmt.Errorf("failed to encode recipe: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode recipe: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a recipe, rejecting unknown fields and unsupported
// format versions.
func (c *RecipeConverter) Unmarshal(data []byte) (*models.Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var recipe models.Recipe
	if err := dec.Decode(&recipe); err != nil {
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}
	if recipe.Version == 0 {
		recipe.Version = models.RecipeVersion
	}
	if recipe.Version > models.RecipeVersion {
		return nil, fmt.Errorf("unsupported recipe version %d", recipe.Version)
	}
	for i, step := range recipe.Steps {
		if step.Type == "" {
			return nil, fmt.Errorf("recipe step %d has no type", i)
		}
		recipe.Steps[i].Parameters = normalizeYAML(step.Parameters).(map[string]any)
	}
	return &recipe, nil
}

// normalizeYAML converts nested yaml maps so parameters look the same as
// parameters decoded from JSON.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case nil:
		return map[string]any(nil)
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeValue(val)
		}
		return x
	}
	return v
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeValue(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = normalizeValue(val)
		}
		return x
	case int:
		return float64(x)
	}
	return v
}
