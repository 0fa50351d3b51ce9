package transform

import (
	"sort"

	"github.com/feichai0017/dataset-processor/internal/models"
)

// Factory constructs a transformation from a step, validating parameters.
type Factory func(step models.TransformationStep) (Transformation, error)

// TypeInfo describes a catalog entry for clients.
type TypeInfo struct {
	Type        models.TransformationType `json:"type"`
	Description string                    `json:"description"`
	Parameters  []string                  `json:"parameters"`
}

type entry struct {
	info    TypeInfo
	factory Factory
}

// Registry maps transformation types to factories. It is built once at
// startup and injected into the engine and the validator.
type Registry struct {
	entries map[models.TransformationType]entry
}

// NewRegistry returns a registry with the built-in catalog.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[models.TransformationType]entry)}

	r.Register(TypeInfo{models.TypeRemoveDuplicates, "Remove duplicate rows", []string{"subset", "keep"}}, newRemoveDuplicates)
	r.Register(TypeInfo{models.TypeTrimWhitespace, "Strip leading and trailing whitespace", []string{"columns"}}, newTrimWhitespace)
	r.Register(TypeInfo{models.TypeFillMissing, "Impute missing values", []string{"columns", "value", "method"}}, newFillMissing)
	r.Register(TypeInfo{models.TypeDropMissing, "Drop rows with missing values", []string{"columns", "how"}}, newDropMissing)
	r.Register(TypeInfo{models.TypeChangeCase, "Change text casing", []string{"columns", "case"}}, newChangeCase)
	r.Register(TypeInfo{models.TypeReplaceText, "Replace text, optionally by regular expression", []string{"columns", "pattern", "replacement", "regex"}}, newReplaceText)
	r.Register(TypeInfo{models.TypeConvertType, "Convert column types", []string{"columns", "target_type", "errors", "format"}}, newConvertType)
	r.Register(TypeInfo{models.TypeOneHotEncode, "One-hot encode categorical columns", []string{"columns", "prefix", "drop_original", "max_categories"}}, newOneHotEncode)
	r.Register(TypeInfo{models.TypeLabelEncode, "Replace categories with integer codes", []string{"columns"}}, newLabelEncode)
	r.Register(TypeInfo{models.TypeExtractDatePart, "Extract date parts into new columns", []string{"columns", "parts", "format"}}, newExtractDatePart)
	r.Register(TypeInfo{models.TypeCreateFormula, "Derive a column from an expression", []string{"new_column", "expression"}}, newCreateFormula)
	r.Register(TypeInfo{models.TypeConditional, "Derive a column from a condition", []string{"new_column", "condition", "true_value", "false_value"}}, newConditionalColumn)
	r.Register(TypeInfo{models.TypeRenameColumns, "Rename columns", []string{"mapping"}}, newRenameColumns)
	r.Register(TypeInfo{models.TypeDropColumns, "Drop columns", []string{"columns"}}, newDropColumns)
	r.Register(TypeInfo{models.TypeRemoveOutliers, "Drop rows outside the IQR fences", []string{"columns", "factor"}}, newRemoveOutliers)

	return r
}

// Register adds or replaces a catalog entry.
func (r *Registry) Register(info TypeInfo, factory Factory) {
	r.entries[info.Type] = entry{info: info, factory: factory}
}

// Has reports whether t is in the catalog.
func (r *Registry) Has(t models.TransformationType) bool {
	_, ok := r.entries[t]
	return ok
}

// Build validates the step's parameters and returns the transformation.
func (r *Registry) Build(step models.TransformationStep) (Transformation, error) {
	e, ok := r.entries[step.Type]
	if !ok {
		return nil, paramError(step.Type, "type", "unknown transformation type %q", step.Type)
	}
	return e.factory(step)
}

// Types describes every registered entry, ordered by type.
func (r *Registry) Types() []TypeInfo {
	out := make([]TypeInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
