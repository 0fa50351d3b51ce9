// Package transform is the catalog of named, parameterized dataframe
// operations. Every operation is pure: Apply never mutates its input.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

// Transformation is a constructed catalog operation
type Transformation interface {
	// Type returns the catalog name
	Type() models.TransformationType

	// InputColumns lists the columns that must exist in the frame
	InputColumns() []string

	// Apply returns a new frame; the input is never modified
	Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error)
}

// ParameterError reports structurally invalid parameters. It is returned at
// construction time and never reaches a dataset.
type ParameterError struct {
	Type    models.TransformationType
	Field   string
	Message string
}

func (e *ParameterError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid parameters for %s: %s: %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid parameters for %s: %s", e.Type, e.Message)
}

func paramError(t models.TransformationType, field, format string, args ...any) *ParameterError {
	return &ParameterError{Type: t, Field: field, Message: fmt.Sprintf(format, args...)}
}

// decodeParameters maps the generic parameter map onto a typed struct.
// Unknown keys are rejected.
func decodeParameters(t models.TransformationType, params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return paramError(t, "", "parameters are not serializable: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return paramError(t, "", "%v", err)
	}
	return nil
}

// stepColumns falls back to the step's column/columns fields when the
// parameters do not name any.
func stepColumns(step models.TransformationStep, fromParams []string) []string {
	if len(fromParams) > 0 {
		return fromParams
	}
	if len(step.Columns) > 0 {
		return append([]string(nil), step.Columns...)
	}
	if step.Column != "" {
		return []string{step.Column}
	}
	return nil
}

// targetColumns resolves explicit columns or falls back to the columns whose
// dtype matches.
func targetColumns(df *dataframe.DataFrame, explicit []string, dtypes ...dataframe.DType) []string {
	if len(explicit) > 0 {
		return explicit
	}
	var out []string
	for _, s := range df.Series() {
		for _, d := range dtypes {
			if s.DType == d {
				out = append(out, s.Name)
				break
			}
		}
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
