package transform

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

// ChangeCase rewrites text values to upper, lower or title case.
type ChangeCase struct {
	Columns []string `json:"columns"`
	Case    string   `json:"case"`
}

func newChangeCase(step models.TransformationStep) (Transformation, error) {
	t := &ChangeCase{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if !oneOf(t.Case, "upper", "lower", "title") {
		return nil, paramError(step.Type, "case", "must be one of upper, lower, title; got %q", t.Case)
	}
	return t, nil
}

func (t *ChangeCase) Type() models.TransformationType { return models.TypeChangeCase }
func (t *ChangeCase) InputColumns() []string          { return t.Columns }

// TargetColumns resolves the columns rewritten for df.
func (t *ChangeCase) TargetColumns(df *dataframe.DataFrame) []string {
	return targetColumns(df, t.Columns, dataframe.DTypeString)
}

func (t *ChangeCase) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	return mapStrings(df, t.TargetColumns(df), t.converter())
}

// Convert returns s in the target case.
func (t *ChangeCase) Convert(s string) string { return t.converter()(s) }

func (t *ChangeCase) converter() func(string) string {
	switch t.Case {
	case "upper":
		return strings.ToUpper
	case "lower":
		return strings.ToLower
	}
	return cases.Title(language.Und).String
}

// ReplaceText substitutes a literal or regular-expression pattern in text
// values.
type ReplaceText struct {
	Columns     []string `json:"columns"`
	Pattern     string   `json:"pattern"`
	Replacement string   `json:"replacement"`
	Regex       bool     `json:"regex"`

	re *regexp.Regexp
}

func newReplaceText(step models.TransformationStep) (Transformation, error) {
	t := &ReplaceText{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	t.Columns = stepColumns(step, t.Columns)
	if t.Pattern == "" {
		return nil, paramError(step.Type, "pattern", "is required")
	}
	if t.Regex {
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return nil, paramError(step.Type, "pattern", "invalid regular expression: %v", err)
		}
		t.re = re
	}
	return t, nil
}

func (t *ReplaceText) Type() models.TransformationType { return models.TypeReplaceText }
func (t *ReplaceText) InputColumns() []string          { return t.Columns }

// TargetColumns resolves the columns rewritten for df.
func (t *ReplaceText) TargetColumns(df *dataframe.DataFrame) []string {
	return targetColumns(df, t.Columns, dataframe.DTypeString)
}

// Matches reports whether s contains the pattern.
func (t *ReplaceText) Matches(s string) bool {
	if t.re != nil {
		return t.re.MatchString(s)
	}
	return strings.Contains(s, t.Pattern)
}

func (t *ReplaceText) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	replace := func(s string) string { return strings.ReplaceAll(s, t.Pattern, t.Replacement) }
	if t.re != nil {
		replace = func(s string) string { return t.re.ReplaceAllString(s, t.Replacement) }
	}
	return mapStrings(df, t.TargetColumns(df), replace)
}

// mapStrings applies fn to every string value of cols; other values pass
// through.
func mapStrings(df *dataframe.DataFrame, cols []string, fn func(string) string) (*dataframe.DataFrame, error) {
	out := df
	for _, col := range cols {
		s, ok := df.Column(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		values := make([]any, s.Len())
		for i, v := range s.Values {
			if str, ok := v.(string); ok {
				values[i] = fn(str)
				continue
			}
			values[i] = v
		}
		var err error
		out, err = out.WithSeries(&dataframe.Series{Name: col, DType: s.DType, Values: values})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
