package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
)

const (
	maxExpressionBytes = 4 * 1024
	stepsPerRow        = uint64(10_000)
)

// reserved words cannot be bound as column variables
var starlarkReserved = map[string]bool{
	"and": true, "as": true, "assert": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "load": true, "nonlocal": true, "not": true, "or": true,
	"pass": true, "raise": true, "return": true, "try": true, "while": true, "with": true,
	"yield": true, "row": true, "True": true, "False": true, "None": true,
}

// CreateFormula derives a column from a Starlark expression evaluated per
// row. Columns with identifier-safe names are bound as variables; any column
// is reachable as row["name"].
type CreateFormula struct {
	NewColumn  string `json:"new_column"`
	Expression string `json:"expression"`
}

func newCreateFormula(step models.TransformationStep) (Transformation, error) {
	t := &CreateFormula{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	if t.NewColumn == "" {
		t.NewColumn = step.Column
	}
	if t.NewColumn == "" {
		return nil, paramError(step.Type, "new_column", "is required")
	}
	if err := checkExpression(step.Type, "expression", t.Expression); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *CreateFormula) Type() models.TransformationType { return models.TypeCreateFormula }
func (t *CreateFormula) InputColumns() []string          { return nil }

// Check compiles the expression against the given columns.
func (t *CreateFormula) Check(columns []string) error {
	_, err := compileRowExpr(t.Expression, columns)
	return err
}

func (t *CreateFormula) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	results, err := evalRows(df, t.Expression)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(results))
	for i, v := range results {
		values[i] = fromStarlark(v)
	}
	return df.WithSeries(dataframe.NewSeries(t.NewColumn, values))
}

// ConditionalColumn derives a column holding TrueValue where the condition
// holds and FalseValue elsewhere.
type ConditionalColumn struct {
	NewColumn  string `json:"new_column"`
	Condition  string `json:"condition"`
	TrueValue  any    `json:"true_value"`
	FalseValue any    `json:"false_value"`
}

func newConditionalColumn(step models.TransformationStep) (Transformation, error) {
	t := &ConditionalColumn{}
	if err := decodeParameters(step.Type, step.Parameters, t); err != nil {
		return nil, err
	}
	if t.NewColumn == "" {
		t.NewColumn = step.Column
	}
	if t.NewColumn == "" {
		return nil, paramError(step.Type, "new_column", "is required")
	}
	if err := checkExpression(step.Type, "condition", t.Condition); err != nil {
		return nil, err
	}
	t.TrueValue = jsonScalar(t.TrueValue)
	t.FalseValue = jsonScalar(t.FalseValue)
	return t, nil
}

func (t *ConditionalColumn) Type() models.TransformationType { return models.TypeConditional }
func (t *ConditionalColumn) InputColumns() []string          { return nil }

// Check compiles the condition against the given columns.
func (t *ConditionalColumn) Check(columns []string) error {
	_, err := compileRowExpr(t.Condition, columns)
	return err
}

func (t *ConditionalColumn) Apply(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	results, err := evalRows(df, t.Condition)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(results))
	for i, v := range results {
		if v != nil && bool(v.Truth()) {
			values[i] = t.TrueValue
		} else {
			values[i] = t.FalseValue
		}
	}
	return df.WithSeries(dataframe.NewSeries(t.NewColumn, values))
}

func checkExpression(t models.TransformationType, field, expr string) error {
	if strings.TrimSpace(expr) == "" {
		return paramError(t, field, "is required")
	}
	if len(expr) > maxExpressionBytes {
		return paramError(t, field, "exceeds %d bytes", maxExpressionBytes)
	}
	opts := &syntax.FileOptions{}
	if _, err := opts.ParseExpr("<"+field+">", expr, 0); err != nil {
		return paramError(t, field, "invalid expression: %v", err)
	}
	return nil
}

func compileRowExpr(expr string, columns []string) (starlark.Callable, error) {
	var b strings.Builder
	b.WriteString("def __eval(row):\n")
	for _, c := range columns {
		if !isIdent(c) || starlarkReserved[c] {
			continue
		}
		b.WriteString("    ")
		b.WriteString(c)
		b.WriteString(" = row[")
		b.WriteString(strconv.Quote(c))
		b.WriteString("]\n")
	}
	b.WriteString("    return (")
	b.WriteString(expr)
	b.WriteString(")\n")

	thread := &starlark.Thread{Name: "formula-compile"}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "formula.star", b.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expr, err)
	}
	fn, ok := globals["__eval"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("compile expression %q: no callable produced", expr)
	}
	return fn, nil
}

// evalRows evaluates expr for every row. A failing row that holds missing
// values yields nil so missing inputs propagate; other failures abort.
func evalRows(df *dataframe.DataFrame, expr string) ([]starlark.Value, error) {
	fn, err := compileRowExpr(expr, df.ColumnNames())
	if err != nil {
		return nil, err
	}
	thread := &starlark.Thread{Name: "formula-eval"}
	thread.SetMaxExecutionSteps(stepsPerRow * uint64(df.NumRows()+1))

	series := df.Series()
	out := make([]starlark.Value, df.NumRows())
	for r := 0; r < df.NumRows(); r++ {
		row := starlark.NewDict(len(series))
		hasNull := false
		for _, s := range series {
			v := s.Values[r]
			if dataframe.IsNull(v) {
				hasNull = true
			}
			if err := row.SetKey(starlark.String(s.Name), toStarlark(v)); err != nil {
				return nil, err
			}
		}
		res, err := starlark.Call(thread, fn, starlark.Tuple{row}, nil)
		if err != nil {
			if hasNull {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		out[r] = res
	}
	return out, nil
}

func toStarlark(v any) starlark.Value {
	if dataframe.IsNull(v) {
		return starlark.None
	}
	switch x := v.(type) {
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	case time.Time:
		return starlark.String(x.Format(time.RFC3339))
	}
	return starlark.String(fmt.Sprint(v))
}

func fromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n
		}
		f, _ := starlark.AsFloat(x)
		return f
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case starlark.Bool:
		return bool(x)
	case starlark.String:
		return string(x)
	}
	return v.String()
}

func jsonScalar(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return int64(f)
	}
	return v
}

func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}
