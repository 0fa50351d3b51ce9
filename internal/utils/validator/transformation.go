// internal/utils/validator/transformation.go
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// TransformationValidator inspects a frame and a proposed step without
// mutating either.
type TransformationValidator struct {
	registry *transform.Registry
	logger   logger.Logger
	config   *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxReportedRows int // affected row indices reported per result
	MaxSuggestions  int
}

// expressionChecker is implemented by steps whose column references live
// inside an expression.
type expressionChecker interface {
	Check(columns []string) error
}

// NewTransformationValidator creates a validator backed by the catalog.
func NewTransformationValidator(registry *transform.Registry, log logger.Logger, config *ValidatorConfig) *TransformationValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxReportedRows: 10,
			MaxSuggestions:  10,
		}
	}
	return &TransformationValidator{
		registry: registry,
		logger:   log,
		config:   config,
	}
}

// Validate checks step against df. Missing columns short-circuit with a
// single error; type mismatches only warn.
func (v *TransformationValidator) Validate(df *dataframe.DataFrame, step models.TransformationStep) *models.ValidationResult {
	result := models.NewValidationResult()

	tr, err := v.registry.Build(step)
	if err != nil {
		result.AddError(err.Error())
		return result
	}

	if missing := df.MissingColumns(tr.InputColumns()); len(missing) > 0 {
		result.AddError(fmt.Sprintf("Columns not found in dataset: %s", strings.Join(missing, ", ")))
		return result
	}

	if checker, ok := tr.(expressionChecker); ok {
		if err := checker.Check(df.ColumnNames()); err != nil {
			result.AddError(fmt.Sprintf("Invalid expression: %v", err))
			return result
		}
	}

	v.analyze(df, tr, result)

	v.logger.Debug("Validated transformation",
		logger.String("type", string(step.Type)),
		logger.Bool("valid", result.IsValid),
		logger.Int("warnings", len(result.Warnings)),
	)
	return result
}

func (v *TransformationValidator) analyze(df *dataframe.DataFrame, tr transform.Transformation, result *models.ValidationResult) {
	switch t := tr.(type) {
	case *transform.RemoveDuplicates:
		mask := dataframe.DuplicateMask(df, t.Subset, t.Keep == "last")
		n := v.collectRows(result, mask)
		if n == 0 {
			result.AddWarning("No duplicate rows found")
			return
		}
		result.AddInfo(fmt.Sprintf("Found %d duplicate rows that will be removed (keep=%s)", n, t.Keep))

	case *transform.TrimWhitespace:
		mask := make([]bool, df.NumRows())
		total := 0
		for _, col := range t.TargetColumns(df) {
			s, _ := df.Column(col)
			if s.DType != dataframe.DTypeString {
				result.AddWarning(fmt.Sprintf("Column %s is not a text column; values will be converted to text", col))
			}
			count := 0
			for r, val := range s.Values {
				if str, ok := val.(string); ok && str != strings.TrimSpace(str) {
					mask[r] = true
					count++
				}
			}
			if count > 0 {
				result.AddInfo(fmt.Sprintf("Column %s: %d values have leading or trailing whitespace", col, count))
			}
			total += count
		}
		v.collectRows(result, mask)
		if total == 0 {
			result.AddWarning("No leading or trailing whitespace found")
		}

	case *transform.FillMissing:
		mask := make([]bool, df.NumRows())
		total := 0
		for _, col := range t.TargetColumns(df) {
			s, _ := df.Column(col)
			nulls := s.NullCount()
			if t.SkipsColumn(s) {
				if nulls > 0 || len(t.Columns) > 0 {
					result.AddWarning(fmt.Sprintf("Column %s is not numeric; %s imputation will skip it", col, t.Method))
					result.Suggestions = append(result.Suggestions, fmt.Sprintf("Use method \"mode\" or a constant value for column %s", col))
				}
				continue
			}
			if nulls == 0 {
				continue
			}
			for r := range s.Values {
				if s.IsNull(r) {
					mask[r] = true
				}
			}
			result.AddInfo(fmt.Sprintf("Column %s has %d missing values", col, nulls))
			total += nulls
		}
		v.collectRows(result, mask)
		if total == 0 {
			result.AddWarning("No missing values found")
		}

	case *transform.DropMissing:
		n := v.collectRows(result, t.Mask(df))
		if n == 0 {
			result.AddWarning("No rows with missing values found")
			return
		}
		result.AddInfo(fmt.Sprintf("%d rows with missing values will be dropped", n))
		if pct := percent(n, df.NumRows()); pct > 50 {
			result.AddWarning(fmt.Sprintf("This will drop %.1f%% of the rows", pct))
		}

	case *transform.RemoveOutliers:
		for _, col := range t.TargetColumns(df) {
			if s, _ := df.Column(col); !s.DType.IsNumeric() {
				result.AddWarning(fmt.Sprintf("Column %s is not numeric and will be skipped", col))
			}
		}
		n := v.collectRows(result, t.Mask(df))
		if n == 0 {
			result.AddWarning("No outliers found")
			return
		}
		result.AddInfo(fmt.Sprintf("%d rows fall outside the IQR fences (factor %.2f)", n, t.Factor))

	case *transform.ChangeCase:
		v.analyzeText(df, t.TargetColumns(df), len(t.Columns) > 0, result, func(s string) bool {
			return t.Convert(s) != s
		})

	case *transform.ReplaceText:
		v.analyzeText(df, t.TargetColumns(df), len(t.Columns) > 0, result, t.Matches)

	case *transform.ConvertType:
		mask := make([]bool, df.NumRows())
		for _, col := range t.Columns {
			s, _ := df.Column(col)
			if s.DType == t.TargetDType() {
				result.AddWarning(fmt.Sprintf("Column %s is already %s", col, s.DType))
				continue
			}
			failures := 0
			for r, val := range s.Values {
				if dataframe.IsNull(val) {
					continue
				}
				if _, ok := t.Convert(val); !ok {
					mask[r] = true
					failures++
				}
			}
			if failures == 0 {
				result.AddInfo(fmt.Sprintf("Column %s: all values convert to %s", col, t.TargetType))
				continue
			}
			if t.Errors == "coerce" {
				result.AddWarning(fmt.Sprintf("Column %s: %d values cannot be converted to %s and will become missing", col, failures, t.TargetType))
			} else {
				result.AddWarning(fmt.Sprintf("Column %s: %d values cannot be converted to %s; the transformation will fail", col, failures, t.TargetType))
				result.Suggestions = append(result.Suggestions, "Set errors to \"coerce\" to turn unconvertible values into missing values")
			}
		}
		v.collectRows(result, mask)

	case *transform.OneHotEncode:
		for _, col := range t.Columns {
			s, _ := df.Column(col)
			n := len(dataframe.SortedDistinct(s.Values))
			result.AddInfo(fmt.Sprintf("Column %s has %d categories", col, n))
			if n > t.MaxCategories {
				result.AddWarning(fmt.Sprintf("Column %s exceeds the limit of %d categories", col, t.MaxCategories))
			}
			if s.DType.IsNumeric() {
				result.AddWarning(fmt.Sprintf("Column %s is numeric; one-hot encoding treats every value as a category", col))
			}
		}

	case *transform.LabelEncode:
		for _, col := range t.Columns {
			s, _ := df.Column(col)
			result.AddInfo(fmt.Sprintf("Column %s has %d distinct values", col, len(dataframe.SortedDistinct(s.Values))))
		}

	case *transform.ExtractDatePart:
		mask := make([]bool, df.NumRows())
		for _, col := range t.Columns {
			s, _ := df.Column(col)
			bad := 0
			for r, val := range s.Values {
				if dataframe.IsNull(val) {
					continue
				}
				if _, ok := transform.ParseTime(val, t.Format); !ok {
					mask[r] = true
					bad++
				}
			}
			if bad > 0 {
				result.AddWarning(fmt.Sprintf("Column %s: %d values are not dates and will yield missing parts", col, bad))
			}
		}
		v.collectRows(result, mask)
		result.AddInfo(fmt.Sprintf("%d new columns will be added", len(t.Columns)*len(t.Parts)))

	case *transform.CreateFormula:
		if df.HasColumn(t.NewColumn) {
			result.AddWarning(fmt.Sprintf("Column %s already exists and will be overwritten", t.NewColumn))
		}
	case *transform.ConditionalColumn:
		if df.HasColumn(t.NewColumn) {
			result.AddWarning(fmt.Sprintf("Column %s already exists and will be overwritten", t.NewColumn))
		}

	case *transform.RenameColumns:
		for _, from := range t.InputColumns() {
			to := t.Mapping[from]
			if _, renamedAway := t.Mapping[to]; df.HasColumn(to) && !renamedAway {
				result.AddWarning(fmt.Sprintf("Renaming %s to %s collides with an existing column", from, to))
			}
		}

	case *transform.DropColumns:
		result.AddInfo(fmt.Sprintf("%d columns will be dropped", len(t.Columns)))
		if len(t.Columns) == df.NumColumns() {
			result.AddWarning("All columns will be dropped")
		}
	}
}

func (v *TransformationValidator) analyzeText(df *dataframe.DataFrame, cols []string, explicit bool, result *models.ValidationResult, changes func(string) bool) {
	mask := make([]bool, df.NumRows())
	for _, col := range cols {
		s, _ := df.Column(col)
		if explicit && s.DType != dataframe.DTypeString {
			result.AddWarning(fmt.Sprintf("Column %s is not a text column; only text values are changed", col))
		}
		for r, val := range s.Values {
			if str, ok := val.(string); ok && changes(str) {
				mask[r] = true
			}
		}
	}
	n := v.collectRows(result, mask)
	if n == 0 {
		result.AddWarning("No values will change")
		return
	}
	result.AddInfo(fmt.Sprintf("%d rows will change", n))
}

// collectRows records the first MaxReportedRows marked rows and returns the
// number of marked rows.
func (v *TransformationValidator) collectRows(result *models.ValidationResult, mask []bool) int {
	n := 0
	for r, marked := range mask {
		if !marked {
			continue
		}
		n++
		if len(result.AffectedRows) < v.config.MaxReportedRows {
			result.AffectedRows = append(result.AffectedRows, r)
		}
	}
	return n
}

// SuggestTransformations scans df for common quality problems and returns
// advisory suggestions. It never fails.
func (v *TransformationValidator) SuggestTransformations(df *dataframe.DataFrame) (suggestions []string) {
	suggestions = []string{}
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("Suggestion scan aborted", logger.Any("panic", r))
		}
		if len(suggestions) > v.config.MaxSuggestions {
			suggestions = suggestions[:v.config.MaxSuggestions]
		}
	}()
	if df == nil || df.NumRows() == 0 {
		return suggestions
	}

	if dups := dataframe.CountDuplicates(df, nil); dups > 0 {
		suggestions = append(suggestions, fmt.Sprintf("Remove %d duplicate rows with remove_duplicates", dups))
	}

	for _, s := range df.Series() {
		if nulls := s.NullCount(); nulls > 0 {
			method := "mode"
			if s.DType.IsNumeric() {
				method = "median"
			}
			suggestions = append(suggestions, fmt.Sprintf("Column %s has %d missing values (%.1f%%); fill them with fill_missing method %q",
				s.Name, nulls, percent(nulls, s.Len()), method))
		}
	}

	for _, s := range df.Series() {
		if s.DType != dataframe.DTypeString {
			continue
		}
		padded, numeric, nonNull := 0, 0, 0
		for _, val := range s.Values {
			str, ok := val.(string)
			if !ok {
				continue
			}
			nonNull++
			trimmed := strings.TrimSpace(str)
			if trimmed != str {
				padded++
			}
			if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
				numeric++
			}
		}
		if padded > 0 {
			suggestions = append(suggestions, fmt.Sprintf("Column %s has %d values with surrounding whitespace; apply trim_whitespace", s.Name, padded))
		}
		if nonNull > 0 && numeric == nonNull {
			suggestions = append(suggestions, fmt.Sprintf("Column %s looks numeric; convert it with convert_type to float", s.Name))
		}
	}

	return suggestions
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
