package converters

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
)

// ErrEmptyDataset is returned when the input has no header row.
var ErrEmptyDataset = errors.New("dataset has no header row")

// FrameConverter 定义数据帧编解码接口
type FrameConverter interface {
	Decode(r io.Reader) (*dataframe.DataFrame, error)
	Encode(w io.Writer, df *dataframe.DataFrame) error
}

// CSVConverter reads and writes comma separated datasets. The first record is
// the header; cell types are inferred per column.
type CSVConverter struct {
	Comma   rune
	MaxRows int // 0 means unlimited
}

func NewCSVConverter() *CSVConverter {
	return &CSVConverter{Comma: ','}
}

func (c *CSVConverter) Decode(r io.Reader) (*dataframe.DataFrame, error) {
	reader := csv.NewReader(r)
	reader.Comma = c.Comma
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
			header[i] = name
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q in header", name)
		}
		seen[name] = true
	}

	columns := make([][]string, len(header))
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rows+1, err)
		}
		if c.MaxRows > 0 && rows >= c.MaxRows {
			return nil, fmt.Errorf("dataset exceeds the limit of %d rows", c.MaxRows)
		}
		for i := range columns {
			columns[i] = append(columns[i], record[i])
		}
		rows++
	}

	series := make([]*dataframe.Series, len(header))
	for i, name := range header {
		raw := columns[i]
		if raw == nil {
			raw = []string{}
		}
		series[i] = dataframe.InferSeries(name, raw)
	}
	return dataframe.New(series...)
}

func (c *CSVConverter) Encode(w io.Writer, df *dataframe.DataFrame) error {
	writer := csv.NewWriter(w)
	writer.Comma = c.Comma

	if err := writer.Write(df.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	series := df.Series()
	record := make([]string, len(series))
	for r := 0; r < df.NumRows(); r++ {
		for i, s := range series {
			record[i] = formatCell(s.DType, s.Values[r])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// formatCell keeps integral floats recognisable as floats when re-read.
func formatCell(dtype dataframe.DType, v any) string {
	if f, ok := v.(float64); ok && dtype == dataframe.DTypeFloat && !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return dataframe.FormatValue(v)
}
