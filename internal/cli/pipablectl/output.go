package pipablectl

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pterm/pterm"

	"github.com/pipable/pipable/internal/query"
)

type resultJSON struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// resultCell is one value of a query result in long format. Result columns
// are arbitrary so a fixed wide schema is not possible.
type resultCell struct {
	Row    int64   `parquet:"row"`
	Column string  `parquet:"column"`
	Value  *string `parquet:"value,optional"`
}

func renderTable(result query.Result) (string, error) {
	data := make(pterm.TableData, 0, len(result.Rows)+1)
	data = append(data, result.Columns)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatValue(value)
		}
		data = append(data, cells)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

// writeResultParquet writes result in long format and returns the number of
// cells written. NULL values stay null.
func writeResultParquet(path string, result query.Result) (int, error) {
	cells := make([]resultCell, 0, len(result.Rows)*len(result.Columns))
	for rowIdx, row := range result.Rows {
		for colIdx, value := range row {
			cell := resultCell{Row: int64(rowIdx), Column: result.Columns[colIdx]}
			if value != nil {
				text := formatValue(value)
				cell.Value = &text
			}
			cells = append(cells, cell)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create parquet file: %w", err)
	}
	writer := parquet.NewGenericWriter[resultCell](file)
	if _, err := writer.Write(cells); err != nil {
		_ = file.Close()
		return 0, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = file.Close()
		return 0, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("close parquet file: %w", err)
	}
	return len(cells), nil
}
