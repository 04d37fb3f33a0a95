package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"
)

// sheetName is the default sheet of a new workbook.
const sheetName = "Sheet1"

// Table is an extraction laid out as rows and columns. A nil cell is empty.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Tabulate converts extracted JSON into a Table. A single object becomes one
// row; an array of objects becomes one row per element. Columns are the union
// of all keys in first-seen order, and a record missing a column leaves that
// cell empty.
func Tabulate(data json.RawMessage) (*Table, error) {
	parsed := gjson.ParseBytes(data)

	var records []gjson.Result
	switch {
	case parsed.IsObject():
		records = []gjson.Result{parsed}
	case parsed.IsArray():
		records = parsed.Array()
	default:
		return nil, fmt.Errorf("tabulate: expected object or array, got %s", parsed.Type)
	}

	t := &Table{}
	index := make(map[string]int)
	for i, rec := range records {
		if !rec.IsObject() {
			return nil, fmt.Errorf("tabulate: record %d is not an object", i)
		}
		rec.ForEach(func(k, _ gjson.Result) bool {
			if _, ok := index[k.String()]; !ok {
				index[k.String()] = len(t.Columns)
				t.Columns = append(t.Columns, k.String())
			}
			return true
		})
	}

	t.Rows = make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(t.Columns))
		rec.ForEach(func(k, v gjson.Result) bool {
			row[index[k.String()]] = cellValue(v)
			return true
		})
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// cellValue maps a JSON value to a spreadsheet cell. Nested objects and
// arrays are written as compact JSON text.
func cellValue(v gjson.Result) any {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return numberValue(v)
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.JSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
			return v.Raw
		}
		return buf.String()
	default:
		return nil
	}
}

// numberValue keeps integer literals exact. Integers outside the uint64
// range are kept as their literal text.
func numberValue(v gjson.Result) any {
	if strings.ContainsAny(v.Raw, ".eE") {
		return v.Num
	}
	if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
		return n
	}
	if n, err := strconv.ParseUint(v.Raw, 10, 64); err == nil {
		return n
	}
	return v.Raw
}

// XLSX renders the table as an .xlsx workbook with a header row.
func (t *Table) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for c, name := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStr(sheetName, cell, name); err != nil {
			return nil, err
		}
	}

	for r, row := range t.Rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if str, ok := v.(string); ok {
				if n := utf8.RuneCountInString(str); n > excelize.TotalCellChars {
					slog.Warn("spreadsheet cell truncated",
						"column", t.Columns[c],
						"row", r+1,
						"chars", n,
						"limit", excelize.TotalCellChars,
					)
				}
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
