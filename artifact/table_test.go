package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/distill/models"
	"github.com/xuri/excelize/v2"
)

func TestTabulate_ExactIntegers(t *testing.T) {
	tbl, err := Tabulate(json.RawMessage(`{"id":12345678901234567891,"year":2020,"delta":-7,"rating":7.5,"big":1e3,"huge":123456789012345678901234567890}`))
	require.NoError(t, err)

	assert.Equal(t, []any{
		uint64(12345678901234567891),
		int64(2020),
		int64(-7),
		7.5,
		1000.0,
		"123456789012345678901234567890",
	}, tbl.Rows[0])

	data, err := tbl.XLSX()
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	raw, err := f.GetCellValue(sheetName, "A2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567891", raw)
}

func TestTableXLSX_WarnsOnTruncatedCell(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	long := strings.Repeat("a", 40000)
	payload := json.RawMessage(`{"title":"X","synopsis":"` + long + `"}`)

	store := newMemStore()
	_, err := NewStructuredSink(store).Write(context.Background(), &models.Extraction{Data: payload}, stamp)
	require.NoError(t, err)

	var back map[string]string
	require.NoError(t, json.Unmarshal(store.files[JSONName(stamp)], &back))
	assert.Len(t, back["synopsis"], 40000, "the JSON artifact keeps the full value")

	rows := readRows(t, store.files[TableName(stamp)])
	require.Len(t, rows, 2)
	assert.Len(t, rows[1][1], excelize.TotalCellChars)

	assert.Contains(t, logs.String(), "spreadsheet cell truncated")
	assert.Contains(t, logs.String(), "column=synopsis")
}

func TestTableXLSX_ShortCellsDoNotWarn(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	tbl, err := Tabulate(json.RawMessage(`{"title":"X"}`))
	require.NoError(t, err)
	_, err = tbl.XLSX()
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "truncated")
}
