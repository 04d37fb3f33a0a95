package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/distill/models"
	"github.com/xuri/excelize/v2"
)

const stamp = models.RunStamp("20250601_120000")

// memStore keeps artifacts in memory and can fail names with a given suffix.
type memStore struct {
	files    map[string][]byte
	failWith string
}

func newMemStore() *memStore { return &memStore{files: make(map[string][]byte)} }

func (m *memStore) Put(_ context.Context, name string, data []byte) (string, error) {
	if m.failWith != "" && strings.HasSuffix(name, m.failWith) {
		return "", models.NewPipelineError(models.ErrCodeStorage, "disk full", errors.New("ENOSPC"))
	}
	m.files[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	return rows
}

func TestLocalStore_CreatesDirAndOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	s := NewLocalStore(dir)

	loc, err := s.Put(context.Background(), "a.md", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.md"), loc)

	_, err = s.Put(context.Background(), "a.md", []byte("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestLocalStore_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewLocalStore(file).Put(context.Background(), "a.md", []byte("x"))

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeStorage, models.CodeOf(err))
}

func TestMultiStore(t *testing.T) {
	a, b := newMemStore(), newMemStore()

	loc, err := MultiStore{a, b}.Put(context.Background(), "x.json", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "mem://x.json", loc)
	assert.Contains(t, a.files, "x.json")
	assert.Contains(t, b.files, "x.json")

	b.failWith = ".json"
	_, err = MultiStore{a, b}.Put(context.Background(), "y.json", []byte("{}"))
	assert.Equal(t, models.ErrCodeStorage, models.CodeOf(err))

	_, err = MultiStore{}.Put(context.Background(), "z.json", nil)
	assert.Equal(t, models.ErrCodeStorage, models.CodeOf(err))
}

func TestRawSink_RoundTrip(t *testing.T) {
	texts := []string{
		"Movie: X, Year: 2020",
		"# Überschrift\n\n日本語のテキスト, emoji 🎬, and a trailing newline\n",
		"",
	}

	for _, text := range texts {
		dir := t.TempDir()
		sink := NewRawSink(NewLocalStore(dir))

		loc, err := sink.Write(context.Background(), text, stamp)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "raw_data_20250601_120000.md"), loc)

		got, err := os.ReadFile(loc)
		require.NoError(t, err)
		assert.Equal(t, text, string(got))
	}
}

func TestStructuredSink_SingleRecord(t *testing.T) {
	dir := t.TempDir()
	sink := NewStructuredSink(NewLocalStore(dir))
	ext := &models.Extraction{Data: json.RawMessage(`{"title": "X", "release_year": 2020}`)}

	arts, err := sink.Write(context.Background(), ext, stamp)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "formatted_data_20250601_120000.json"), arts.JSON)
	assert.Equal(t, filepath.Join(dir, "formatted_data_20250601_120000.xlsx"), arts.Table)

	raw, err := os.ReadFile(arts.JSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"X","release_year":2020}`, string(raw))
	assert.Contains(t, string(raw), "\n    \"title\"", "indented by four spaces")

	xlsx, err := os.ReadFile(arts.Table)
	require.NoError(t, err)
	rows := readRows(t, xlsx)
	require.Len(t, rows, 2, "header plus one row")
	assert.Equal(t, []string{"title", "release_year"}, rows[0])
	assert.Equal(t, []string{"X", "2020"}, rows[1])
}

func TestStructuredSink_RecordSequence(t *testing.T) {
	store := newMemStore()
	sink := NewStructuredSink(store)
	ext := &models.Extraction{Data: json.RawMessage(`[
		{"title": "A", "genre": "Drama"},
		{"title": "B", "rating": 7.5},
		{"cast": ["P", "Q"], "title": "C", "genre": null}
	]`)}

	_, err := sink.Write(context.Background(), ext, stamp)
	require.NoError(t, err)

	rows := readRows(t, store.files[TableName(stamp)])
	require.Len(t, rows, 4, "header plus three rows")
	assert.Equal(t, []string{"title", "genre", "rating", "cast"}, rows[0])
	assert.Equal(t, []string{"A", "Drama"}, rows[1])
	assert.Equal(t, []string{"B", "", "7.5"}, rows[2])
	assert.Equal(t, []string{"C", "", "", `["P","Q"]`}, rows[3])
}

func TestStructuredSink_TableFailureKeepsJSON(t *testing.T) {
	store := newMemStore()
	store.failWith = ".xlsx"
	sink := NewStructuredSink(store)

	arts, err := sink.Write(context.Background(), &models.Extraction{Data: json.RawMessage(`{"title":"X"}`)}, stamp)

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeStorage, models.CodeOf(err))
	assert.Equal(t, "mem://"+JSONName(stamp), arts.JSON)
	assert.Empty(t, arts.Table)
	assert.Contains(t, store.files, JSONName(stamp))
}

func TestStructuredSink_JSONFailureStops(t *testing.T) {
	store := newMemStore()
	store.failWith = ".json"

	_, err := NewStructuredSink(store).Write(context.Background(), &models.Extraction{Data: json.RawMessage(`{"title":"X"}`)}, stamp)

	require.Error(t, err)
	assert.Empty(t, store.files, "no table is written after the JSON write fails")
}

func TestTabulate(t *testing.T) {
	tbl, err := Tabulate(json.RawMessage(`{"a":"x","b":true,"c":null,"d":{"k":1}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, tbl.Columns)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []any{"x", true, nil, `{"k":1}`}, tbl.Rows[0])

	tbl, err = Tabulate(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, tbl.Columns)
	assert.Empty(t, tbl.Rows)

	_, err = Tabulate(json.RawMessage(`"scalar"`))
	assert.Error(t, err)

	_, err = Tabulate(json.RawMessage(`[{"a":1}, 2]`))
	assert.Error(t, err)
}
