package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/use-agent/distill/models"
)

// JSONName is the artifact name of a run's serialized extraction.
func JSONName(stamp models.RunStamp) string {
	return "formatted_data_" + stamp.String() + ".json"
}

// TableName is the artifact name of a run's tabular export.
func TableName(stamp models.RunStamp) string {
	return "formatted_data_" + stamp.String() + ".xlsx"
}

// StructuredSink stores an extraction as indented JSON and as a spreadsheet.
type StructuredSink struct {
	store Store
}

// NewStructuredSink creates a StructuredSink writing to store.
func NewStructuredSink(store Store) *StructuredSink {
	return &StructuredSink{store: store}
}

// Write stores the extraction as formatted_data_<stamp>.json, then as
// formatted_data_<stamp>.xlsx. The two writes are independent: if the table
// fails, the JSON artifact stays and its location is still returned
// alongside the error.
func (s *StructuredSink) Write(ctx context.Context, ext *models.Extraction, stamp models.RunStamp) (models.Artifacts, error) {
	var out models.Artifacts

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, ext.Data, "", "    "); err != nil {
		return out, models.NewPipelineError(models.ErrCodeInternal, "indent extraction", err)
	}

	loc, err := s.store.Put(ctx, JSONName(stamp), pretty.Bytes())
	if err != nil {
		return out, err
	}
	out.JSON = loc
	slog.Info("formatted data saved", "path", loc)

	table, err := Tabulate(ext.Data)
	if err != nil {
		return out, models.NewPipelineError(models.ErrCodeInternal, "tabulate extraction", err)
	}
	xlsx, err := table.XLSX()
	if err != nil {
		return out, models.NewPipelineError(models.ErrCodeStorage, "render xlsx", err)
	}

	loc, err = s.store.Put(ctx, TableName(stamp), xlsx)
	if err != nil {
		return out, err
	}
	out.Table = loc
	slog.Info("formatted data saved to Excel",
		"path", loc,
		"rows", len(table.Rows),
		"columns", len(table.Columns),
	)
	return out, nil
}
