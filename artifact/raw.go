package artifact

import (
	"context"
	"log/slog"

	"github.com/use-agent/distill/models"
)

// RawName is the artifact name of a run's raw document.
func RawName(stamp models.RunStamp) string {
	return "raw_data_" + stamp.String() + ".md"
}

// RawSink stores fetched page text.
type RawSink struct {
	store Store
}

// NewRawSink creates a RawSink writing to store.
func NewRawSink(store Store) *RawSink {
	return &RawSink{store: store}
}

// Write stores text verbatim as raw_data_<stamp>.md and returns its location.
func (s *RawSink) Write(ctx context.Context, text string, stamp models.RunStamp) (string, error) {
	loc, err := s.store.Put(ctx, RawName(stamp), []byte(text))
	if err != nil {
		return "", err
	}
	slog.Info("raw data saved", "path", loc, "bytes", len(text))
	return loc, nil
}
