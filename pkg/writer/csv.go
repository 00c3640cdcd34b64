package writer

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/epiflow/epiflow/internal/model"
)

// CSVWriter streams one row per cycle.
type CSVWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	header bool
}

// NewCSVWriter creates a CSV writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(output)}
}

// WriteRun appends the run's rows.
func (w *CSVWriter) WriteRun(ctx context.Context, run model.RunInfo, history []model.CycleRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.header {
		if err := w.w.Write(columns); err != nil {
			return err
		}
		w.header = true
	}

	row := make([]string, len(columns))
	for _, rec := range history {
		if err := ctx.Err(); err != nil {
			return err
		}
		row[0] = run.ID
		row[1] = strconv.FormatUint(uint64(rec.Cycle), 10)
		for i, s := range model.AllHealthStatuses {
			row[2+i] = strconv.Itoa(rec.Counts[s])
		}
		if err := w.w.Write(row); err != nil {
			return err
		}
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes buffered rows.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Flush()
	return w.w.Error()
}
