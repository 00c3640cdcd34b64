package writer

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/epiflow/epiflow/internal/model"
)

// jsonRun is the exported shape of one run.
type jsonRun struct {
	model.RunInfo
	Cycles []model.CycleRecord `json:"cycles"`
}

// JSONWriter writes every run into a single JSON document on Close.
type JSONWriter struct {
	mu     sync.Mutex
	output io.Writer
	runs   []jsonRun
	closed bool
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(output io.Writer) *JSONWriter {
	return &JSONWriter{output: output}
}

// WriteRun buffers a run.
func (w *JSONWriter) WriteRun(ctx context.Context, run model.RunInfo, history []model.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = append(w.runs, jsonRun{RunInfo: run, Cycles: history})
	return nil
}

// Close encodes the buffered runs.
func (w *JSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	enc := json.NewEncoder(w.output)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Runs []jsonRun `json:"runs"`
	}{Runs: w.runs})
}
