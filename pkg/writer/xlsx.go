package writer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/epiflow/epiflow/internal/model"
)

const (
	cyclesSheet = "cycles"
	runsSheet   = "runs"
)

var runColumns = []string{"run_id", "seed", "population", "locations", "max_cycles", "started_at"}

// XLSXWriter writes a workbook with a cycles sheet and a runs sheet.
// The workbook is streamed to the output on Close.
type XLSXWriter struct {
	mu      sync.Mutex
	output  io.Writer
	file    *excelize.File
	cycles  *excelize.StreamWriter
	runs    [][]interface{}
	nextRow int
	closed  bool
	err     error
}

// NewXLSXWriter creates an XLSX writer.
func NewXLSXWriter(output io.Writer) *XLSXWriter {
	f := excelize.NewFile()
	w := &XLSXWriter{output: output, file: f, nextRow: 2}

	if err := f.SetSheetName("Sheet1", cyclesSheet); err != nil {
		w.err = err
		return w
	}
	sw, err := f.NewStreamWriter(cyclesSheet)
	if err != nil {
		w.err = err
		return w
	}
	w.cycles = sw
	w.err = sw.SetRow("A1", toRow(columns))
	return w
}

// WriteRun appends the run's cycle rows.
func (w *XLSXWriter) WriteRun(ctx context.Context, run model.RunInfo, history []model.CycleRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}

	for _, rec := range history {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := []interface{}{run.ID, rec.Cycle}
		for _, s := range model.AllHealthStatuses {
			row = append(row, rec.Counts[s])
		}
		cell, err := excelize.CoordinatesToCellName(1, w.nextRow)
		if err != nil {
			return err
		}
		if err := w.cycles.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", w.nextRow, err)
		}
		w.nextRow++
	}

	w.runs = append(w.runs, []interface{}{
		run.ID, fmt.Sprint(run.Seed), run.Population, run.Locations, run.MaxCycles,
		run.StartedAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// Close writes the runs sheet and streams the workbook to the output.
func (w *XLSXWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.file.Close()

	if w.err != nil {
		return w.err
	}
	if err := w.cycles.Flush(); err != nil {
		return err
	}

	if _, err := w.file.NewSheet(runsSheet); err != nil {
		return err
	}
	if err := w.file.SetSheetRow(runsSheet, "A1", &runColumns); err != nil {
		return err
	}
	for i, row := range w.runs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(runsSheet, cell, &row); err != nil {
			return err
		}
	}

	_, err := w.file.WriteTo(w.output)
	return err
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
