package writer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/epiflow/epiflow/internal/model"
)

// DuckDBWriter writes runs and cycle rows into a DuckDB database file.
type DuckDBWriter struct {
	outputPath string
	db         *sql.DB

	mu               sync.Mutex
	totalRowsWritten int64
	closed           bool
}

const duckDBSchema = `
	CREATE TABLE runs (
		run_id VARCHAR PRIMARY KEY,
		seed UBIGINT NOT NULL,
		population INTEGER NOT NULL,
		locations INTEGER NOT NULL,
		max_cycles INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL
	);
	CREATE TABLE cycles (
		run_id VARCHAR NOT NULL,
		cycle UINTEGER NOT NULL,
		healthy BIGINT NOT NULL,
		infected BIGINT NOT NULL,
		recovered BIGINT NOT NULL,
		dead BIGINT NOT NULL
	);
`

// NewDuckDBWriter creates a database at outputPath, replacing any existing file.
func NewDuckDBWriter(outputPath string) (*DuckDBWriter, error) {
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing database: %w", err)
	}

	db, err := sql.Open("duckdb", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	if _, err := db.Exec(duckDBSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DuckDBWriter{outputPath: outputPath, db: db}, nil
}

// WriteRun inserts the run and its cycles in one transaction.
func (w *DuckDBWriter) WriteRun(ctx context.Context, run model.RunInfo, history []model.CycleRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, seed, population, locations, max_cycles, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Seed, run.Population, run.Locations, run.MaxCycles, run.StartedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cycles (run_id, cycle, healthy, infected, recovered, dead) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range history {
		_, err := stmt.ExecContext(ctx, run.ID, rec.Cycle,
			int64(rec.Counts[model.Healthy]), int64(rec.Counts[model.Infected]),
			int64(rec.Counts[model.Recovered]), int64(rec.Counts[model.Dead]))
		if err != nil {
			return fmt.Errorf("failed to insert cycle %d: %w", rec.Cycle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	w.totalRowsWritten += int64(len(history))
	return nil
}

// Close closes the database.
func (w *DuckDBWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}

// RowsWritten returns the total number of cycle rows written.
func (w *DuckDBWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
