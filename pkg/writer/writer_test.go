package writer

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/xuri/excelize/v2"

	"github.com/epiflow/epiflow/internal/model"
)

func sampleRun() (model.RunInfo, []model.CycleRecord) {
	run := model.RunInfo{
		ID:         "run-1",
		Seed:       42,
		Population: 10,
		Locations:  4,
		MaxCycles:  3,
		StartedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	history := model.Records([]model.HealthCounts{
		{8, 2, 0, 0},
		{7, 2, 1, 0},
		{7, 0, 2, 1},
	})
	return run, history
}

func writeSample(t *testing.T, path string, format Format) {
	t.Helper()
	w, err := Create(path, format, DefaultConfig())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	run, history := sampleRun()
	if err := w.WriteRun(context.Background(), run, history); err != nil {
		t.Fatalf("WriteRun() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" CSV ", FormatCSV, false},
		{"parquet", FormatParquet, false},
		{"xlsx", FormatXLSX, false},
		{"duckdb", FormatDuckDB, false},
		{"avro", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"out/history.json", FormatJSON, false},
		{"history.CSV", FormatCSV, false},
		{"history.pq", FormatParquet, false},
		{"history.parquet", FormatParquet, false},
		{"book.xlsx", FormatXLSX, false},
		{"runs.db", FormatDuckDB, false},
		{"history.txt", "", true},
		{"history", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []CompressionType{CompressionNone, CompressionSnappy, CompressionGzip, CompressionZstd, CompressionLZ4} {
		if got := ParseCompression(c.String()); got != c {
			t.Errorf("ParseCompression(%q) = %v, want %v", c.String(), got, c)
		}
	}
	if got := ParseCompression("brotli"); got != CompressionNone {
		t.Errorf("ParseCompression(brotli) = %v, want none", got)
	}
}

func TestJSONWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	writeSample(t, path, "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Runs []struct {
			ID     string `json:"id"`
			Seed   uint64 `json:"seed"`
			Cycles []struct {
				Cycle  uint32         `json:"cycle"`
				Counts map[string]int `json:"counts"`
			} `json:"cycles"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, data)
	}
	if len(doc.Runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(doc.Runs))
	}
	r := doc.Runs[0]
	if r.ID != "run-1" || r.Seed != 42 {
		t.Errorf("run = %+v", r)
	}
	if len(r.Cycles) != 3 {
		t.Fatalf("got %d cycles, want 3", len(r.Cycles))
	}
	if got := r.Cycles[2].Counts["DEAD"]; got != 1 {
		t.Errorf("cycle 2 DEAD = %d, want 1", got)
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	writeSample(t, path, FormatCSV)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	for i, col := range columns {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	want := []string{"run-1", "1", "7", "2", "1", "0"}
	for i, v := range want {
		if rows[2][i] != v {
			t.Errorf("row 2 col %d = %q, want %q", i, rows[2][i], v)
		}
	}
}

func TestParquetWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.parquet")
	writeSample(t, path, FormatParquet)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	table, err := pqarrow.ReadTable(context.Background(), f,
		parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	defer table.Release()

	if table.NumRows() != 3 {
		t.Errorf("NumRows() = %d, want 3", table.NumRows())
	}
	if int(table.NumCols()) != len(columns) {
		t.Errorf("NumCols() = %d, want %d", table.NumCols(), len(columns))
	}
	for i, col := range columns {
		if got := table.Schema().Field(i).Name; got != col {
			t.Errorf("field %d = %q, want %q", i, got, col)
		}
	}
}

func TestXLSXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	writeSample(t, path, FormatXLSX)

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cyclesSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("cycles sheet has %d rows, want 4", len(rows))
	}
	if rows[3][5] != "1" {
		t.Errorf("last row dead = %q, want 1", rows[3][5])
	}

	runs, err := f.GetRows(runsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[1][0] != "run-1" {
		t.Errorf("runs sheet = %v", runs)
	}
}

func TestDuckDBWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.duckdb")
	writeSample(t, path, FormatDuckDB)
	// A second export replaces the file instead of failing on the primary key.
	writeSample(t, path, FormatDuckDB)

	db, err := sql.Open("duckdb", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var cycles, infected int64
	if err := db.QueryRow(`SELECT COUNT(*), CAST(SUM(infected) AS BIGINT) FROM cycles WHERE run_id = 'run-1'`).Scan(&cycles, &infected); err != nil {
		t.Fatal(err)
	}
	if cycles != 3 || infected != 4 {
		t.Errorf("cycles = %d infected = %d, want 3 and 4", cycles, infected)
	}

	var population int64
	if err := db.QueryRow(`SELECT population FROM runs`).Scan(&population); err != nil {
		t.Fatal(err)
	}
	if population != 10 {
		t.Errorf("population = %d, want 10", population)
	}
}

func TestCreateRejectsUnknownExtension(t *testing.T) {
	if _, err := Create(filepath.Join(t.TempDir(), "out.txt"), "", DefaultConfig()); err == nil {
		t.Error("expected error for unknown extension")
	}
}
