// Package writer exports simulation histories to files: JSON, CSV,
// Parquet, XLSX and DuckDB databases.
package writer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/errors"
)

// Writer exports the aggregate history of one or more runs.
type Writer interface {
	// WriteRun writes one run's history, one row per cycle.
	WriteRun(ctx context.Context, run model.RunInfo, history []model.CycleRecord) error

	// Close flushes and closes the writer and releases resources.
	Close() error
}

// Format is an export file format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
	FormatDuckDB  Format = "duckdb"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatParquet, FormatXLSX, FormatDuckDB}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errors.New(errors.CodeInvalidParameter, "unknown export format").
		WithContext("format", s)
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".duckdb", ".db":
		return FormatDuckDB, nil
	default:
		return "", errors.New(errors.CodeInvalidParameter, "cannot infer export format from extension").
			WithContext("path", path)
	}
}

// Config holds writer configuration.
type Config struct {
	// Compression type for Parquet output.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Compression: CompressionSnappy,
	}
}

// Create opens path and returns a writer for format. An empty format is
// inferred from the extension.
func Create(path string, format Format, cfg Config) (Writer, error) {
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeExportFailed, "create output directory")
	}

	if format == FormatDuckDB {
		w, err := NewDuckDBWriter(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeExportFailed, "open duckdb").WithContext("path", path)
		}
		return w, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExportFailed, "create output file").WithContext("path", path)
	}

	var w Writer
	switch format {
	case FormatJSON:
		w = NewJSONWriter(f)
	case FormatCSV:
		w = NewCSVWriter(f)
	case FormatParquet:
		w, err = NewParquetWriter(f, cfg)
	case FormatXLSX:
		w = NewXLSXWriter(f)
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.CodeExportFailed, "create writer").WithContext("format", string(format))
	}
	return &fileWriter{Writer: w, file: f}, nil
}

// fileWriter closes the underlying file after the format writer.
type fileWriter struct {
	Writer
	file io.Closer
}

func (w *fileWriter) Close() error {
	err := w.Writer.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// columns is the row layout shared by the tabular formats.
var columns = []string{"run_id", "cycle", "healthy", "infected", "recovered", "dead"}
