package writer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/epiflow/epiflow/internal/model"
)

// ParquetWriter writes cycle rows to Parquet using Apache Arrow.
// Each WriteRun becomes one record batch.
type ParquetWriter struct {
	cfg    Config
	output io.Writer

	allocator memory.Allocator
	schema    *arrow.Schema
	writer    *pqarrow.FileWriter

	// Arrow builders for each column
	runIDBuilder  *array.StringBuilder
	cycleBuilder  *array.Uint32Builder
	countBuilders [model.NumHealthStatuses]*array.Int64Builder

	mu               sync.Mutex
	totalRowsWritten int64
	closed           bool
}

// cycleSchema returns the Arrow schema for cycle rows.
func cycleSchema() *arrow.Schema {
	fields := []arrow.Field{
		{Name: columns[0], Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: columns[1], Type: arrow.PrimitiveTypes.Uint32, Nullable: false},
	}
	for _, name := range columns[2:] {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64, Nullable: false})
	}
	return arrow.NewSchema(fields, nil)
}

// codec maps a compression type to its Parquet codec.
func codec(c CompressionType) compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(output io.Writer, cfg Config) (*ParquetWriter, error) {
	allocator := memory.NewGoAllocator()
	schema := cycleSchema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec(cfg.Compression)),
		parquet.WithDictionaryDefault(true),
	)

	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(schema, output, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw := &ParquetWriter{
		cfg:          cfg,
		output:       output,
		allocator:    allocator,
		schema:       schema,
		writer:       writer,
		runIDBuilder: array.NewStringBuilder(allocator),
		cycleBuilder: array.NewUint32Builder(allocator),
	}
	for i := range pw.countBuilders {
		pw.countBuilders[i] = array.NewInt64Builder(allocator)
	}
	return pw, nil
}

// WriteRun implements the Writer interface.
func (w *ParquetWriter) WriteRun(ctx context.Context, run model.RunInfo, history []model.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range history {
		w.runIDBuilder.Append(run.ID)
		w.cycleBuilder.Append(rec.Cycle)
		for i, s := range model.AllHealthStatuses {
			w.countBuilders[i].Append(int64(rec.Counts[s]))
		}
	}
	return w.flushBatch(len(history))
}

// flushBatch writes the built rows as one record batch.
func (w *ParquetWriter) flushBatch(rows int) error {
	arrays := make([]arrow.Array, 0, len(columns))
	arrays = append(arrays, w.runIDBuilder.NewArray(), w.cycleBuilder.NewArray())
	for _, b := range w.countBuilders {
		arrays = append(arrays, b.NewArray())
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	batch := array.NewRecord(w.schema, arrays, int64(rows))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	w.totalRowsWritten += int64(rows)
	return nil
}

// Close closes the writer and releases resources.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	w.runIDBuilder.Release()
	w.cycleBuilder.Release()
	for _, b := range w.countBuilders {
		b.Release()
	}
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
