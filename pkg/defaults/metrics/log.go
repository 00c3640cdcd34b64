package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/epiflow/epiflow/pkg/interfaces"
)

// LogMetrics writes metrics to a structured logger at debug level.
// Useful for debugging and development.
type LogMetrics struct {
	mu         sync.Mutex
	logger     *log.Logger
	minLevel   LogLevel
	buffer     []entry
	bufferSize int
}

type entry struct {
	kind  string
	name  string
	value interface{}
	tags  map[string]string
}

// LogLevel controls which metrics are logged.
type LogLevel int

const (
	LogLevelAll LogLevel = iota
	LogLevelTimers
	LogLevelNone
)

// LogMetricsOption configures LogMetrics.
type LogMetricsOption func(*LogMetrics)

// WithPrefix sets the logger prefix.
func WithPrefix(prefix string) LogMetricsOption {
	return func(m *LogMetrics) {
		m.logger = m.logger.WithPrefix(prefix)
	}
}

// WithMinLevel sets the minimum log level.
func WithMinLevel(level LogLevel) LogMetricsOption {
	return func(m *LogMetrics) {
		m.minLevel = level
	}
}

// WithBufferSize sets the buffer size for batched logging.
func WithBufferSize(size int) LogMetricsOption {
	return func(m *LogMetrics) {
		m.bufferSize = size
	}
}

// NewLogMetrics creates a new log-based metrics exporter.
func NewLogMetrics(logger *log.Logger, opts ...LogMetricsOption) *LogMetrics {
	if logger == nil {
		logger = log.Default()
	}
	m := &LogMetrics{
		logger:   logger.WithPrefix("metrics"),
		minLevel: LogLevelAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Counter logs a counter metric.
func (m *LogMetrics) Counter(name string, value int64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.record(entry{"counter", name, value, tags})
}

// Gauge logs a gauge metric.
func (m *LogMetrics) Gauge(name string, value float64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.record(entry{"gauge", name, value, tags})
}

// Histogram logs a histogram metric.
func (m *LogMetrics) Histogram(name string, value float64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.record(entry{"histogram", name, value, tags})
}

// Timer logs a timer metric.
func (m *LogMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	if m.minLevel >= LogLevelNone {
		return
	}
	m.record(entry{"timer", name, duration, tags})
}

// Flush outputs any buffered metrics.
func (m *LogMetrics) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushLocked()
	return nil
}

// Close flushes and closes the exporter.
func (m *LogMetrics) Close() error {
	return m.Flush()
}

func (m *LogMetrics) record(e entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bufferSize <= 0 {
		m.emit(e)
		return
	}
	m.buffer = append(m.buffer, e)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

func (m *LogMetrics) flushLocked() {
	for _, e := range m.buffer {
		m.emit(e)
	}
	m.buffer = nil
}

func (m *LogMetrics) emit(e entry) {
	m.logger.Debug(e.kind, append([]interface{}{e.name, e.value}, tagPairs(e.tags)...)...)
}

// tagPairs flattens tags into sorted key/value pairs.
func tagPairs(tags map[string]string) []interface{} {
	if len(tags) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, tags[k])
	}
	return pairs
}

// Verify interface compliance.
var _ interfaces.MetricsExporter = (*LogMetrics)(nil)
