// Package errors provides structured error handling for EpiFlow.
// It implements errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Input errors (1xx)
	CodeInvalidConfig    Code = "E101"
	CodeInvalidParameter Code = "E102"
	CodeInvalidTopology  Code = "E103"

	// Simulation errors (2xx)
	CodeInvariantViolation  Code = "E201"
	CodeUnknownHealthStatus Code = "E202"

	// Output errors (3xx)
	CodeExportFailed Code = "E301"
	CodeUploadFailed Code = "E302"
	CodeSinkFailed   Code = "E303"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"

	// Unknown
	CodeUnknown Code = "E999"
)

// EpiFlowError is the base error type for all EpiFlow errors.
type EpiFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
// Context keys are printed in sorted order so messages are stable.
func (e *EpiFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *EpiFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *EpiFlowError) Is(target error) bool {
	if t, ok := target.(*EpiFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *EpiFlowError) WithContext(key string, value interface{}) *EpiFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new EpiFlowError.
func New(code Code, message string) *EpiFlowError {
	return &EpiFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new EpiFlowError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *EpiFlowError {
	return &EpiFlowError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *EpiFlowError {
	if err == nil {
		return nil
	}

	return &EpiFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *EpiFlowError {
	if err == nil {
		return nil
	}
	return &EpiFlowError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *EpiFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// InvalidParameter reports a simulation parameter outside its domain.
func InvalidParameter(name string, value interface{}, want string) *EpiFlowError {
	return New(CodeInvalidParameter, "invalid parameter").
		WithContext("name", name).
		WithContext("value", value).
		WithContext("want", want)
}

// InvariantViolation reports a broken simulation invariant.
// Callers panic with it; it is never returned.
func InvariantViolation(format string, args ...interface{}) *EpiFlowError {
	return &EpiFlowError{
		Code:       CodeInvariantViolation,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// UnknownHealthStatus reports an enumeration value outside the closed set.
func UnknownHealthStatus(value interface{}) *EpiFlowError {
	return New(CodeUnknownHealthStatus, "unknown health status").
		WithContext("value", value)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string, cause error) *EpiFlowError {
	e := New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
	e.Cause = cause
	return e
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var efErr *EpiFlowError
	if errors.As(err, &efErr) {
		return efErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var efErr *EpiFlowError
	if errors.As(err, &efErr) {
		return efErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true if the error signals a programming error
// that must not be recovered from.
func IsFatal(err error) bool {
	code := GetCode(err)
	switch code {
	case CodeInvariantViolation, CodeUnknownHealthStatus:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
