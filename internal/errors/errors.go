package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of a pipeline failure
type ErrorType int

const (
	// Configuration errors - no temporal frame or an unusable collaborator
	ErrorTypeConfig ErrorType = iota
	// Rejected tickets - temporal validity failure for one ticket
	ErrorTypeRejected
	// Unresolved file references - mined path without a release-time record
	ErrorTypeUnresolved
	// Malformed external records - missing field in a tracker or miner response
	ErrorTypeMalformed
	// FileSystem errors - dataset and report writes
	ErrorTypeFileSystem
	// External errors - tracker or git failures
	ErrorTypeExternal
	// Database errors - result store failures
	ErrorTypeDatabase
	// Internal errors - broken invariants
	ErrorTypeInternal
)

// Severity represents how a failure affects the run
type Severity int

const (
	// SeverityLow - recovered by skipping the smallest possible unit
	SeverityLow Severity = iota
	// SeverityMedium - recovered, but worth surfacing to the operator
	SeverityMedium
	// SeverityHigh - the current stage cannot produce its output
	SeverityHigh
	// SeverityCritical - aborts the run
	SeverityCritical
)

// Error is a structured pipeline error
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Sentinels for errors.Is checks. Matching is by Type only.
var (
	ErrNoReleases      = &Error{Type: ErrorTypeConfig, Severity: SeverityCritical, Message: "no releases resolved"}
	ErrRejectedTicket  = &Error{Type: ErrorTypeRejected, Severity: SeverityLow, Message: "ticket rejected"}
	ErrUnresolvedFile  = &Error{Type: ErrorTypeUnresolved, Severity: SeverityLow, Message: "unresolved file reference"}
	ErrMalformedRecord = &Error{Type: ErrorTypeMalformed, Severity: SeverityLow, Message: "malformed external record"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair shown by DetailedString
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches any *Error of the same type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString renders the error with its context and stack
func (e *Error) DetailedString() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%s] [%s] %s\n", severityString(e.Severity), typeString(e.Type), e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}
	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			fmt.Fprintf(&sb, "  %s: %v\n", k, v)
		}
	}
	if e.StackTrace != "" {
		fmt.Fprintf(&sb, "Stack trace:\n%s\n", e.StackTrace)
	}
	return sb.String()
}

func (t ErrorType) String() string { return typeString(t) }
func (s Severity) String() string  { return severityString(s) }

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeRejected:
		return "REJECTED"
	case ErrorTypeUnresolved:
		return "UNRESOLVED"
	case ErrorTypeMalformed:
		return "MALFORMED"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		fmt.Fprintf(&sb, "  %s:%d %s\n", file, line, fn.Name())
	}
	return sb.String()
}

// New creates an error with the given type, severity and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps err, returning nil for a nil err
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// ConfigErrorf creates a fatal configuration error
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// Rejectedf creates a per-ticket rejection
func Rejectedf(format string, args ...interface{}) *Error {
	return New(ErrorTypeRejected, SeverityLow, fmt.Sprintf(format, args...))
}

// Malformedf creates a malformed external record error
func Malformedf(format string, args ...interface{}) *Error {
	return New(ErrorTypeMalformed, SeverityLow, fmt.Sprintf(format, args...))
}

// FileSystemErrorf wraps a write failure. Dataset writes abort the run.
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityCritical, fmt.Sprintf(format, args...))
}

// ExternalErrorf wraps a tracker or git failure
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityHigh, fmt.Sprintf(format, args...))
}

// DatabaseErrorf wraps a result store failure
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityHigh, fmt.Sprintf(format, args...))
}

// InternalErrorf reports a broken invariant
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// Unreachable marks a collaborator that failed outright as a fatal configuration problem
func Unreachable(err error, collaborator string) *Error {
	return Wrap(err, ErrorTypeConfig, SeverityCritical, collaborator+" unreachable")
}

// IsFatal reports whether err should stop the run
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetSeverity reports the severity of err; errors from outside the taxonomy are medium
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}
	return SeverityMedium
}

func GetType(err error) ErrorType {
	if err == nil {
		return ErrorTypeInternal
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
