// Package logger provides the structured JSON logger used by the
// verifier daemon and sidecar: leveled output, per-component field
// binding, and a small set of field constructors for the verification
// outcomes the daemons actually log (reason, keyid, JWKS URL, signature
// label). Logging is synchronous and line-delimited (one
// JSON object per write, no batching) since both daemons write to
// os.Stdout under a process supervisor that already handles fan-out.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Level represents the severity level of a log message
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string ("debug", "warn", ...) to a Level,
// defaulting to InfoLevel for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// redactedKeys holds field keys whose values are never written verbatim,
// regardless of which constructor produced the Field: a caller that
// accidentally logs a raw header value under one of these names still
// gets the redacted form.
var redactedKeys = map[string]bool{
	"signature":     true,
	"private_key":   true,
	"authorization": true,
	"cookie":        true,
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) redacted() Field {
	if redactedKeys[f.Key] {
		return Field{Key: f.Key, Value: "[redacted]"}
	}
	return f
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Secret creates a field whose value is always redacted in the emitted
// line. Use it for anything derived from signature or key material;
// the field still appears with its key so a log line shows that a
// signed request was present without leaking what it signed.
func Secret(key, value string) Field {
	return Field{Key: key, Value: "[redacted]"}
}

// Reason creates a field carrying a verification outcome reason.
func Reason(reason string) Field {
	return Field{Key: "reason", Value: reason}
}

// Keyid creates a field carrying a signer key identifier.
func Keyid(kid string) Field {
	return Field{Key: "keyid", Value: kid}
}

// JWKSURL creates a field carrying the resolved JWKS directory URL.
func JWKSURL(url string) Field {
	return Field{Key: "jwks_url", Value: url}
}

// SigLabel creates a field carrying the active Signature-Input label.
func SigLabel(label string) Field {
	return Field{Key: "label", Value: label}
}

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	WithFields(fields ...Field) Logger
}

// StructuredLogger implements the Logger interface with JSON output. The
// level is an atomic so a live SetLevel (e.g. from a SIGHUP handler) never
// blocks an in-flight log() call; baseFields is only ever appended to via
// copy-on-WithFields, so it needs no lock at all.
type StructuredLogger struct {
	level       atomic.Int32
	output      io.Writer
	baseFields  []Field
	timeFormat  string
	prettyPrint bool
}

// NewLogger creates a new structured logger writing JSON lines to output.
func NewLogger(output io.Writer, level Level) *StructuredLogger {
	l := &StructuredLogger{
		output:     output,
		timeFormat: time.RFC3339,
	}
	l.level.Store(int32(level))
	return l
}

// SetPrettyPrint enables or disables pretty printing of JSON logs. Only
// meant for local development; every daemon entrypoint leaves it off.
func (l *StructuredLogger) SetPrettyPrint(pretty bool) {
	l.prettyPrint = pretty
}

// Debug logs a debug level message
func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

// Info logs an info level message
func (l *StructuredLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

// Warn logs a warning level message
func (l *StructuredLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

// Error logs an error level message
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

// Fatal logs a fatal level message and exits
func (l *StructuredLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields...)
	os.Exit(1)
}

// SetLevel sets the minimum log level. Safe for concurrent use against
// in-flight log() calls.
func (l *StructuredLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current log level
func (l *StructuredLogger) GetLevel() Level {
	return Level(l.level.Load())
}

// WithFields returns a new logger sharing this logger's output and level
// but with fields permanently bound to every line it writes, the pattern
// used to scope a logger to one request or one cache entry without
// threading fields through every call site.
func (l *StructuredLogger) WithFields(fields ...Field) Logger {
	newFields := make([]Field, len(l.baseFields)+len(fields))
	copy(newFields, l.baseFields)
	copy(newFields[len(l.baseFields):], fields)

	child := &StructuredLogger{
		output:      l.output,
		baseFields:  newFields,
		timeFormat:  l.timeFormat,
		prettyPrint: l.prettyPrint,
	}
	child.level.Store(l.level.Load())
	return child
}

// log builds and writes one JSON line. Fields are applied in base-then-
// call order so a call-site field overrides a bound one sharing its key.
func (l *StructuredLogger) log(level Level, msg string, fields ...Field) {
	if level < l.GetLevel() {
		return
	}

	entry := make(map[string]interface{}, len(l.baseFields)+len(fields)+4)
	entry["timestamp"] = time.Now().Format(l.timeFormat)
	entry["level"] = level.String()
	entry["message"] = msg

	if _, file, line, ok := runtime.Caller(2); ok {
		entry["caller"] = fmt.Sprintf("%s:%d", file, line)
	}

	for _, field := range l.baseFields {
		entry[field.Key] = field.redacted().Value
	}
	for _, field := range fields {
		entry[field.Key] = field.redacted().Value
	}

	var data []byte
	var err error
	if l.prettyPrint {
		data, err = json.MarshalIndent(entry, "", "  ")
	} else {
		data, err = json.Marshal(entry)
	}
	if err != nil {
		fmt.Fprintf(l.output, `{"level":"ERROR","message":"failed to marshal log entry","error":"%v"}`+"\n", err)
		return
	}

	fmt.Fprintf(l.output, "%s\n", data)
}
