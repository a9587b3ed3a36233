// Package logging provides structured JSON logging with request trace IDs.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging contract used across the server. Fields
// are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	DebugContext(ctx context.Context, msg string, fields ...interface{})
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})

	WithComponent(component string) Logger
	WithTraceID(traceID string) Logger
}

// Level is a log severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type contextKey string

// traceIDKey carries the request trace ID through a context.
const traceIDKey contextKey = "trace_id"

// NewTraceID returns a fresh trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace ID on the context, minting one if empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from the context, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// jsonLogger writes one JSON object per line.
type jsonLogger struct {
	level     Level
	component string
	traceID   string
	textMode  bool

	mu  *sync.Mutex
	out io.Writer
}

// New creates a logger writing to stderr.
func New(level Level) Logger {
	return NewWithWriter(level, os.Stderr, false)
}

// NewWithWriter creates a logger writing to out. Text mode produces
// human-readable lines instead of JSON.
func NewWithWriter(level Level, out io.Writer, textMode bool) Logger {
	return &jsonLogger{level: level, out: out, textMode: textMode, mu: &sync.Mutex{}}
}

func (l *jsonLogger) clone() *jsonLogger {
	c := *l
	return &c
}

// WithComponent returns a logger tagged with a component name.
func (l *jsonLogger) WithComponent(component string) Logger {
	c := l.clone()
	c.component = component
	return c
}

// WithTraceID returns a logger tagged with a trace ID.
func (l *jsonLogger) WithTraceID(traceID string) Logger {
	c := l.clone()
	c.traceID = traceID
	return c
}

func (l *jsonLogger) Debug(msg string, fields ...interface{}) { l.log(LevelDebug, "", msg, fields) }
func (l *jsonLogger) Info(msg string, fields ...interface{})  { l.log(LevelInfo, "", msg, fields) }
func (l *jsonLogger) Warn(msg string, fields ...interface{})  { l.log(LevelWarn, "", msg, fields) }
func (l *jsonLogger) Error(msg string, fields ...interface{}) { l.log(LevelError, "", msg, fields) }

func (l *jsonLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(LevelDebug, TraceID(ctx), msg, fields)
}

func (l *jsonLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(LevelInfo, TraceID(ctx), msg, fields)
}

func (l *jsonLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(LevelWarn, TraceID(ctx), msg, fields)
}

func (l *jsonLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(LevelError, TraceID(ctx), msg, fields)
}

func levelName(lv Level) string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l *jsonLogger) log(lv Level, ctxTrace, msg string, fields []interface{}) {
	if lv < l.level {
		return
	}

	traceID := l.traceID
	if ctxTrace != "" {
		traceID = ctxTrace
	}

	var fieldMap map[string]interface{}
	if len(fields) > 0 {
		fieldMap = make(map[string]interface{}, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
		}
		if len(fields)%2 == 1 {
			fieldMap["_dangling"] = fields[len(fields)-1]
		}
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     levelName(lv),
		Message:   msg,
		TraceID:   traceID,
		Component: l.component,
		Fields:    fieldMap,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.textMode {
		l.writeText(e)
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(l.out, "logging: marshal failed: %v\n", err)
		return
	}
	fmt.Fprintln(l.out, string(data))
}

func (l *jsonLogger) writeText(e entry) {
	parts := []string{e.Timestamp, "[" + e.Level + "]"}
	if e.Component != "" {
		parts = append(parts, "component="+e.Component)
	}
	if e.TraceID != "" && len(e.TraceID) >= 8 {
		parts = append(parts, "trace="+e.TraceID[:8])
	}
	parts = append(parts, e.Message)
	for k, v := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	fmt.Fprintln(l.out, strings.Join(parts, " "))
}
