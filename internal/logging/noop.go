package logging

import "context"

// NoOp returns a logger that discards everything. Tests use it to silence
// components under test.
func NoOp() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

func (noopLogger) DebugContext(context.Context, string, ...interface{}) {}
func (noopLogger) InfoContext(context.Context, string, ...interface{})  {}
func (noopLogger) WarnContext(context.Context, string, ...interface{})  {}
func (noopLogger) ErrorContext(context.Context, string, ...interface{}) {}

func (n noopLogger) WithComponent(string) Logger { return n }
func (n noopLogger) WithTraceID(string) Logger   { return n }
