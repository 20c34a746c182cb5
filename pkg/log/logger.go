package log

import (
	"os"
	"sync"
	"time"
)

// Logger is the logging interface claimd components depend on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs at FatalLevel and exits the process with status 1.
	Fatal(msg string, fields ...Field)

	// With returns a logger that attaches the given fields to every entry.
	With(fields ...Field) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Entry is a single formatted log record.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
}

// LoggerOption configures a logger built by NewLogger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements Logger over a Formatter and one or more Outputs.
type BaseLogger struct {
	mu        sync.Mutex
	level     Level
	fields    []Field
	formatter Formatter
	outputs   []Output
	exit      func(int)
	now       func() time.Time
}

// NewLogger creates a logger. Defaults: InfoLevel, JSON formatting, console
// output.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{
		level:     InfoLevel,
		formatter: &JSONFormatter{},
		exit:      os.Exit,
		now:       time.Now,
	}
	for _, option := range options {
		option(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = append(l.outputs, NewConsoleOutput())
	}
	return l
}

// WithLevel sets the minimum level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level = level }
}

// WithFormatter sets the entry formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	l.exit(1)
}

// With returns a child logger sharing formatter, outputs, and level.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := &BaseLogger{
		level:     l.level,
		fields:    append(append([]Field{}, l.fields...), fields...),
		formatter: l.formatter,
		outputs:   l.outputs,
		exit:      l.exit,
		now:       l.now,
	}
	return child
}

func (l *BaseLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *BaseLogger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}
	merged := make(Fields, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.Key] = f.Value
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    merged,
		Timestamp: l.now(),
	}
	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, out := range l.outputs {
		_ = out.Write(entry, formatted)
	}
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() Logger {
	return &BaseLogger{
		level:     FatalLevel + 1,
		formatter: &JSONFormatter{},
		outputs:   []Output{nopOutput{}},
		exit:      func(int) {},
		now:       time.Now,
	}
}

type nopOutput struct{}

func (nopOutput) Write(*Entry, []byte) error { return nil }
func (nopOutput) Close() error               { return nil }
