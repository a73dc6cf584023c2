package observe

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level. Unknown values mean info.
func ParseLogLevel(s string) LogLevel {
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

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// structuredLogger writes one JSON object per entry through logrus.
type structuredLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a JSON logger on stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w. A nil w means
// stderr.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(ParseLogLevel(level).logrus())
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	return &structuredLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusLogger adapts an existing logrus logger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &structuredLogger{entry: logrus.NewEntry(l)}
}

func (l *structuredLogger) With(fields ...Field) Logger {
	return &structuredLogger{entry: l.entry.WithFields(toLogrus(fields))}
}

func (l *structuredLogger) WithRequest(meta RequestMeta) Logger {
	f := logrus.Fields{
		"component":   meta.Component,
		"http.method": meta.Method,
	}
	if meta.Route != "" {
		f["http.route"] = meta.Route
	}
	return &structuredLogger{entry: l.entry.WithFields(f)}
}

func (l *structuredLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.InfoLevel, msg, fields)
}

func (l *structuredLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.WarnLevel, msg, fields)
}

func (l *structuredLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.ErrorLevel, msg, fields)
}

func (l *structuredLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.DebugLevel, msg, fields)
}

func (l *structuredLogger) log(ctx context.Context, level logrus.Level, msg string, fields []Field) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}

	f := toLogrus(fields)
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			f["trace_id"] = sc.TraceID().String()
			f["span_id"] = sc.SpanID().String()
		}
	}

	l.entry.WithFields(f).Log(level, msg)
}

func toLogrus(fields []Field) logrus.Fields {
	f := make(logrus.Fields, len(fields))
	for _, field := range fields {
		if isRedactedField(field.Key) {
			f[field.Key] = "[REDACTED]"
			continue
		}
		f[field.Key] = field.Value
	}
	return f
}

func isRedactedField(key string) bool {
	key = strings.ToLower(key)
	for _, k := range RedactedFields {
		if key == k {
			return true
		}
	}
	return false
}

type nopLogger struct{}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (l nopLogger) With(...Field) Logger                  { return l }
func (l nopLogger) WithRequest(RequestMeta) Logger        { return l }
