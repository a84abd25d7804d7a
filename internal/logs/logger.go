package logs

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	DEBUG Level = "DEBUG"
)

// ParseLevel maps a case-insensitive level name to a Level.
// Unknown names fall back to INFO.
func ParseLevel(s string) Level {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(s)); err != nil {
		return INFO
	}
	return fromZap(zl)
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZap(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return DEBUG
	case l == zapcore.InfoLevel:
		return INFO
	case l == zapcore.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}

type Entry struct {
	TimeStamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger is a structured zap logger that also keeps the most recent
// entries in memory for diagnostics.
type Logger struct {
	zap  *zap.Logger
	ring *ring
}

type Option func(*options)

type options struct {
	output io.Writer
}

// WithOutput additionally writes JSON-encoded entries to w.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// level: minimum log level to record(e.g., INFO, WARN, ERROR,DEBUG)
//
// maxSize: maximum number of log entries kept in memory
func NewLogger(maxSize int, level Level, opts ...Option) *Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	enabler := zap.NewAtomicLevelAt(level.zap())
	buf := &ring{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}

	var core zapcore.Core = &ringCore{LevelEnabler: enabler, buf: buf}
	if o.output != nil {
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, zapcore.AddSync(o.output), enabler))
	}

	return &Logger{
		zap:  zap.New(core),
		ring: buf,
	}
}

// With returns a child logger carrying fields; it shares the in-memory buffer.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:  l.zap.With(fields...),
		ring: l.ring,
	}
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Sync flushes any buffered output.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) GetLast(n int) []Entry {
	return l.ring.last(n)
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

func (r *ring) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize <= 0 {
		return
	}
	if len(r.entries) >= r.maxSize {
		//remove oldest entry(ring behavior)
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, e)
}

func (r *ring) last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.entries) {
		n = len(r.entries)
	}
	if n < 0 {
		n = 0
	}

	start := len(r.entries) - n
	out := make([]Entry, n)
	copy(out, r.entries[start:])
	return out
}

// ringCore is a zapcore.Core that records entries into a ring.
type ringCore struct {
	zapcore.LevelEnabler
	buf    *ring
	fields []zapcore.Field
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	var kv map[string]any
	if len(c.fields)+len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}
		for _, f := range fields {
			f.AddTo(enc)
		}
		kv = enc.Fields
	}

	c.buf.append(Entry{
		TimeStamp: ent.Time,
		Level:     fromZap(ent.Level),
		Message:   ent.Message,
		Fields:    kv,
	})
	return nil
}

func (c *ringCore) Sync() error {
	return nil
}
