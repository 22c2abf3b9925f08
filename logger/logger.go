// Package logger - zerolog root logger with request-scoped children.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger is the logging type used across the module.
type Logger = zerolog.Logger

// Options configures the root logger.
type Options struct {
	// Level is one of trace, debug, info, warn, error, fatal, panic.
	Level string `json:"level" yaml:"level"`
	// Format is either "console" or "json".
	Format string `json:"format" yaml:"format"`
	// Service is attached to every event when set.
	Service string `json:"service" yaml:"service"`
	// WithCaller adds file:line to every event.
	WithCaller bool `json:"with_caller" yaml:"with_caller"`
	// Writer overrides stdout (tests).
	Writer io.Writer `json:"-" yaml:"-"`
}

var (
	root        atomic.Pointer[zerolog.Logger]
	defaultOnce sync.Once
)

// Init builds the root logger. Later calls replace it, so a logger obtained
// before configuration was loaded keeps the defaults.
//
// Arguments:
//   - opt: The logger options.
func Init(opt Options) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.EqualFold(opt.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	log := ctx.Logger()
	if opt.WithCaller {
		log = log.With().Caller().Logger()
	}
	root.Store(&log)
}

// Get returns the root logger, initialising it with defaults when needed.
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	defaultOnce.Do(func() {
		if root.Load() == nil {
			Init(Options{Level: "info", Format: "json"})
		}
	})
	return root.Load()
}

// Named returns a child logger tagged with a component.
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

// ParseLevel maps a level name onto a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

type ctxKey struct{ name string }

var keyRequestID = ctxKey{"request_id"}

// WithRequestID stores a request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID returns the request id stored on ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}

// C returns a child logger carrying the request id found on ctx.
func C(ctx context.Context) *Logger {
	l := Get()
	if id := RequestID(ctx); id != "" {
		ll := l.With().Str("request_id", id).Logger()
		return &ll
	}
	return l
}
