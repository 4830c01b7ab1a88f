package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level and output format
type Config struct {
	Level  string
	Format string // console or json
}

type ctxKey string

const (
	ctxBoundary ctxKey = "boundary"
	ctxStage    ctxKey = "stage"
)

// WithBoundary tags loggers taken from ctx with the boundary file name
func WithBoundary(ctx context.Context, boundary string) context.Context {
	if boundary == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxBoundary, boundary)
}

// WithStage tags loggers taken from ctx with the pipeline stage
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxStage, stage)
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Build creates the process logger. out defaults to stderr.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	if v := ctx.Value(ctxBoundary); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("boundary", s)
		}
	}
	if v := ctx.Value(ctxStage); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("stage", s)
		}
	}
	l := w.Logger()
	return &l
}
