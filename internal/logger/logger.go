package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	LoggerKey    ctxKey = "logger"
)

var globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init configures the global logger. Unknown levels fall back to info.
func Init(level string, jsonFormat bool) {
	InitWithWriter(os.Stderr, level, jsonFormat)
}

// InitWithWriter is Init with an explicit sink.
func InitWithWriter(w io.Writer, level string, jsonFormat bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	output := w
	if !jsonFormat {
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	globalLogger = zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "storypoints").
		Logger()
}

func Global() *zerolog.Logger {
	return &globalLogger
}

// Get returns the logger stored in ctx, or the global one.
func Get(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &globalLogger
	}
	if l, ok := ctx.Value(LoggerKey).(*zerolog.Logger); ok {
		return l
	}
	return &globalLogger
}

// WithRequestID scopes a logger to one request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := Get(ctx).With().Str("request_id", requestID).Logger()
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	return context.WithValue(ctx, LoggerKey, &l)
}

// WithBoard scopes a logger to one board.
func WithBoard(ctx context.Context, boardID string) context.Context {
	l := Get(ctx).With().Str("board_id", boardID).Logger()
	return context.WithValue(ctx, LoggerKey, &l)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
