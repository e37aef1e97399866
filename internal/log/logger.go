// Package log builds the process-wide slog logger.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"expenses/internal/middleware/trace"
)

// Config holds logger configuration.
type Config struct {
	Level     slog.Level
	Format    string // text or json
	Component string
	Writer    io.Writer
}

// DefaultConfig logs text at info level to stdout.
func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Format: "text", Component: "app", Writer: os.Stdout}
}

// New creates a logger whose records carry the component and, when the
// context has one, the request id.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(requestIDHandler{h})
	if cfg.Component != "" {
		logger = logger.With(FieldComponent, cfg.Component)
	}
	return logger
}

// SetDefault installs logger as the slog default and returns it.
func SetDefault(logger *slog.Logger) *slog.Logger {
	slog.SetDefault(logger)
	return logger
}

type requestIDHandler struct {
	slog.Handler
}

func (h requestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := trace.RequestID(ctx); id != "" && !hasAttr(r, FieldRequestID) {
		r.AddAttrs(slog.String(FieldRequestID, id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestIDHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestIDHandler) WithGroup(name string) slog.Handler {
	return requestIDHandler{h.Handler.WithGroup(name)}
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
