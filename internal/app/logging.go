package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/sirosfoundation/go-ebics/internal/config"
)

// NewLogger builds a text or JSON logger writing to w, stderr when nil.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
