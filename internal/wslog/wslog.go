// Package wslog builds the worker's structured logger from spec.md §6.4's
// LOOL_LOG* configuration, the same variables the original process reads
// after every fork before doing anything else.
package wslog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/collabora-online/kitworker/internal/config"
)

// New builds a *slog.Logger honoring cfg's log settings. Output goes to a
// file when cfg.LogFile is set, otherwise to stderr. Log records are
// rendered as JSON when writing to a file (easy to ship/parse) and as plain
// text otherwise, matching the split the reference corpus uses between file
// and console sinks. cfg.LogColor has no effect: the text handler never
// emits ANSI color.
func New(cfg *config.Config) (*slog.Logger, error) {
	var w io.Writer = os.Stderr
	toFile := false
	if cfg.LogFile && cfg.LogFileName != "" {
		f, err := os.OpenFile(cfg.LogFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
		toFile = true
	}

	level := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if toFile {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = newTextHandler(w, opts, cfg.LogColor)
	}

	logger := slog.New(handler).With("component", "kit")
	return logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	// slog's stdlib text handler has no color support; color is a purely
	// cosmetic knob for interactive use and is intentionally not
	// implemented via a bespoke ANSI writer here — that would be exactly
	// the kind of hand-rolled stdlib substitute this project avoids
	// (see DESIGN.md). LOOL_LOGCOLOR is still parsed and threaded through
	// so a future handler swap has somewhere to plug in.
	_ = color
	return slog.NewTextHandler(w, opts)
}
