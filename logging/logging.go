// Package logging holds the process-wide structured logger shared by every
// storesync package.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Init configures the shared logger.
// Console output is always on: INFO goes to stdout, WARN and above to stderr.
// When dir is non-empty, level-split rotating files are written as well:
//   - storesync_warn.log: WARN + ERROR
//   - storesync_info.log: INFO only (1MB, 1 backup)
//   - storesync_debug.log: DEBUG only (1MB, 1 backup), only when level is debug
func Init(dir string, level slog.Level) {
	console := &consoleHandler{
		min:    level,
		stdout: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		stderr: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	handlers := []slog.Handler{console, &errorCaptureHandler{}}

	if dir != "" {
		os.MkdirAll(dir, 0750) //nolint:errcheck

		handlers = append(handlers,
			slog.NewTextHandler(&lumberjack.Logger{
				Filename:   filepath.Join(dir, "storesync_warn.log"),
				MaxSize:    100,
				MaxBackups: 3,
			}, &slog.HandlerOptions{Level: slog.LevelWarn}),
			&levelRangeHandler{
				min: slog.LevelInfo,
				max: slog.LevelInfo,
				inner: slog.NewTextHandler(&lumberjack.Logger{
					Filename:   filepath.Join(dir, "storesync_info.log"),
					MaxSize:    1,
					MaxBackups: 1,
				}, &slog.HandlerOptions{Level: slog.LevelInfo}),
			},
		)
		if level <= slog.LevelDebug {
			handlers = append(handlers, &levelRangeHandler{
				min: slog.LevelDebug,
				max: slog.LevelDebug,
				inner: slog.NewTextHandler(&lumberjack.Logger{
					Filename:   filepath.Join(dir, "storesync_debug.log"),
					MaxSize:    1,
					MaxBackups: 1,
				}, &slog.HandlerOptions{Level: slog.LevelDebug}),
			})
		}
	}

	Set(slog.New(&multiHandler{handlers: handlers}))
}

// Set replaces the shared logger. Tests use it to capture output.
func Set(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the shared logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sub returns a child logger tagged with the given component name.
func Sub(component string) *slog.Logger {
	return L().With("comp", component)
}

// Enabled reports whether level is enabled. Guard hot DEBUG paths with it.
func Enabled(level slog.Level) bool {
	return L().Enabled(context.Background(), level)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type consoleHandler struct {
	min    slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderr.Handle(ctx, r)
	}
	return h.stdout.Handle(ctx, r)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{min: h.min, stdout: h.stdout.WithAttrs(attrs), stderr: h.stderr.WithAttrs(attrs)}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return &consoleHandler{min: h.min, stdout: h.stdout.WithGroup(name), stderr: h.stderr.WithGroup(name)}
}

// Entry is a captured error-level log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Comp    string    `json:"comp"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

const ringSize = 2

var errorRing struct {
	mu      sync.Mutex
	entries [ringSize]Entry
	count   int
}

// RecentErrors returns the most recent error entries, newest first.
func RecentErrors() []Entry {
	errorRing.mu.Lock()
	defer errorRing.mu.Unlock()
	n := min(errorRing.count, ringSize)
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = errorRing.entries[(errorRing.count-1-i)%ringSize]
	}
	return out
}

// errorCaptureHandler keeps comp attributes set through With, which the
// record itself does not carry.
type errorCaptureHandler struct {
	comp string
}

func (h *errorCaptureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *errorCaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := Entry{Time: r.Time, Comp: h.comp, Message: r.Message}
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "comp":
			entry.Comp = a.Value.String()
		case "err":
			entry.Error = a.Value.String()
		}
		return true
	})
	errorRing.mu.Lock()
	errorRing.entries[errorRing.count%ringSize] = entry
	errorRing.count++
	errorRing.mu.Unlock()
	return nil
}

func (h *errorCaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	comp := h.comp
	for _, a := range attrs {
		if a.Key == "comp" {
			comp = a.Value.String()
		}
	}
	return &errorCaptureHandler{comp: comp}
}

func (h *errorCaptureHandler) WithGroup(_ string) slog.Handler { return h }

type levelRangeHandler struct {
	min, max slog.Level
	inner    slog.Handler
}

func (h *levelRangeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min && level <= h.max
}

func (h *levelRangeHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelRangeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelRangeHandler) WithGroup(name string) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithGroup(name)}
}

type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
