// Package logging routes slog records to a hal.Logger line sink.
package logging

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"chibi/hal"
)

// Options configures a logger.
type Options struct {
	Level slog.Level // Minimum level. Default: LevelInfo
	JSON  bool       // Emit JSON records instead of key=value text
}

// New returns a logger writing one line per record to l.
func New(l hal.Logger, opts Options) *slog.Logger {
	w := &lineWriter{out: l}
	ho := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Discard returns a logger dropping everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a
// slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(s))
	return lvl, err
}

// lineWriter splits writes into lines. slog handlers write each record
// with a single call, partial lines are kept until completed.
type lineWriter struct {
	mu      sync.Mutex
	out     hal.Logger
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.pending = append(w.pending, p...)
			break
		}
		if len(w.pending) > 0 {
			w.pending = append(w.pending, p[:i]...)
			w.out.WriteLineBytes(w.pending)
			w.pending = w.pending[:0]
		} else {
			w.out.WriteLineBytes(p[:i])
		}
		p = p[i+1:]
	}
	return n, nil
}
