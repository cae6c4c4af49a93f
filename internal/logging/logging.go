package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Formats accepted by Init.
const (
	FormatText = "text"
	FormatJSON = "json"
	// FormatNote writes "<unix-microseconds> <message> k=v..." lines, the flow
	// note format measurement harnesses parse from stdout.
	FormatNote = "note"
)

// Init configures the global slog default with the given level and format.
// If w is nil, os.Stderr is used for text/json and os.Stdout for note.
func Init(level slog.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if format == FormatNote {
		writer = os.Stdout
	}
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, opts)
	case FormatNote:
		handler = NewNoteHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// New returns a logger with a "component" attribute for module-scoped logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// NoteHandler renders records as single flow-note lines.
type NoteHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
	now   func() time.Time
}

// NewNoteHandler returns a handler writing note lines to w.
func NewNoteHandler(w io.Writer, opts *slog.HandlerOptions) *NoteHandler {
	h := &NoteHandler{mu: &sync.Mutex{}, w: w, level: slog.LevelInfo, now: time.Now}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *NoteHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *NoteHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", ts.UnixMicro(), r.Message)
	write := func(a slog.Attr) bool {
		if a.Key == "component" {
			return true
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value.Resolve())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *NoteHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *NoteHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}
