// Package format renders run summaries as terminal or Markdown tables.
package format

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal table
	Markdown             // GitHub-flavoured Markdown
)

// ParseMode maps "ascii"/"markdown"/"md" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("unknown report format %q", s)
}

// Table is a go-pretty writer bound to a Mode. Numeric columns are
// right-aligned by index.
type Table struct {
	w    table.Writer
	mode Mode
}

// NewTable returns an empty table rendering in m.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
		w.Style().Format.Header = text.FormatDefault
		w.Style().Format.Footer = text.FormatDefault
	}
	return &Table{w: w, mode: m}
}

func (t *Table) Header(cols ...any) { t.w.AppendHeader(table.Row(cols)) }

func (t *Table) Row(vals ...any) { t.w.AppendRow(table.Row(vals)) }

func (t *Table) Footer(vals ...any) { t.w.AppendFooter(table.Row(vals)) }

// AlignRight right-aligns the given 1-based columns.
func (t *Table) AlignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, n := range cols {
		cfgs[i] = table.ColumnConfig{Number: n, Align: text.AlignRight}
	}
	t.w.SetColumnConfigs(cfgs)
}

func (t *Table) String() string {
	if t.mode == Markdown {
		return t.w.RenderMarkdown()
	}
	return t.w.Render()
}

// Millis formats d as whole milliseconds, or seconds with one decimal from
// ten seconds up.
func Millis(d time.Duration) string {
	if d >= 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Mark returns "✓" for true and "✗" for false.
func Mark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
