// Package diag captures a best-effort page snapshot when a workflow fails.
//
// Capture is bounded by a wall-clock timer and never fails: errors, panics
// and timeouts inside the capture are folded into Snapshot.Incomplete so the
// failure that triggered it stays the one reported.
package diag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"ncjourney/internal/browser"
	"ncjourney/internal/logging"
)

// DefaultTimeout bounds a capture.
const DefaultTimeout = 20 * time.Second

// Target is anything that can describe its current page.
type Target interface {
	Snapshot(ctx context.Context) (browser.PageState, error)
}

// Snapshot is the captured state. Incomplete is set when the capture failed,
// panicked or ran out of time; Reason says which.
type Snapshot struct {
	URL        string        `json:"url,omitempty"`
	Title      string        `json:"title,omitempty"`
	HTMLBytes  int           `json:"html_bytes"`
	DumpPath   string        `json:"dump_path,omitempty"`
	CapturedAt time.Time     `json:"captured_at"`
	Took       time.Duration `json:"took"`
	Incomplete bool          `json:"capture_incomplete"`
	Reason     string        `json:"reason,omitempty"`

	html string
}

// HTML returns the captured document, empty when Incomplete.
func (s Snapshot) HTML() string { return s.html }

// Reporter captures snapshots. A nil *Reporter returns an incomplete snapshot.
type Reporter struct {
	// Timeout bounds one capture; zero means DefaultTimeout.
	Timeout time.Duration
	// DumpDir, when set, receives one HTML file per captured snapshot.
	DumpDir string
}

// NewReporter returns a Reporter bounded by timeout.
func NewReporter(timeout time.Duration, dumpDir string) *Reporter {
	return &Reporter{Timeout: timeout, DumpDir: dumpDir}
}

type outcome struct {
	state browser.PageState
	err   error
}

// Capture snapshots target within the reporter's timeout. label names the
// dump file. It returns no later than the timeout or ctx cancellation.
func (r *Reporter) Capture(ctx context.Context, target Target, label string) Snapshot {
	start := time.Now()
	snap := Snapshot{CapturedAt: start}
	if r == nil || target == nil {
		snap.Incomplete = true
		snap.Reason = "no capture target"
		return snap
	}
	logger := logging.New("diag")

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("capture panicked: %v", p)}
			}
		}()
		st, err := target.Snapshot(cctx)
		done <- outcome{state: st, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		snap.Took = time.Since(start)
		if o.err != nil {
			snap.Incomplete = true
			snap.Reason = o.err.Error()
		}
		snap.URL, snap.Title = o.state.URL, o.state.Title
		snap.html = o.state.HTML
		snap.HTMLBytes = len(o.state.HTML)
	case <-timer.C:
		snap.Took = time.Since(start)
		snap.Incomplete = true
		snap.Reason = fmt.Sprintf("capture exceeded %s", timeout)
	case <-cctx.Done():
		snap.Took = time.Since(start)
		snap.Incomplete = true
		snap.Reason = fmt.Sprintf("capture abandoned: %v", cctx.Err())
	}

	if snap.html != "" && r.DumpDir != "" {
		if path, err := r.dump(label, snap.html); err != nil {
			logger.Warn("page dump failed", "error", err)
		} else {
			snap.DumpPath = path
		}
	}

	logger.Info("diagnostic snapshot",
		"url", snap.URL, "title", snap.Title, "html_bytes", snap.HTMLBytes,
		"incomplete", snap.Incomplete, "reason", snap.Reason, "took", snap.Took)
	return snap
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (r *Reporter) dump(label, html string) (string, error) {
	if err := os.MkdirAll(r.DumpDir, 0o755); err != nil {
		return "", err
	}
	name := unsafeName.ReplaceAllString(label, "_")
	if name == "" {
		name = "snapshot"
	}
	path := filepath.Join(r.DumpDir, name+".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
