// Package browsertest provides in-memory browser.Session and browser.Launcher
// fakes that record every call.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ncjourney/internal/browser"
)

// Call is one recorded session interaction.
type Call struct {
	Op      string
	Locator string
	Arg     string
}

type failure struct {
	op    string
	match string
	err   error
}

// Session is a scriptable browser.Session. The zero value is usable: every
// element resolves, Count reports 1 and downloads are refused.
type Session struct {
	Config browser.Config

	// Attrs answers Attribute by attribute name.
	Attrs map[string]string
	// Counts answers Count by locator substring; unmatched locators count 1.
	Counts map[string]int
	// EvalResult is returned from Evaluate.
	EvalResult any
	// DownloadName and DownloadSize shape the file written by Download.
	DownloadName string
	DownloadSize int64
	// State is returned from Snapshot after SnapshotDelay.
	State         browser.PageState
	SnapshotDelay time.Duration
	SnapshotErr   error

	mu       sync.Mutex
	calls    []Call
	failures []failure
	uploads  []browser.File
	closes   int
	onClose  func()
}

// FailOn makes every op call whose locator contains match return err. An
// empty op matches any operation.
func (s *Session) FailOn(op, match string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{op: op, match: match, err: err})
}

// Calls returns a copy of the recorded calls.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the recorded operation names in order.
func (s *Session) Ops() []string {
	var ops []string
	for _, c := range s.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

// Uploads returns the files handed to Upload.
func (s *Session) Uploads() []browser.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.File(nil), s.uploads...)
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Session) record(op string, loc *browser.Locator, arg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Call{Op: op, Arg: arg}
	if loc != nil {
		c.Locator = loc.String()
	}
	s.calls = append(s.calls, c)
	if s.closes > 0 {
		return browser.ErrSessionClosed
	}
	for _, f := range s.failures {
		if f.op != "" && f.op != op {
			continue
		}
		if strings.Contains(c.Locator, f.match) || strings.Contains(arg, f.match) {
			return f.err
		}
	}
	return nil
}

func (s *Session) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.record("goto", nil, url)
}

func (s *Session) Click(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.record("click", &loc, "")
}

func (s *Session) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.record("fill", &loc, value)
}

func (s *Session) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.record("wait", &loc, "")
}

func (s *Session) Count(ctx context.Context, loc browser.Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.record("count", &loc, ""); err != nil {
		return 0, err
	}
	key := loc.String()
	for match, n := range s.Counts {
		if strings.Contains(key, match) {
			return n, nil
		}
	}
	return 1, nil
}

func (s *Session) Attribute(ctx context.Context, loc browser.Locator, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.record("attribute", &loc, name); err != nil {
		return "", err
	}
	v, ok := s.Attrs[name]
	if !ok {
		return "", browser.NotFound("attribute "+name, loc, nil)
	}
	return v, nil
}

func (s *Session) Upload(ctx context.Context, trigger browser.Locator, f browser.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.record("upload", &trigger, f.Name); err != nil {
		return err
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, f)
	s.mu.Unlock()
	return nil
}

func (s *Session) Evaluate(ctx context.Context, expr string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.record("evaluate", nil, expr); err != nil {
		return nil, err
	}
	return s.EvalResult, nil
}

// Snapshot sleeps for SnapshotDelay ignoring ctx, like a page dump stuck on
// a hung renderer.
func (s *Session) Snapshot(context.Context) (browser.PageState, error) {
	if err := s.record("snapshot", nil, ""); err != nil {
		return browser.PageState{}, err
	}
	if s.SnapshotDelay > 0 {
		time.Sleep(s.SnapshotDelay)
	}
	return s.State, s.SnapshotErr
}

func (s *Session) Downloader() (browser.Downloader, error) {
	if !s.Config.AcceptDownloads {
		return nil, browser.DownloadsDisabled()
	}
	return downloader{s}, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	n, onClose := s.closes, s.onClose
	s.mu.Unlock()
	if n > 1 {
		return browser.ErrSessionClosed
	}
	if onClose != nil {
		onClose()
	}
	return nil
}

type downloader struct{ s *Session }

// Download writes DownloadSize bytes to the session's download directory.
func (d downloader) Download(ctx context.Context, trigger browser.Locator) (browser.Download, error) {
	if err := ctx.Err(); err != nil {
		return browser.Download{}, err
	}
	if err := d.s.record("download", &trigger, ""); err != nil {
		return browser.Download{}, err
	}
	name := d.s.DownloadName
	if name == "" {
		name = "download.bin"
	}
	dir := d.s.Config.DownloadDir
	if dir == "" {
		return browser.Download{}, fmt.Errorf("fake download: no download dir")
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return browser.Download{}, err
	}
	defer f.Close()
	if err := f.Truncate(d.s.DownloadSize); err != nil {
		return browser.Download{}, err
	}
	return browser.Download{Path: path, SuggestedName: name}, nil
}

// Launcher hands out Sessions and counts launches and releases.
type Launcher struct {
	// Setup customises each new session before it is returned.
	Setup func(*Session)
	// Err fails every launch.
	Err error

	mu       sync.Mutex
	sessions []*Session
	released int
}

func (l *Launcher) Launch(ctx context.Context, cfg browser.Config) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Err != nil {
		return nil, l.Err
	}
	s := &Session{Config: cfg}
	s.onClose = func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}
	if l.Setup != nil {
		l.Setup(s)
	}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns the launched sessions in order.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Launched reports how many sessions were started.
func (l *Launcher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Released reports how many sessions were closed.
func (l *Launcher) Released() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}
