// Package pwdriver drives chromium and firefox through playwright.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"ncjourney/internal/browser"
	"ncjourney/internal/logging"
)

// Launcher starts one playwright driver on first use and shares it across
// sessions. Close stops it.
type Launcher struct {
	// RunOptions are passed to playwright.Run.
	RunOptions *playwright.RunOptions

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewLauncher returns a Launcher; the driver starts on the first Launch.
func NewLauncher() *Launcher { return &Launcher{} }

func (l *Launcher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw != nil {
		return l.pw, nil
	}
	var opts []*playwright.RunOptions
	if l.RunOptions != nil {
		opts = append(opts, l.RunOptions)
	}
	pw, err := playwright.Run(opts...)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Launch starts a browser with one fresh context and page.
func (l *Launcher) Launch(ctx context.Context, cfg browser.Config) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	var bt playwright.BrowserType
	switch cfg.Kind {
	case browser.Chromium:
		bt = pw.Chromium
	case browser.Firefox:
		bt = pw.Firefox
	default:
		return nil, fmt.Errorf("%w: %q", browser.ErrUnsupportedKind, cfg.Kind)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     cfg.Args,
		Timeout:  timeout(ctx),
	}
	if cfg.AcceptDownloads && cfg.DownloadDir != "" {
		opts.DownloadsPath = playwright.String(cfg.DownloadDir)
	}
	b, err := bt.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", cfg.Kind, err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(cfg.AcceptDownloads),
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &Session{cfg: cfg, browser: b, context: bctx, page: page}, nil
}

// Close stops the playwright driver.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

// Session is one browser with a single context and page.
type Session struct {
	cfg     browser.Config
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Goto(ctx context.Context, url string) error {
	if s.isClosed() {
		return browser.ErrSessionClosed
	}
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, loc browser.Locator) error {
	if s.isClosed() {
		return browser.ErrSessionClosed
	}
	return wrap("click", loc, s.locate(loc).Click(playwright.LocatorClickOptions{Timeout: timeout(ctx)}))
}

func (s *Session) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if s.isClosed() {
		return browser.ErrSessionClosed
	}
	return wrap("fill", loc, s.locate(loc).Fill(value, playwright.LocatorFillOptions{Timeout: timeout(ctx)}))
}

func (s *Session) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if s.isClosed() {
		return browser.ErrSessionClosed
	}
	return wrap("wait", loc, s.locate(loc).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout(ctx),
	}))
}

func (s *Session) Count(ctx context.Context, loc browser.Locator) (int, error) {
	if s.isClosed() {
		return 0, browser.ErrSessionClosed
	}
	n, err := s.locate(loc).Count()
	return n, wrap("count", loc, err)
}

func (s *Session) Attribute(ctx context.Context, loc browser.Locator, name string) (string, error) {
	if s.isClosed() {
		return "", browser.ErrSessionClosed
	}
	v, err := s.locate(loc).GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: timeout(ctx)})
	return v, wrap("attribute "+name, loc, err)
}

func (s *Session) Upload(ctx context.Context, trigger browser.Locator, f browser.File) error {
	if s.isClosed() {
		return browser.ErrSessionClosed
	}
	fc, err := s.page.ExpectFileChooser(func() error {
		return s.locate(trigger).Click(playwright.LocatorClickOptions{Timeout: timeout(ctx)})
	}, playwright.PageExpectFileChooserOptions{Timeout: timeout(ctx)})
	if err != nil {
		return wrap("upload", trigger, err)
	}
	err = fc.SetFiles([]playwright.InputFile{{Name: f.Name, MimeType: f.MimeType, Buffer: f.Data}},
		playwright.FileChooserSetFilesOptions{Timeout: timeout(ctx)})
	if err != nil {
		return fmt.Errorf("set files %s: %w", f.Name, err)
	}
	return nil
}

func (s *Session) Evaluate(ctx context.Context, expr string) (any, error) {
	if s.isClosed() {
		return nil, browser.ErrSessionClosed
	}
	v, err := s.page.Evaluate(expr)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return v, nil
}

func (s *Session) Snapshot(ctx context.Context) (browser.PageState, error) {
	if s.isClosed() {
		return browser.PageState{}, browser.ErrSessionClosed
	}
	st := browser.PageState{URL: s.page.URL()}
	if title, err := s.page.Title(); err == nil {
		st.Title = title
	}
	html, err := s.page.Content()
	if err != nil {
		return st, fmt.Errorf("page content: %w", err)
	}
	st.HTML = html
	return st, nil
}

func (s *Session) Downloader() (browser.Downloader, error) {
	if !s.cfg.AcceptDownloads {
		return nil, browser.DownloadsDisabled()
	}
	return downloader{s}, nil
}

// Close closes the context and the browser. Later calls return
// ErrSessionClosed.
func (s *Session) Close() error {
	err := browser.ErrSessionClosed
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = errors.Join(s.context.Close(), s.browser.Close())
	})
	return err
}

func (s *Session) locate(loc browser.Locator) playwright.Locator {
	var cur playwright.Locator
	for _, c := range loc.Chain() {
		cur = s.step(cur, c)
		if c.HasText != "" {
			cur = cur.Filter(playwright.LocatorFilterOptions{HasText: c.HasText})
		}
		if c.First {
			cur = cur.First()
		}
	}
	return cur
}

func (s *Session) step(parent playwright.Locator, c browser.Locator) playwright.Locator {
	if c.Role != "" {
		role := playwright.AriaRole(c.Role)
		if parent == nil {
			opts := playwright.PageGetByRoleOptions{}
			if c.Name != "" {
				opts.Name = c.Name
				opts.Exact = playwright.Bool(true)
			}
			return s.page.GetByRole(role, opts)
		}
		opts := playwright.LocatorGetByRoleOptions{}
		if c.Name != "" {
			opts.Name = c.Name
			opts.Exact = playwright.Bool(true)
		}
		return parent.GetByRole(role, opts)
	}
	if parent == nil {
		return s.page.Locator(c.CSS)
	}
	return parent.Locator(c.CSS)
}

type downloader struct{ s *Session }

// Download clicks trigger, waits for the download it starts and saves it as
// the suggested file name under the download directory.
func (d downloader) Download(ctx context.Context, trigger browser.Locator) (browser.Download, error) {
	if d.s.isClosed() {
		return browser.Download{}, browser.ErrSessionClosed
	}
	dl, err := d.s.page.ExpectDownload(func() error {
		return d.s.locate(trigger).Click(playwright.LocatorClickOptions{Timeout: timeout(ctx)})
	}, playwright.PageExpectDownloadOptions{Timeout: timeout(ctx)})
	if err != nil {
		return browser.Download{}, wrap("download", trigger, err)
	}
	name := filepath.Base(dl.SuggestedFilename())
	path := filepath.Join(d.s.cfg.DownloadDir, name)
	if err := dl.SaveAs(path); err != nil {
		return browser.Download{}, fmt.Errorf("save download %s: %w", name, err)
	}
	logging.New("pwdriver").Debug("download saved", "path", path)
	return browser.Download{Path: path, SuggestedName: name}, nil
}

// timeout converts the ctx deadline into a playwright timeout in
// milliseconds. Without a deadline playwright's own default applies.
func timeout(ctx context.Context) *float64 {
	dl, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(dl).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

func wrap(op string, loc browser.Locator, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return browser.NotFound(op, loc, err)
	}
	return &browser.ElementError{Locator: loc, Op: op, Err: err}
}
