// Package cdpdriver drives chromium over the DevTools protocol with chromedp.
// It needs no playwright driver install but supports chromium only.
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"ncjourney/internal/browser"
	"ncjourney/internal/logging"
)

// Launcher starts a local chromium per session.
type Launcher struct {
	// ExecPath overrides chromedp's browser lookup.
	ExecPath string
}

// NewLauncher returns a Launcher using the chromium found on PATH.
func NewLauncher() *Launcher { return &Launcher{} }

// Launch starts chromium with a fresh profile and one tab.
func (l *Launcher) Launch(ctx context.Context, cfg browser.Config) (browser.Session, error) {
	if cfg.Kind != browser.Chromium {
		return nil, fmt.Errorf("%w: cdp driver runs chromium only, got %q", browser.ErrUnsupportedKind, cfg.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
	)
	for _, arg := range cfg.Args {
		name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	// The browser outlives ctx; it is stopped by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{cfg: cfg, ctx: tabCtx, cancel: func() { tabCancel(); allocCancel() }}

	// The first Run starts chromium and binds it to the context it gets, so
	// it runs on the tab context itself.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx, page.SetInterceptFileChooserDialog(true))
	if !stop() {
		return nil, fmt.Errorf("start chromium: %w", ctx.Err())
	}
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chromium: %w", err)
	}
	if cfg.AcceptDownloads {
		err := s.run(ctx, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(cfg.DownloadDir).
			WithEventsEnabled(true))
		if err != nil {
			s.cancel()
			return nil, fmt.Errorf("enable downloads: %w", err)
		}
	}
	return s, nil
}

// Session is one chromium process with a single tab.
type Session struct {
	cfg    browser.Config
	ctx    context.Context
	cancel func()

	mu     sync.Mutex
	closed bool
}

// run executes actions on the tab, bounded by ctx's deadline and
// cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return browser.ErrSessionClosed
	}
	rctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var tcancel context.CancelFunc
		rctx, tcancel = context.WithDeadline(rctx, dl)
		defer tcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(rctx, actions...)
}

func (s *Session) Goto(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, loc browser.Locator) error {
	return wrap(ctx, "click", loc, s.run(ctx, chromedp.Click(element(loc), chromedp.ByJSPath)))
}

func (s *Session) Fill(ctx context.Context, loc browser.Locator, value string) error {
	sel := element(loc)
	return wrap(ctx, "fill", loc, s.run(ctx,
		chromedp.Clear(sel, chromedp.ByJSPath),
		chromedp.SendKeys(sel, value, chromedp.ByJSPath),
	))
}

func (s *Session) WaitVisible(ctx context.Context, loc browser.Locator) error {
	return wrap(ctx, "wait", loc, s.run(ctx, chromedp.WaitVisible(element(loc), chromedp.ByJSPath)))
}

func (s *Session) Count(ctx context.Context, loc browser.Locator) (int, error) {
	var n int
	err := s.run(ctx, chromedp.Evaluate(count(loc), &n))
	return n, wrap(ctx, "count", loc, err)
}

func (s *Session) Attribute(ctx context.Context, loc browser.Locator, name string) (string, error) {
	var (
		v  string
		ok bool
	)
	err := s.run(ctx, chromedp.AttributeValue(element(loc), name, &v, &ok, chromedp.ByJSPath))
	if err != nil {
		return "", wrap(ctx, "attribute "+name, loc, err)
	}
	if !ok {
		return "", browser.NotFound("attribute "+name, loc, nil)
	}
	return v, nil
}

// Upload writes f to a temporary file, clicks trigger and hands the file to
// the chooser the click opens.
func (s *Session) Upload(ctx context.Context, trigger browser.Locator, f browser.File) error {
	dir, err := os.MkdirTemp("", "ncjourney-upload-")
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0o600); err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}

	opened := make(chan cdp.BackendNodeID, 1)
	lctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	chromedp.ListenTarget(lctx, func(ev any) {
		if e, ok := ev.(*page.EventFileChooserOpened); ok {
			select {
			case opened <- e.BackendNodeID:
			default:
			}
		}
	})

	if err := s.run(ctx, chromedp.Click(element(trigger), chromedp.ByJSPath)); err != nil {
		return wrap(ctx, "upload", trigger, err)
	}
	select {
	case id := <-opened:
		if err := s.run(ctx, dom.SetFileInputFiles([]string{path}).WithBackendNodeID(id)); err != nil {
			return fmt.Errorf("set files %s: %w", f.Name, err)
		}
		return nil
	case <-ctx.Done():
		return browser.NotFound("upload", trigger, fmt.Errorf("no file chooser opened: %w", ctx.Err()))
	}
}

func (s *Session) Evaluate(ctx context.Context, expr string) (any, error) {
	var v any
	err := s.run(ctx, chromedp.Evaluate(expr, &v, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return v, nil
}

func (s *Session) Snapshot(ctx context.Context) (browser.PageState, error) {
	var st browser.PageState
	err := s.run(ctx,
		chromedp.Location(&st.URL),
		chromedp.Title(&st.Title),
		chromedp.OuterHTML("html", &st.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return st, fmt.Errorf("page content: %w", err)
	}
	return st, nil
}

func (s *Session) Downloader() (browser.Downloader, error) {
	if !s.cfg.AcceptDownloads {
		return nil, browser.DownloadsDisabled()
	}
	return downloader{s}, nil
}

// Close stops chromium. Later calls return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type downloader struct{ s *Session }

type progress struct {
	guid  string
	name  string
	state cdpbrowser.DownloadProgressState
}

// Download clicks trigger and waits for the download it starts to
// complete. Chromium saves it under its GUID; it is renamed to the
// suggested file name.
func (d downloader) Download(ctx context.Context, trigger browser.Locator) (browser.Download, error) {
	events := make(chan progress, 16)
	lctx, cancel := context.WithCancel(d.s.ctx)
	defer cancel()
	chromedp.ListenBrowser(lctx, func(ev any) {
		var p progress
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			p = progress{guid: e.GUID, name: e.SuggestedFilename}
		case *cdpbrowser.EventDownloadProgress:
			if e.State == cdpbrowser.DownloadProgressStateInProgress {
				return
			}
			p = progress{guid: e.GUID, state: e.State}
		default:
			return
		}
		select {
		case events <- p:
		case <-lctx.Done():
		}
	})

	if err := d.s.run(ctx, chromedp.Click(element(trigger), chromedp.ByJSPath)); err != nil {
		return browser.Download{}, wrap(ctx, "download", trigger, err)
	}

	var guid, name string
	for {
		select {
		case p := <-events:
			if p.name != "" && guid == "" {
				guid, name = p.guid, filepath.Base(p.name)
				continue
			}
			if p.guid != guid || guid == "" {
				continue
			}
			switch p.state {
			case cdpbrowser.DownloadProgressStateCompleted:
				return d.finish(guid, name)
			case cdpbrowser.DownloadProgressStateCanceled:
				return browser.Download{}, fmt.Errorf("download %s canceled", name)
			}
		case <-ctx.Done():
			if guid == "" {
				return browser.Download{}, browser.NotFound("download", trigger, fmt.Errorf("no download started: %w", ctx.Err()))
			}
			return browser.Download{}, fmt.Errorf("download %s: %w", name, ctx.Err())
		}
	}
}

func (d downloader) finish(guid, name string) (browser.Download, error) {
	dir := d.s.cfg.DownloadDir
	path := filepath.Join(dir, name)
	if err := os.Rename(filepath.Join(dir, guid), path); err != nil {
		return browser.Download{}, fmt.Errorf("save download %s: %w", name, err)
	}
	logging.New("cdpdriver").Debug("download saved", "path", path)
	return browser.Download{Path: path, SuggestedName: name}, nil
}

// wrap maps a deadline hit while resolving loc to ErrElementNotFound.
func wrap(ctx context.Context, op string, loc browser.Locator, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return browser.NotFound(op, loc, err)
	}
	return &browser.ElementError{Locator: loc, Op: op, Err: err}
}
