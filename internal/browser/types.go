// Package browser defines the session port the journey drives and the scoped
// launcher that owns one isolated browser context per workflow run.
//
// Drivers live in subpackages: pwdriver (playwright, chromium and firefox) and
// cdpdriver (chromedp, chromium only).
package browser

import (
	"context"
	"fmt"
	"strings"
)

// Kind selects the browser engine.
type Kind string

const (
	Chromium Kind = "chromium"
	Firefox  Kind = "firefox"
)

// DefaultKind is used when no engine is named.
const DefaultKind = Firefox

// Kinds lists the supported engines in CLI order.
func Kinds() []Kind { return []Kind{Chromium, Firefox} }

// ParseKind resolves an engine name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Chromium:
		return Chromium, nil
	case Firefox:
		return Firefox, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// Config configures one isolated browser context.
type Config struct {
	Kind            Kind
	Headless        bool
	DownloadDir     string
	AcceptDownloads bool
	IgnoreTLSErrors bool
	// Args are extra engine command-line flags.
	Args []string
}

// File is an in-memory upload payload handed to a file chooser.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Download is a file saved by a Downloader.
type Download struct {
	Path          string
	SuggestedName string
}

// PageState is the diagnostic view of the current page.
type PageState struct {
	URL   string
	Title string
	HTML  string
}

// Session is one isolated browser context with a single page. A Session is
// owned by exactly one workflow run and is not safe for concurrent use.
//
// Every blocking call is bounded by the context deadline.
type Session interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	WaitVisible(ctx context.Context, loc Locator) error
	Count(ctx context.Context, loc Locator) (int, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, error)
	// Upload clicks trigger, waits for the file chooser it opens and sets f.
	Upload(ctx context.Context, trigger Locator, f File) error
	Evaluate(ctx context.Context, expr string) (any, error)
	Snapshot(ctx context.Context) (PageState, error)
	// Downloader returns the download capability. It fails with
	// ErrCapabilityUnavailable when the session does not accept downloads.
	Downloader() (Downloader, error)
	Close() error
}

// Downloader captures a download started by clicking trigger and saves it
// under the session's download directory using the suggested file name.
type Downloader interface {
	Download(ctx context.Context, trigger Locator) (Download, error)
}

// Launcher starts sessions for one driver.
type Launcher interface {
	Launch(ctx context.Context, cfg Config) (Session, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, cfg Config) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context, cfg Config) (Session, error) { return f(ctx, cfg) }
