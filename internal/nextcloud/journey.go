// Package nextcloud composes the Files app journey: log in, upload a file,
// share it, download it through the public link in a fresh browser, verify
// the download and delete the file.
package nextcloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"ncjourney/internal/browser"
	"ncjourney/internal/config"
	"ncjourney/internal/diag"
	"ncjourney/internal/fixture"
	"ncjourney/internal/logging"
	"ncjourney/internal/verify"
	"ncjourney/internal/workflow"
)

// Workflow names used in results and metrics.
const (
	MainWorkflow     = "files"
	DownloadWorkflow = "shared-download"
)

const (
	modalWait    = 3 * time.Second
	pollInterval = 250 * time.Millisecond
)

// ArtifactVerifier checks a downloaded file.
type ArtifactVerifier interface {
	Verify(a verify.Artifact, exp verify.SizeExpectation) error
}

// Journey runs the Files app journey for one engine. Fields left nil take
// defaults from Config.
type Journey struct {
	Config   *config.Config
	Engine   browser.Kind
	Launcher browser.Launcher
	Locators *Locators
	Verifier ArtifactVerifier
	Reporter *diag.Reporter

	Observers []workflow.Observer
	// OnArtifact is called with every verified download.
	OnArtifact func(engine browser.Kind, a verify.Artifact)
	// FileName names the uploaded file.
	FileName func() string
}

// New returns a Journey wired from cfg.
func New(cfg *config.Config, engine browser.Kind, l browser.Launcher) *Journey {
	return &Journey{
		Config:   cfg,
		Engine:   engine,
		Launcher: l,
		Locators: DefaultLocators(),
		Verifier: verify.New(cfg.SizeTolerance),
		Reporter: diag.NewReporter(cfg.DiagnosticTimeout, cfg.DumpDir),
		FileName: fixture.FileName,
	}
}

// Outcome collects what a journey produced. Download is nil when the run
// stopped before the shared-download step launched its browser.
type Outcome struct {
	Engine   browser.Kind
	Main     *workflow.Result
	Download *workflow.Result
	FileName string
	ShareURL string
	Artifact *verify.Artifact
}

// OK reports whether both workflows completed.
func (o *Outcome) OK() bool {
	return o != nil && o.Main.OK() && o.Download.OK()
}

// state is shared between the steps of one run. Steps abandoned at their
// deadline may still write to it, so access is locked.
type state struct {
	mu  sync.Mutex
	out *Outcome
}

func (s *state) set(fn func(o *Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.out)
}

func (s *state) get() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.out
}

// Run launches the main browser, runs the journey and releases every
// browser it launched. The returned Outcome is non-nil.
func (j *Journey) Run(ctx context.Context) (*Outcome, error) {
	name := fixture.FileName
	if j.FileName != nil {
		name = j.FileName
	}
	st := &state{out: &Outcome{Engine: j.Engine, FileName: name()}}

	err := browser.WithSession(ctx, j.Launcher, j.Config.Session(j.Engine, false), func(ctx context.Context, sess browser.Session) error {
		res, err := j.runner(MainWorkflow).Run(ctx, sess, j.steps(st))
		st.set(func(o *Outcome) { o.Main = res })
		return err
	})
	out := st.get()
	return &out, err
}

func (j *Journey) runner(name string) *workflow.Runner {
	return &workflow.Runner{
		Workflow:    name,
		Engine:      j.Engine,
		DefaultWait: j.Config.StepTimeout,
		ThinkTime:   j.Config.ThinkTime,
		Reporter:    j.Reporter,
		Observers:   j.Observers,
	}
}

func (j *Journey) locators() *Locators {
	if j.Locators == nil {
		return DefaultLocators()
	}
	return j.Locators
}

// steps returns the main-session steps.
func (j *Journey) steps(st *state) []workflow.Step {
	loc := j.locators()
	cfg := j.Config
	fileName := st.get().FileName
	vars := map[string]string{"file": fileName}
	logger := logging.New("nextcloud").With("engine", j.Engine)

	return []workflow.Step{
		{Name: "open-login", Note: "Opening login page", Action: func(ctx context.Context, s browser.Session) error {
			return s.Goto(ctx, j.url("/login"))
		}},
		{Name: "login", Note: "Logging in", Action: func(ctx context.Context, s browser.Session) error {
			if err := s.Fill(ctx, loc.LoginUser, cfg.Username); err != nil {
				return err
			}
			if err := s.Fill(ctx, loc.LoginPassword, cfg.Password); err != nil {
				return err
			}
			if err := s.Click(ctx, loc.LoginSubmit); err != nil {
				return err
			}
			return s.WaitVisible(ctx, loc.AppReady)
		}},
		{Name: "close-modal", Note: "Close first-time run popup", Action: func(ctx context.Context, s browser.Session) error {
			mctx, cancel := context.WithTimeout(ctx, modalWait)
			defer cancel()
			if err := s.WaitVisible(mctx, loc.FirstRunModal); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Debug("no first-run modal", "error", err)
				return nil
			}
			return s.Click(ctx, loc.ModalClose)
		}},
		{Name: "open-files", Note: "Go to Files", Action: func(ctx context.Context, s browser.Session) error {
			return s.Click(ctx, loc.FilesLink)
		}},
		{Name: "open-new-menu", Note: "Upload File", Action: func(ctx context.Context, s browser.Session) error {
			if err := s.Click(ctx, loc.NewButton); err != nil {
				return err
			}
			return s.WaitVisible(ctx, loc.NewMenu)
		}},
		{Name: "upload-file", Note: "Choose file " + fileName, Action: func(ctx context.Context, s browser.Session) error {
			data, err := os.ReadFile(cfg.FixturePath)
			if err != nil {
				return fmt.Errorf("read fixture: %w", err)
			}
			return s.Upload(ctx, loc.UploadFiles, browser.File{Name: fileName, MimeType: "text/plain", Data: data})
		}},
		{Name: "validate-upload", Note: "Validate file upload", Action: func(ctx context.Context, s browser.Session) error {
			return waitCount(ctx, s, loc.FileRow.Bind(vars), 1)
		}},
		{Name: "open-sharing", Note: "Get file share link", Action: func(ctx context.Context, s browser.Session) error {
			return s.Click(ctx, loc.SharingStatus.Bind(vars))
		}},
		{Name: "create-share-link", Action: func(ctx context.Context, s browser.Session) error {
			if err := s.Click(ctx, loc.NewShareLink); err != nil {
				return err
			}
			return s.WaitVisible(ctx, loc.LinkCopied)
		}},
		{Name: "read-share-link", Action: func(ctx context.Context, s browser.Session) error {
			link, err := j.readShareLink(ctx, s, loc)
			if err != nil {
				return err
			}
			logger.Info("Download link is: " + link)
			st.set(func(o *Outcome) { o.ShareURL = link })
			return nil
		}},
		{Name: "go-home", Action: func(ctx context.Context, s browser.Session) error {
			return s.Goto(ctx, j.url(""))
		}},
		{Name: "download-shared", Note: "Launch download browser " + string(j.Engine), MaxWait: j.downloadWait(), Action: func(ctx context.Context, _ browser.Session) error {
			return j.runDownload(ctx, st)
		}},
		{Name: "open-files-again", Note: "Delete file", Action: func(ctx context.Context, s browser.Session) error {
			return s.Click(ctx, loc.FilesLink)
		}},
		{Name: "delete-file", Action: func(ctx context.Context, s browser.Session) error {
			if err := s.Click(ctx, loc.RowActions.Bind(vars)); err != nil {
				return err
			}
			return s.Click(ctx, loc.DeleteAction)
		}},
	}
}

// downloadSteps returns the steps run in the fresh download browser.
func (j *Journey) downloadSteps(st *state) []workflow.Step {
	loc := j.locators()
	logger := logging.New("nextcloud").With("engine", j.Engine)
	var got browser.Download

	return []workflow.Step{
		{Name: "open-share", Note: "Opening shared link", Action: func(ctx context.Context, s browser.Session) error {
			link := st.get().ShareURL
			if link == "" {
				return errors.New("no share link")
			}
			return s.Goto(ctx, link)
		}},
		{Name: "open-row-actions", Note: "Clicking download link", Action: func(ctx context.Context, s browser.Session) error {
			return s.Click(ctx, loc.PublicRowAction)
		}},
		{Name: "download-file", Action: func(ctx context.Context, s browser.Session) error {
			d, err := s.Downloader()
			if err != nil {
				return err
			}
			got, err = d.Download(ctx, loc.DownloadItem)
			if err != nil {
				return err
			}
			logger.Info(fmt.Sprintf("File %s downloaded", got.SuggestedName))
			return nil
		}},
		{Name: "verify-download", Action: func(ctx context.Context, s browser.Session) error {
			a, err := verify.FromDownload(got)
			if err != nil {
				return err
			}
			exp := verify.SizeExpectation{MinBytes: j.Config.ExpectedBytes, MaxBytes: j.Config.MaxBytes}
			if err := j.Verifier.Verify(a, exp); err != nil {
				return err
			}
			logger.Info(fmt.Sprintf("File %s downloaded and right size: %d", a.DeclaredName, a.ByteSize))
			st.set(func(o *Outcome) { o.Artifact = &a })
			if j.OnArtifact != nil {
				j.OnArtifact(j.Engine, a)
			}
			return nil
		}},
	}
}

// runDownload opens a fresh browser that accepts downloads and runs the
// download steps in it.
func (j *Journey) runDownload(ctx context.Context, st *state) error {
	err := browser.WithSession(ctx, j.Launcher, j.Config.Session(j.Engine, true), func(ctx context.Context, sess browser.Session) error {
		res, err := j.runner(DownloadWorkflow).Run(ctx, sess, j.downloadSteps(st))
		st.set(func(o *Outcome) { o.Download = res })
		return err
	})
	if err == nil {
		logging.New("nextcloud").Info("Download finished", "engine", j.Engine)
	}
	return err
}

// downloadWait covers every nested step plus one diagnostic capture.
func (j *Journey) downloadWait() time.Duration {
	per := j.Config.StepTimeout
	if per <= 0 {
		per = workflow.DefaultMaxWait
	}
	n := time.Duration(len(j.downloadSteps(&state{out: &Outcome{}})))
	return n*(per+j.Config.ThinkTime) + j.Config.DiagnosticTimeout + 5*time.Second
}

func (j *Journey) readShareLink(ctx context.Context, s browser.Session, loc *Locators) (string, error) {
	var raw string
	switch j.Config.ShareLinkStrategy {
	case config.ShareLinkClipboard:
		v, err := s.Evaluate(ctx, "navigator.clipboard.readText()")
		if err != nil {
			return "", fmt.Errorf("read clipboard: %w", err)
		}
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("clipboard returned %T, want string", v)
		}
		raw = str
	default:
		href, err := s.Attribute(ctx, loc.ShareLink, "href")
		if err != nil {
			return "", err
		}
		raw = href
	}
	return resolveLink(j.Config.HostURL, raw)
}

// resolveLink makes a share link absolute against the host URL.
func resolveLink(host, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("share link is empty")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse share link: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parse host url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (j *Journey) url(path string) string {
	return strings.TrimRight(j.Config.HostURL, "/") + path
}

// waitCount polls until loc matches exactly want elements.
func waitCount(ctx context.Context, s browser.Session, loc browser.Locator, want int) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	last := -1
	for {
		n, err := s.Count(ctx, loc)
		if err != nil {
			return err
		}
		if n == want {
			return nil
		}
		last = n
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: have %d matches, want %d: %w", loc, last, want, ctx.Err())
		case <-t.C:
		}
	}
}
