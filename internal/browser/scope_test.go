package browser_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ncjourney/internal/browser"
	"ncjourney/internal/browser/browsertest"
)

func TestWithSession_ReleasesExactlyOnce(t *testing.T) {
	boom := errors.New("boom")

	cases := []struct {
		name    string
		body    func(ctx context.Context, cancel context.CancelFunc) error
		panics  bool
		wantErr error
	}{
		{
			name: "normal return",
			body: func(context.Context, context.CancelFunc) error { return nil },
		},
		{
			name:    "body error",
			body:    func(context.Context, context.CancelFunc) error { return boom },
			wantErr: boom,
		},
		{
			name:   "panic",
			body:   func(context.Context, context.CancelFunc) error { panic("kaboom") },
			panics: true,
		},
		{
			name: "cancelled mid-body",
			body: func(ctx context.Context, cancel context.CancelFunc) error {
				cancel()
				<-ctx.Done()
				return ctx.Err()
			},
			wantErr: context.Canceled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			launcher := &browsertest.Launcher{}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var err error
			func() {
				defer func() {
					r := recover()
					if (r != nil) != tc.panics {
						t.Fatalf("panic = %v, want panic %v", r, tc.panics)
					}
				}()
				err = browser.WithSession(ctx, launcher, browser.Config{Kind: browser.Firefox},
					func(ctx context.Context, _ browser.Session) error { return tc.body(ctx, cancel) })
			}()

			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && !tc.panics && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got := launcher.Launched(); got != 1 {
				t.Errorf("launched = %d, want 1", got)
			}
			if got := launcher.Released(); got != 1 {
				t.Errorf("released = %d, want 1", got)
			}
		})
	}
}

func TestWithSession_LaunchFailureReleasesNothing(t *testing.T) {
	launcher := &browsertest.Launcher{Err: errors.New("no display")}
	called := false
	err := browser.WithSession(context.Background(), launcher, browser.Config{Kind: browser.Chromium},
		func(context.Context, browser.Session) error { called = true; return nil })
	if err == nil {
		t.Fatal("expected launch error")
	}
	if called {
		t.Error("body must not run when launch fails")
	}
	if launcher.Released() != 0 {
		t.Errorf("released = %d, want 0", launcher.Released())
	}
}

func TestWithSession_CancelledBeforeLaunch(t *testing.T) {
	launcher := &browsertest.Launcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := browser.WithSession(ctx, launcher, browser.Config{Kind: browser.Firefox},
		func(context.Context, browser.Session) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if launcher.Launched() != 0 {
		t.Errorf("launched = %d, want 0", launcher.Launched())
	}
}

func TestWithSession_CreatesDownloadDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	launcher := &browsertest.Launcher{}
	cfg := browser.Config{Kind: browser.Firefox, AcceptDownloads: true, DownloadDir: dir}

	err := browser.WithSession(context.Background(), launcher, cfg, func(ctx context.Context, s browser.Session) error {
		d, err := s.Downloader()
		if err != nil {
			return err
		}
		_, err = d.Download(ctx, browser.CSS("a.download"))
		return err
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("download dir not created: %v", err)
	}
}

func TestWithSession_DownloaderUnavailable(t *testing.T) {
	launcher := &browsertest.Launcher{}
	err := browser.WithSession(context.Background(), launcher, browser.Config{Kind: browser.Firefox},
		func(_ context.Context, s browser.Session) error {
			_, err := s.Downloader()
			return err
		})

	var capErr *browser.CapabilityUnavailableError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want CapabilityUnavailableError", err)
	}
	if !browser.IsCapabilityUnavailable(err) {
		t.Error("IsCapabilityUnavailable should match")
	}
}

func TestWithSession_SlowBodyStillReleased(t *testing.T) {
	launcher := &browsertest.Launcher{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := browser.WithSession(ctx, launcher, browser.Config{Kind: browser.Chromium},
		func(ctx context.Context, s browser.Session) error {
			<-ctx.Done()
			return s.Goto(ctx, "http://app/login")
		})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if launcher.Released() != 1 {
		t.Errorf("released = %d, want 1", launcher.Released())
	}
}
