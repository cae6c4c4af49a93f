package nextcloud

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncjourney/internal/browser"
	"ncjourney/internal/browser/browsertest"
	"ncjourney/internal/config"
	"ncjourney/internal/fixture"
	"ncjourney/internal/verify"
	"ncjourney/internal/workflow"
)

type verifierSpy struct {
	calls int
	next  ArtifactVerifier
}

func (v *verifierSpy) Verify(a verify.Artifact, exp verify.SizeExpectation) error {
	v.calls++
	return v.next.Verify(a, exp)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.FixturePath = filepath.Join(dir, "1mb.txt")
	cfg.DownloadDir = filepath.Join(dir, "downloads")
	require.NoError(t, fixture.Write(cfg.FixturePath, fixture.DefaultSize))
	return cfg
}

func testJourney(cfg *config.Config, engine browser.Kind, l browser.Launcher) (*Journey, *verifierSpy) {
	j := New(cfg, engine, l)
	spy := &verifierSpy{next: j.Verifier}
	j.Verifier = spy
	j.FileName = func() string { return "abcde.txt" }
	return j, spy
}

func serving(size int64) *browsertest.Launcher {
	return &browsertest.Launcher{Setup: func(s *browsertest.Session) {
		s.Attrs = map[string]string{"href": "/s/Xk2pQ"}
		s.DownloadName = "abcde.txt"
		s.DownloadSize = size
	}}
}

func TestJourney_Completes(t *testing.T) {
	cfg := testConfig(t)
	l := serving(fixture.DefaultSize)
	j, spy := testJourney(cfg, browser.Firefox, l)

	out, err := j.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Main)
	assert.Nil(t, out.Main.Failure)
	assert.Len(t, out.Main.CompletedSteps, len(j.steps(&state{out: &Outcome{}})))
	require.NotNil(t, out.Download)
	assert.Equal(t, workflow.Names(j.downloadSteps(&state{out: &Outcome{}})), out.Download.CompletedSteps)
	assert.True(t, out.OK())

	assert.Equal(t, "http://app/s/Xk2pQ", out.ShareURL)
	require.NotNil(t, out.Artifact)
	assert.Equal(t, int64(fixture.DefaultSize), out.Artifact.ByteSize)
	assert.Equal(t, 1, spy.calls)

	assert.Equal(t, 2, l.Launched(), "main and download browsers")
	assert.Equal(t, 2, l.Released())

	sessions := l.Sessions()
	assert.False(t, sessions[0].Config.AcceptDownloads)
	assert.True(t, sessions[1].Config.AcceptDownloads)

	uploads := sessions[0].Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "abcde.txt", uploads[0].Name)
	assert.Equal(t, "text/plain", uploads[0].MimeType)
	assert.Len(t, uploads[0].Data, fixture.DefaultSize)

	var gotos []string
	for _, c := range sessions[1].Calls() {
		if c.Op == "goto" {
			gotos = append(gotos, c.Arg)
		}
	}
	assert.Equal(t, []string{"http://app/s/Xk2pQ"}, gotos)
}

func TestJourney_DownloadsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.AcceptDownloads = false
	l := serving(fixture.DefaultSize)
	j, spy := testJourney(cfg, browser.Chromium, l)

	out, err := j.Run(context.Background())
	require.Error(t, err)

	var capErr *browser.CapabilityUnavailableError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "download", capErr.Capability)
	assert.Zero(t, spy.calls, "nothing to verify")

	require.NotNil(t, out.Main.Failure)
	assert.Equal(t, "download-shared", out.Main.Failure.StepName)
	require.NotNil(t, out.Download.Failure)
	assert.Equal(t, "download-file", out.Download.Failure.StepName)
	assert.Nil(t, out.Artifact)
	assert.Equal(t, l.Launched(), l.Released())
}

func TestJourney_MissingFixture(t *testing.T) {
	cfg := testConfig(t)
	cfg.FixturePath = filepath.Join(t.TempDir(), "absent.txt")
	l := serving(fixture.DefaultSize)
	j, _ := testJourney(cfg, browser.Firefox, l)

	out, err := j.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "upload-file", workflow.FailedStep(err))
	assert.Equal(t, []string{"open-login", "login", "close-modal", "open-files", "open-new-menu"}, out.Main.CompletedSteps)
	assert.Nil(t, out.Download)
	assert.Equal(t, 1, l.Launched())
	assert.Equal(t, 1, l.Released())
}

func TestJourney_ShortDownload(t *testing.T) {
	cfg := testConfig(t)
	l := serving(fixture.DefaultSize - 17)
	j, spy := testJourney(cfg, browser.Firefox, l)

	out, err := j.Run(context.Background())
	require.Error(t, err)
	assert.True(t, verify.IsWrongSize(err))
	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, "verify-download", out.Download.Failure.StepName)
	assert.Nil(t, out.Artifact)
}

func TestJourney_ClipboardStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShareLinkStrategy = config.ShareLinkClipboard
	l := serving(fixture.DefaultSize)
	l.Setup = func(s *browsertest.Session) {
		s.EvalResult = "https://cloud.example/s/clip"
		s.DownloadSize = fixture.DefaultSize
	}
	j, _ := testJourney(cfg, browser.Chromium, l)

	out, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://cloud.example/s/clip", out.ShareURL)
	assert.Contains(t, l.Sessions()[0].Ops(), "evaluate")
	assert.NotContains(t, l.Sessions()[0].Ops(), "attribute")
}

func TestJourney_UploadNeverAppears(t *testing.T) {
	cfg := testConfig(t)
	cfg.StepTimeout = 300 * time.Millisecond
	l := serving(fixture.DefaultSize)
	l.Setup = func(s *browsertest.Session) {
		s.Counts = map[string]int{`files-list-row-name="abcde.txt"`: 0}
	}
	j, _ := testJourney(cfg, browser.Firefox, l)

	start := time.Now()
	_, err := j.Run(context.Background())
	require.Error(t, err)
	assert.True(t, workflow.IsTimeout(err))
	assert.Equal(t, "validate-upload", workflow.FailedStep(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestJourney_ModalAbsentIsNotAnError(t *testing.T) {
	cfg := testConfig(t)
	l := serving(fixture.DefaultSize)
	setup := l.Setup
	l.Setup = func(s *browsertest.Session) {
		setup(s)
		s.FailOn("wait", "modal-container", errors.New("timeout waiting for .modal-container"))
	}
	j, _ := testJourney(cfg, browser.Firefox, l)

	out, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.Main.CompletedSteps, "close-modal")
	for _, c := range l.Sessions()[0].Calls() {
		assert.False(t, c.Op == "click" && strings.Contains(c.Locator, "modal-container__close"), "close clicked without a modal")
	}
}

func TestJourney_LaunchFailure(t *testing.T) {
	cfg := testConfig(t)
	l := &browsertest.Launcher{Err: errors.New("no browser binary")}
	j, _ := testJourney(cfg, browser.Firefox, l)

	out, err := j.Run(context.Background())
	require.Error(t, err)
	assert.NotNil(t, out)
	assert.Nil(t, out.Main)
	assert.False(t, out.OK())
}

func TestResolveLink(t *testing.T) {
	cases := []struct {
		host, raw, want string
		wantErr         bool
	}{
		{host: "http://app", raw: "/s/abc", want: "http://app/s/abc"},
		{host: "http://app/", raw: "index.php/s/abc", want: "http://app/index.php/s/abc"},
		{host: "http://app", raw: " https://cloud.example/s/abc\n", want: "https://cloud.example/s/abc"},
		{host: "http://app", raw: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := resolveLink(tc.host, tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
}
