package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncjourney/internal/browser"
	"ncjourney/internal/browser/browsertest"
	"ncjourney/internal/workflow"
)

func TestCollector_ObservesRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	noop := func(context.Context, browser.Session) error { return nil }
	steps := []workflow.Step{
		{Name: "login", Action: noop},
		{Name: "upload-file", Action: func(context.Context, browser.Session) error { return errors.New("chooser closed") }},
	}
	r := &workflow.Runner{Workflow: "journey", Engine: browser.Chromium, Observers: []workflow.Observer{c}}
	_, err := r.Run(context.Background(), &browsertest.Session{}, steps)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("journey", "chromium", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runs.WithLabelValues("journey", "chromium", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight.WithLabelValues("journey", "chromium")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.stepDuration))

	expected := `
# HELP ncjourney_artifact_bytes Size of the last verified download.
# TYPE ncjourney_artifact_bytes gauge
ncjourney_artifact_bytes{engine="firefox"} 1.048576e+06
`
	c.ObserveArtifact("firefox", 1<<20)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ncjourney_artifact_bytes"))
}

func TestCollector_NilArtifactIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveArtifact("firefox", 1)
}
