// Package metrics exports workflow timings to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ncjourney/internal/logging"
	"ncjourney/internal/workflow"
)

const namespace = "ncjourney"

// Collector records step and run outcomes. It implements workflow.Observer.
type Collector struct {
	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	inFlight     *prometheus.GaugeVec
	artifact     *prometheus.GaugeVec
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of one workflow step.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"workflow", "engine", "step", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished workflow runs.",
		}, []string{"workflow", "engine", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_in_flight",
			Help:      "Steps currently executing.",
		}, []string{"workflow", "engine"}),
		artifact: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last verified download.",
		}, []string{"engine"}),
	}
	reg.MustRegister(c.stepDuration, c.runs, c.inFlight, c.artifact)
	return c
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (c *Collector) StepStarted(run workflow.RunInfo, _ string) {
	c.inFlight.WithLabelValues(run.Workflow, string(run.Engine)).Inc()
}

func (c *Collector) StepFinished(run workflow.RunInfo, step string, took time.Duration, err error) {
	c.inFlight.WithLabelValues(run.Workflow, string(run.Engine)).Dec()
	c.stepDuration.WithLabelValues(run.Workflow, string(run.Engine), step, outcome(err == nil)).Observe(took.Seconds())
}

func (c *Collector) RunFinished(run workflow.RunInfo, res *workflow.Result) {
	c.runs.WithLabelValues(run.Workflow, string(run.Engine), outcome(res.OK())).Inc()
}

// ObserveArtifact records the size of a verified download.
func (c *Collector) ObserveArtifact(engine string, bytes int64) {
	if c == nil {
		return
	}
	c.artifact.WithLabelValues(engine).Set(float64(bytes))
}

// Serve exposes reg on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer) error {
	logger := logging.New("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
