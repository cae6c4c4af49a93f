package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ncjourney/internal/browser"
	"ncjourney/internal/diag"
	"ncjourney/internal/logging"
)

// RunInfo identifies a run to observers.
type RunInfo struct {
	ID       string
	Workflow string
	Engine   browser.Kind
}

// Observer is notified around every step. Implementations must not block.
type Observer interface {
	StepStarted(run RunInfo, step string)
	StepFinished(run RunInfo, step string, took time.Duration, err error)
	RunFinished(run RunInfo, res *Result)
}

// Runner executes steps. It drives the session it is given but never owns
// its lifecycle. A Runner may be shared by concurrent runs on distinct
// sessions.
type Runner struct {
	Workflow string
	Engine   browser.Kind
	// DefaultWait bounds steps with no MaxWait; zero means DefaultMaxWait.
	DefaultWait time.Duration
	// ThinkTime pauses after every completed step, like a user reading the
	// page. Zero disables it.
	ThinkTime time.Duration
	Reporter  *diag.Reporter
	Observers []Observer
}

// Run executes steps in order against sess. On the first failure it stops,
// captures a diagnostic snapshot, records the Failure in the Result and
// returns a *StepError wrapping the cause. The Result is always non-nil
// unless the step list itself is invalid.
func (r *Runner) Run(ctx context.Context, sess browser.Session, steps []Step) (*Result, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}
	run := RunInfo{ID: uuid.NewString(), Workflow: r.Workflow, Engine: r.Engine}
	logger := logging.New("workflow").With("workflow", run.Workflow, "engine", run.Engine, "run_id", run.ID)

	res := &Result{
		RunID:          run.ID,
		Workflow:       run.Workflow,
		Engine:         run.Engine,
		Started:        time.Now(),
		CompletedSteps: make([]string, 0, len(steps)),
	}
	defer func() {
		res.Took = time.Since(res.Started)
		for _, o := range r.Observers {
			o.RunFinished(run, res)
		}
	}()

	for i, st := range steps {
		if i > 0 && r.ThinkTime > 0 {
			if err := pause(ctx, r.ThinkTime); err != nil {
				return res, r.fail(ctx, sess, run, res, st.Name, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, r.fail(ctx, sess, run, res, st.Name, err)
		}

		note := st.Note
		if note == "" {
			note = st.Name
		}
		logger.Info(note, "step", st.Name)
		for _, o := range r.Observers {
			o.StepStarted(run, st.Name)
		}

		start := time.Now()
		err := r.runStep(ctx, sess, st)
		took := time.Since(start)

		for _, o := range r.Observers {
			o.StepFinished(run, st.Name, took, err)
		}
		res.Timings = append(res.Timings, StepTiming{Name: st.Name, Took: took, OK: err == nil})
		if err != nil {
			return res, r.fail(ctx, sess, run, res, st.Name, err)
		}
		res.CompletedSteps = append(res.CompletedSteps, st.Name)
		logger.Debug("step done", "step", st.Name, "took", took)
	}

	logger.Info("workflow finished", "steps", len(res.CompletedSteps), "took", time.Since(res.Started))
	return res, nil
}

// deadlineGrace lets a context-aware action report why it stopped before the
// runner gives up on it.
const deadlineGrace = 100 * time.Millisecond

// runStep bounds one action by its wait. If the action ignores its context
// the runner still returns at the deadline; the abandoned action's result is
// discarded.
func (r *Runner) runStep(ctx context.Context, sess browser.Session, st Step) error {
	wait := st.MaxWait
	if wait == 0 {
		wait = r.DefaultWait
	}
	if wait <= 0 {
		wait = DefaultMaxWait
	}
	sctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("step panicked: %v", p)
			}
		}()
		done <- st.Action(sctx, sess)
	}()

	select {
	case err := <-done:
		return classify(ctx, sctx, st.Name, wait, err)
	case <-sctx.Done():
		grace := time.NewTimer(deadlineGrace)
		defer grace.Stop()
		select {
		case err := <-done:
			return classify(ctx, sctx, st.Name, wait, err)
		case <-grace.C:
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return &TimeoutError{Step: st.Name, MaxWait: wait}
	}
}

func classify(parent, sctx context.Context, step string, wait time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && !IsTimeout(err) {
		return &TimeoutError{Step: step, MaxWait: wait, Err: err}
	}
	return err
}

func (r *Runner) fail(ctx context.Context, sess browser.Session, run RunInfo, res *Result, step string, cause error) error {
	logger := logging.New("workflow").With("workflow", run.Workflow, "engine", run.Engine, "run_id", run.ID)
	logger.Error("Exception occurred", "step", step, "error", cause)

	// Diagnostics run even when the run's context is already done; the
	// reporter's own timer bounds them.
	snap := r.Reporter.Capture(context.WithoutCancel(ctx), sess, run.ID+"-"+step)
	res.Failure = &Failure{StepName: step, Cause: cause, Snapshot: snap}
	return &StepError{Step: step, Err: cause}
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
