// Package workflow runs ordered UI steps against one browser session.
//
// Steps execute strictly in sequence, each bounded by its own wait. The first
// failure stops the run, a diagnostic snapshot is captured and attached to the
// Result, and the failure is returned. Nothing is retried or skipped.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ncjourney/internal/browser"
	"ncjourney/internal/diag"
)

// DefaultMaxWait bounds steps that do not set MaxWait.
const DefaultMaxWait = 30 * time.Second

// Action is one UI interaction against the run's session.
type Action func(ctx context.Context, s browser.Session) error

// Step is a named, bounded Action. Note is the human-readable line logged
// when the step starts.
type Step struct {
	Name    string
	Note    string
	Action  Action
	MaxWait time.Duration
}

// StepTiming records how long a step ran.
type StepTiming struct {
	Name string        `json:"name"`
	Took time.Duration `json:"took"`
	OK   bool          `json:"ok"`
}

// Failure describes the step that stopped a run.
type Failure struct {
	StepName string        `json:"step_name"`
	Cause    error         `json:"-"`
	Snapshot diag.Snapshot `json:"diagnostic_snapshot"`
}

// Result is owned by the caller once Run returns.
type Result struct {
	RunID          string        `json:"run_id"`
	Workflow       string        `json:"workflow"`
	Engine         browser.Kind  `json:"engine"`
	Started        time.Time     `json:"started"`
	Took           time.Duration `json:"took"`
	CompletedSteps []string      `json:"completed_steps"`
	Timings        []StepTiming  `json:"timings"`
	Failure        *Failure      `json:"failure,omitempty"`
}

// OK reports whether every step completed.
func (r *Result) OK() bool { return r != nil && r.Failure == nil }

var ErrInvalidStep = errors.New("invalid step")

// TimeoutError reports a step that exceeded its MaxWait.
type TimeoutError struct {
	Step    string
	MaxWait time.Duration
	// Err is what the action returned at the deadline, if it returned at all.
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q timed out after %s: %v", e.Step, e.MaxWait, e.Err)
	}
	return fmt.Sprintf("step %q timed out after %s", e.Step, e.MaxWait)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is matches context.DeadlineExceeded so callers can treat step timeouts
// like any other deadline.
func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// StepError is returned by Run for the failing step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %q: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// IsTimeout reports whether err carries a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// FailedStep returns the name of the step err failed in, or "".
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Validate checks that every step has a unique name and an action.
func Validate(steps []Step) error {
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		switch {
		case s.Name == "":
			return fmt.Errorf("%w: step %d has no name", ErrInvalidStep, i)
		case s.Action == nil:
			return fmt.Errorf("%w: step %q has no action", ErrInvalidStep, s.Name)
		case seen[s.Name]:
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidStep, s.Name)
		case s.MaxWait < 0:
			return fmt.Errorf("%w: step %q has negative max wait", ErrInvalidStep, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Names lists step names in order.
func Names(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
