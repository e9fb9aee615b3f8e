package stopvideo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Step is one named test in the sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context, tc *TestContext) error
}

// Steps returns the sequence in its required order.
func Steps() []Step {
	return []Step{
		{Name: "stopVideoOnOwnerAndCheck", Run: StopVideoOnOwnerAndCheck},
		{Name: "startVideoOnOwnerAndCheck", Run: StartVideoOnOwnerAndCheck},
		{Name: "stopVideoOnParticipantAndCheck", Run: StopVideoOnParticipantAndCheck},
		{Name: "startVideoOnParticipantAndCheck", Run: StartVideoOnParticipantAndCheck},
		{Name: "stopOwnerVideoBeforeSecondParticipantJoins", Run: StopOwnerVideoBeforeSecondParticipantJoins},
	}
}

// Result is the outcome of one step.
type Result struct {
	Name     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Passed reports whether the step ran and succeeded.
func (r Result) Passed() bool {
	return !r.Skipped && r.Err == nil
}

// Report collects the results of a run in step order.
type Report struct {
	Results []Result
}

// Failed reports whether any step failed or was skipped.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return true
		}
	}
	return false
}

// Err joins the errors of the failed steps.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

func (r Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			fmt.Fprintf(&b, "SKIP %s\n", res.Name)
		case res.Err != nil:
			fmt.Fprintf(&b, "FAIL %s (%v): %v\n", res.Name, res.Duration.Round(time.Millisecond), res.Err)
		default:
			fmt.Fprintf(&b, "PASS %s (%v)\n", res.Name, res.Duration.Round(time.Millisecond))
		}
	}
	return b.String()
}

// Run executes steps one after another. The first failure aborts the run;
// the remaining steps are reported as skipped because they depend on state
// the failed step did not produce.
func Run(ctx context.Context, tc *TestContext, steps []Step) Report {
	report := Report{Results: make([]Result, 0, len(steps))}
	failed := false
	for _, step := range steps {
		if failed || ctx.Err() != nil {
			report.Results = append(report.Results, Result{Name: step.Name, Skipped: true})
			continue
		}

		tc.logf("Start %s.", step.Name)
		start := time.Now()
		err := step.Run(ctx, tc)
		res := Result{Name: step.Name, Err: err, Duration: time.Since(start)}
		report.Results = append(report.Results, res)
		if err != nil {
			tc.logf("%s failed: %v", step.Name, err)
			failed = true
		}
	}
	return report
}
