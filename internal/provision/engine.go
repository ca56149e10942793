// Package provision converges a host to its role's target state. Every
// action is guarded by a check so re-running a plan on a converged host
// changes nothing.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"three-tier-lab/internal/runner"
	"three-tier-lab/internal/topology"

	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusChanged Status = "changed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Step is one convergence action.
//
// With Check set, Apply runs only when Check reports the host has not
// converged, and the step counts as changed. Without Check, Apply always
// runs and the step counts as ok (gates, validations). With OnlyIfChanged
// set, the step is skipped unless one of the named steps changed earlier in
// the same run, and counts as changed when it runs.
type Step struct {
	Name          string
	Check         func(ctx context.Context, r runner.Runner) (bool, error)
	Apply         func(ctx context.Context, r runner.Runner) error
	OnlyIfChanged []string
}

type Plan struct {
	Role  topology.Role
	Steps []Step
}

type StepResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

type Report struct {
	Role    topology.Role
	Host    string
	Results []StepResult
}

// Changed reports whether any step changed the host.
func (r *Report) Changed() bool {
	for _, res := range r.Results {
		if res.Status == StatusChanged {
			return true
		}
	}
	return false
}

func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

var errNoApply = errors.New("step has no apply function")

// Converge runs the plan's steps in order and stops at the first failure.
// Nothing is rolled back; the host is left as far as it got.
func Converge(ctx context.Context, r runner.Runner, plan Plan, log logrus.FieldLogger) (*Report, error) {
	report := &Report{Role: plan.Role, Host: r.Host()}
	changed := map[string]bool{}
	plog := log.WithFields(logrus.Fields{"role": plan.Role, "host": r.Host()})
	plog.Info("provisioning started")

	for _, step := range plan.Steps {
		start := time.Now()
		status, err := runStep(ctx, r, step, changed)
		res := StepResult{Name: step.Name, Status: status, Duration: time.Since(start), Err: err}
		report.Results = append(report.Results, res)

		slog := plog.WithFields(logrus.Fields{
			"step":     step.Name,
			"status":   status,
			"duration": res.Duration.Round(time.Millisecond).String(),
		})
		if err != nil {
			slog.WithError(err).Error("step failed")
			return report, fmt.Errorf("%s: step %q: %w", plan.Role, step.Name, err)
		}
		if status == StatusChanged {
			changed[step.Name] = true
			slog.Info("step changed")
		} else {
			slog.Debug("step done")
		}
	}

	plog.WithFields(logrus.Fields{
		"changed": report.Count(StatusChanged),
		"ok":      report.Count(StatusOK),
		"skipped": report.Count(StatusSkipped),
	}).Info("provisioning finished")
	return report, nil
}

func runStep(ctx context.Context, r runner.Runner, step Step, changed map[string]bool) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusFailed, err
	}
	if step.Apply == nil {
		return StatusFailed, errNoApply
	}

	if len(step.OnlyIfChanged) > 0 {
		triggered := false
		for _, name := range step.OnlyIfChanged {
			if changed[name] {
				triggered = true
				break
			}
		}
		if !triggered {
			return StatusSkipped, nil
		}
		if err := step.Apply(ctx, r); err != nil {
			return StatusFailed, err
		}
		return StatusChanged, nil
	}

	if step.Check == nil {
		if err := step.Apply(ctx, r); err != nil {
			return StatusFailed, err
		}
		return StatusOK, nil
	}

	converged, err := step.Check(ctx, r)
	if err != nil {
		return StatusFailed, fmt.Errorf("check: %w", err)
	}
	if converged {
		return StatusOK, nil
	}
	if err := step.Apply(ctx, r); err != nil {
		return StatusFailed, err
	}
	return StatusChanged, nil
}
