// Package filter runs configured external filter programs against the
// messages in a folder. Filters may move, delete or rewrite the
// underlying files; the runner only observes exit status and output.
package filter

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
)

// Spec is one configured filter: command followed by its arguments.
// The message's storage path is appended as a trailing argument on
// each invocation.
type Spec []string

// Outcome records one filter invocation against one message.
type Outcome struct {
	Command  []string
	ExitCode int
	Output   []byte
	Err      error // command could not be started at all
}

// Failed reports whether this invocation should halt the chain.
func (o Outcome) Failed() bool {
	return o.ExitCode != 0 || o.Err != nil
}

// ItemReport collects the filter outcomes for one message. Halted means
// a filter failed and the remaining chain was skipped for this message
// only.
type ItemReport struct {
	Path     string
	Outcomes []Outcome
	Halted   bool
}

// Runner executes filter chains.
type Runner struct {
	logger *slog.Logger
}

// NewRunner returns a Runner logging through the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run invokes every spec against every message path, in order. A
// non-zero exit stops the remaining filters for that message (effects
// of already-run filters stand) and the pass continues with the next
// message. Captured output is retained in the report either way.
func (r *Runner) Run(ctx context.Context, paths []string, specs []Spec) []ItemReport {
	reports := make([]ItemReport, 0, len(paths))
	for _, path := range paths {
		report := ItemReport{Path: path}
		for _, spec := range specs {
			if len(spec) == 0 {
				continue
			}
			outcome := r.invoke(ctx, spec, path)
			report.Outcomes = append(report.Outcomes, outcome)
			if outcome.Failed() {
				report.Halted = true
				r.logger.Warn("filter chain halted",
					slog.String("message", path),
					slog.String("filter", spec[0]),
					slog.Int("exit", outcome.ExitCode))
				break
			}
		}
		reports = append(reports, report)
	}
	return reports
}

func (r *Runner) invoke(ctx context.Context, spec Spec, path string) Outcome {
	args := append(append([]string{}, spec[1:]...), path)
	cmd := exec.CommandContext(ctx, spec[0], args...)

	out, err := cmd.CombinedOutput()
	outcome := Outcome{Command: spec, Output: out}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
	default:
		outcome.Err = err
	}
	return outcome
}
