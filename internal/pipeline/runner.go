// Package pipeline sequences the indicator pipeline stages and classifies
// their failures.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Step is one stage of the end-to-end pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepResult records how a step finished.
type StepResult struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"`
}

// Runner executes steps in order and stops at the first failure.
type Runner struct {
	steps []Step
}

// NewRunner creates a runner for the given steps.
func NewRunner(steps ...Step) *Runner {
	return &Runner{steps: steps}
}

// Steps returns the configured step names in execution order.
func (r *Runner) Steps() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes every step sequentially. The returned results cover the steps
// that were attempted; the error is the failing step's error, unchanged, so
// callers can still inspect its Kind.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	log := zap.L().With(zap.String("component", "pipeline.runner"))

	results := make([]StepResult, 0, len(r.steps))
	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "pipeline: cancelled")
		}

		log.Info("step starting", zap.String("step", s.Name))
		start := time.Now()
		err := s.Run(ctx)
		res := StepResult{Name: s.Name, Elapsed: time.Since(start), Err: err}
		results = append(results, res)

		if err != nil {
			log.Error("step failed",
				zap.String("step", s.Name),
				zap.String("kind", string(KindOf(err))),
				zap.Error(err),
			)
			return results, err
		}
		log.Info("step complete", zap.String("step", s.Name), zap.Duration("elapsed", res.Elapsed))
	}
	return results, nil
}
