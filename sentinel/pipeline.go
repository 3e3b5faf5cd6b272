package sentinel

import (
	"errors"
	"fmt"
	"time"
)

// StepOutcomeKind is what an AnalysisStep tells the orchestrator to do
// next (§4.7).
type StepOutcomeKind int

const (
	StepContinue StepOutcomeKind = iota
	StepDismiss
	StepAddSteps
)

// StepOutcome is the return value of AnalysisStep.Execute.
type StepOutcome struct {
	Kind     StepOutcomeKind
	NewSteps []AnalysisStep // only meaningful when Kind == StepAddSteps
}

// StepDeps bundles the capabilities steps need: the replay engine,
// classifier, fund-flow tracer and anomaly model. Bundling them here
// (rather than threading four separate parameters through every step)
// mirrors how the teacher's own worker environment groups its
// dependencies.
type StepDeps struct {
	Replay     *ReplayEngine
	Classifier *AttackClassifier
	FundFlow   *FundFlowTracer
	Anomaly    AnomalyModel
}

// AnalysisStep is a named unit of pipeline work (§4.7, §9 "Dynamic
// dispatch in the pipeline"). Steps are composed at runtime; the set of
// active steps and their order is configuration, not code.
type AnalysisStep interface {
	Name() string
	Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error)
}

// AdaptivePipeline runs a dynamic chain of AnalysisSteps over an
// AnalysisContext, honoring dismiss/add-steps semantics and the
// per-step/total-pipeline time budgets (§4.7).
type AdaptivePipeline struct {
	initial []AnalysisStep
	deps    *StepDeps
	metrics *Metrics
}

// NewAdaptivePipeline builds a pipeline with the given step chain
// (typically NewDefaultSteps()) and shared dependencies. metrics may be
// nil, in which case per-run step durations and dismissals are not
// recorded.
func NewAdaptivePipeline(steps []AnalysisStep, deps *StepDeps, metrics *Metrics) *AdaptivePipeline {
	return &AdaptivePipeline{initial: steps, deps: deps, metrics: metrics}
}

var errStepTimedOut = errors.New("step exceeded its per-step timeout")

// stepRunResult is the normalized result of running one step, whether
// it returned normally, errored, timed out, or panicked.
type stepRunResult struct {
	outcome StepOutcome
	failed  bool
	err     error
}

// Run drives the orchestrator algorithm of §4.7: walk the initial step
// list then any steps a step adds, recording durations, honoring
// dismissal and the total pipeline budget, and finally building an
// alert iff the context was not dismissed and final confidence clears
// cfg.MinConfidence.
func (p *AdaptivePipeline) Run(block BlockRef, tx SuspiciousTx, replay ReplayInput, cfg AnalysisConfig) (*SentinelAlert, error) {
	actx := newAnalysisContext(block, tx)
	actx.Replay = replay
	actx.startedAt = time.Now()
	if p.metrics != nil {
		defer func() {
			p.metrics.RecordStepDurations(actx.StepDurations())
			p.metrics.PipelineDuration.Update(time.Since(actx.startedAt).Milliseconds())
		}()
	}

	pending := append([]AnalysisStep(nil), p.initial...)
	var firstErr error

	for len(pending) > 0 {
		if actx.Dismissed {
			break
		}
		if cfg.TotalPipelineBudget > 0 && time.Since(actx.startedAt) > cfg.TotalPipelineBudget {
			actx.Evidence = append(actx.Evidence, "pipeline timeout")
			if actx.FinalConfidence != nil && *actx.FinalConfidence >= cfg.MinConfidence {
				return alertFromContext(actx, true), firstErr
			}
			return nil, firstErr
		}

		step := pending[0]
		pending = pending[1:]

		start := time.Now()
		res := p.runStep(step, actx, cfg)
		actx.RecordStepDuration(step.Name(), time.Since(start))

		if res.failed {
			if firstErr == nil {
				firstErr = res.err
			}
			continue // §7: mark step failed, continue with remaining steps
		}

		switch res.outcome.Kind {
		case StepDismiss:
			actx.Dismissed = true
			if p.metrics != nil {
				p.metrics.PipelineStepsDismissed.Inc(1)
			}
		case StepAddSteps:
			pending = append(pending, res.outcome.NewSteps...)
		}
	}

	if actx.Dismissed {
		return nil, firstErr
	}
	if actx.FinalConfidence == nil || *actx.FinalConfidence < cfg.MinConfidence {
		return nil, firstErr
	}
	return alertFromContext(actx, false), firstErr
}

// runStep executes one step under its per-step timeout, converting a
// timeout, error, or panic into a recorded failure per §7 (StepFailure/
// PipelineTimeout: mark the step failed, continue with the remaining
// steps).
func (p *AdaptivePipeline) runStep(step AnalysisStep, actx *AnalysisContext, cfg AnalysisConfig) stepRunResult {
	type done struct {
		outcome StepOutcome
		err     error
	}
	ch := make(chan done, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- done{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		outcome, err := step.Execute(actx, p.deps, cfg)
		ch <- done{outcome: outcome, err: err}
	}()

	timeout := cfg.PerStepTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour // effectively unbounded when unset
	}

	select {
	case d := <-ch:
		if d.err != nil {
			return stepRunResult{failed: true, err: stepErr(ErrStepFailure, step.Name(), d.err)}
		}
		return stepRunResult{outcome: d.outcome}
	case <-time.After(timeout):
		return stepRunResult{failed: true, err: stepErr(ErrPipelineTimeout, step.Name(), errStepTimedOut)}
	}
}
