package verifier

import (
	"context"
	"time"

	"certverify/internal/verifier/models"
	"certverify/internal/verifier/steps"
	"certverify/internal/verifier/suite"
	"certverify/pkg/platform/tracer"
)

const (
	messageMocknet = "This Mocknet credential passed all checks. Mocknet mode is only used for issuers to test their workflow locally. This credential was not recorded on a blockchain, and it should not be considered a verified credential."
	messageChain   = "This is a valid blockchain credential."
)

// run is the state of a single Verify call: the status log and the failed
// flag. It is never shared between calls.
type run struct {
	v        *Verifier
	callback models.StepCallback
	log      []models.StepStatus
	failed   bool
}

func newRun(v *Verifier, cb models.StepCallback) *run {
	if cb == nil {
		cb = func(models.StepStatus) {}
	}
	return &run{v: v, callback: cb}
}

// do is the fail-fast action wrapper. Once the run has failed, it returns
// suite.ErrSkipped without invoking action or emitting anything. A tracked
// failure is reported, logged and replaced by suite.ErrStepFailed so callers
// keep iterating; an untracked failure is returned unchanged.
func (r *run) do(ctx context.Context, step steps.Code, action suite.Action) (any, error) {
	if r.failed {
		return nil, suite.ErrSkipped
	}
	if !step.IsTracked() {
		return action(ctx)
	}

	label := steps.LabelFor(step).Pending
	r.v.logger.DebugContext(ctx, label, "step", step)
	r.callback(models.StepStatus{Code: step, Label: label, Status: models.StatusStarting})

	ctx, span := r.v.tracer.Start(ctx, tracer.SpanVerifyStep, tracer.String(tracer.AttrStep, step.String()))
	start := time.Now()
	res, err := action(ctx)
	elapsed := time.Since(start)
	span.End(err)

	if err != nil {
		r.v.metrics.ObserveStep(step.String(), string(models.StatusFailure), elapsed)
		r.v.logger.InfoContext(ctx, "verification step failed",
			"step", step,
			"kind", models.KindOf(err),
			"error", err,
		)
		r.fail(step, label, err)
		return nil, suite.ErrStepFailed
	}

	r.v.metrics.ObserveStep(step.String(), string(models.StatusSuccess), elapsed)
	status := models.StepStatus{Code: step, Label: label, Status: models.StatusSuccess}
	r.callback(status)
	r.log = append(r.log, status)
	return res, nil
}

func (r *run) fail(step steps.Code, label string, err error) {
	status := models.StepStatus{
		Code:         step,
		Label:        label,
		Status:       models.StatusFailure,
		ErrorMessage: err.Error(),
	}
	r.callback(status)
	r.log = append(r.log, status)
	r.failed = true
}

// record reports an error raised outside any tracked step (e.g. by a suite
// between steps) against the enclosing phase. It keeps the single-failure
// invariant: nothing is recorded once the run has failed.
func (r *run) record(phase steps.Code, err error) {
	if r.failed {
		return
	}
	r.v.logger.Warn("verification error outside a tracked step", "phase", phase, "error", err)
	r.fail(phase, steps.LabelFor(phase).Pending, err)
}

// verdict takes the first failure in log order.
func (r *run) verdict(mock bool) models.FinalVerdict {
	for _, s := range r.log {
		if s.Status == models.StatusFailure {
			return models.NewVerdict(models.StatusFailure, s.ErrorMessage)
		}
	}
	if mock {
		return models.NewVerdict(models.StatusSuccess, messageMocknet)
	}
	return models.NewVerdict(models.StatusSuccess, messageChain)
}

func (r *run) snapshot() []models.StepStatus {
	return append([]models.StepStatus(nil), r.log...)
}
