package models

import "certverify/internal/verifier/steps"

// Status is the state reported for a step.
type Status string

const (
	StatusStarting Status = "starting"
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
)

// StepStatus is one entry of the status callback stream and of the per-run log.
type StepStatus struct {
	Code         steps.Code `json:"code"`
	Label        string     `json:"label"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// StepCallback receives status updates in order. It must not panic.
type StepCallback func(StepStatus)

// FinalVerdict is the outcome of one verification run.
type FinalVerdict struct {
	Code    steps.Code `json:"code"`
	Status  Status     `json:"status"`
	Message string     `json:"message"`
}

// Succeeded reports whether the verdict is a pass.
func (v FinalVerdict) Succeeded() bool {
	return v.Status == StatusSuccess
}

// NewVerdict builds a final verdict.
func NewVerdict(status Status, message string) FinalVerdict {
	return FinalVerdict{Code: steps.Final, Status: status, Message: message}
}
