package models

import (
	"time"

	"github.com/google/uuid"
)

// Result is a persisted verification run.
type Result struct {
	ID         uuid.UUID    `json:"id"`
	DocumentID string       `json:"documentId"`
	ProofType  string       `json:"proofType"`
	Chain      string       `json:"chain,omitempty"`
	Subject    string       `json:"subject,omitempty"`
	Verdict    FinalVerdict `json:"verdict"`
	Steps      []StepStatus `json:"steps"`
	CreatedAt  time.Time    `json:"createdAt"`
	// IssuerPublicKey is the key the run checked the document against, when
	// it got that far.
	IssuerPublicKey string `json:"issuerPublicKey,omitempty"`
}

// FailedStep returns the failing step of the run, if any.
func (r *Result) FailedStep() (StepStatus, bool) {
	for _, s := range r.Steps {
		if s.Status == StatusFailure {
			return s, true
		}
	}
	return StepStatus{}, false
}
