// Package audit records what happened to every document submitted for
// verification. Events are transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names the audited fact.
type Action string

const (
	// ActionVerified is emitted when a run reached a verdict, success or failure.
	ActionVerified Action = "verification_completed"
	// ActionRejected is emitted when a document was refused before any step
	// ran (unsupported proof type, malformed JSON, unreachable issuer).
	ActionRejected Action = "verification_rejected"
)

// Severity lets sinks route events, e.g. failures to an alerting topic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Event is one audit record.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Severity   Severity  `json:"severity"`
	ResultID   string    `json:"resultId,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	ProofType  string    `json:"proofType,omitempty"`
	Chain      string    `json:"chain,omitempty"`
	Status     string    `json:"status,omitempty"`
	FailedStep string    `json:"failedStep,omitempty"`
	Reason     string    `json:"reason,omitempty"`

	// Caller enrichment, filled from the request context.
	Subject    string `json:"subject,omitempty"`
	ClientIP   string `json:"clientIp,omitempty"`
	ClientName string `json:"clientName,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

// Normalize fills the id, timestamp and severity when unset.
func (e *Event) Normalize(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
		if e.Action == ActionRejected || e.Status == "failure" {
			e.Severity = SeverityWarning
		}
	}
}

// Publisher delivers events to a sink (a store, a Kafka topic).
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists events for later inspection.
type Store interface {
	Publisher
	ListByDocument(ctx context.Context, documentID string) ([]Event, error)
}
