package models

import (
	"errors"
	"fmt"

	"certverify/internal/verifier/steps"
)

// ErrorKind classifies verification failures.
type ErrorKind string

const (
	KindUnsupportedProofType       ErrorKind = "unsupported_proof_type"
	KindMalformedDocument          ErrorKind = "malformed_document"
	KindMalformedAnchor            ErrorKind = "malformed_anchor"
	KindProofVerification          ErrorKind = "proof_verification"
	KindIdentityVerification       ErrorKind = "identity_verification"
	KindRevoked                    ErrorKind = "revoked"
	KindExpired                    ErrorKind = "expired"
	KindVerificationMethodMismatch ErrorKind = "verification_method_mismatch"
	KindIntegrity                  ErrorKind = "integrity"
	KindTransport                  ErrorKind = "transport"
)

// VerifierError is a failure attributable to a step. Its message is what the
// status callback and the final verdict show.
type VerifierError struct {
	Kind    ErrorKind
	Step    steps.Code
	Message string
	Err     error
}

func (e *VerifierError) Error() string {
	return e.Message
}

func (e *VerifierError) Unwrap() error {
	return e.Err
}

// NewError builds a VerifierError.
func NewError(kind ErrorKind, step steps.Code, msg string) *VerifierError {
	return &VerifierError{Kind: kind, Step: step, Message: msg}
}

// Errorf builds a VerifierError with a formatted message.
func Errorf(kind ErrorKind, step steps.Code, format string, args ...any) *VerifierError {
	return &VerifierError{Kind: kind, Step: step, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches kind and step to a collaborator failure.
func WrapError(err error, kind ErrorKind, step steps.Code, msg string) *VerifierError {
	return &VerifierError{Kind: kind, Step: step, Message: msg, Err: err}
}

// IsKind reports whether err is a VerifierError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *VerifierError
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, KindTransport for foreign errors.
func KindOf(err error) ErrorKind {
	var ve *VerifierError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindTransport
}
