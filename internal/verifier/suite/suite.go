// Package suite defines the proof verification strategy contract shared by
// the supported proof formats.
package suite

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"certverify/internal/verifier/canonical"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/ports"
	"certverify/internal/verifier/steps"
)

var (
	// ErrSkipped is returned by an ActionFunc when an earlier step already failed
	// and the action was not invoked.
	ErrSkipped = errors.New("skipped after an earlier step failure")
	// ErrStepFailed is returned by an ActionFunc when a tracked action failed.
	// The underlying error has already been reported.
	ErrStepFailed = errors.New("step failed")
)

// Action is a unit of verification work.
type Action func(ctx context.Context) (any, error)

// ActionFunc runs an action on behalf of step. Tracked steps are reported and
// gate every later step; steps.Untracked runs the action and returns its error
// unchanged.
type ActionFunc func(ctx context.Context, step steps.Code, action Action) (any, error)

// Suite verifies one proof format.
type Suite interface {
	Type() string
	// VerifyProof runs the proof sub-steps through the injected ActionFunc.
	VerifyProof(ctx context.Context) error
	ProofVerificationSteps(parent steps.Code) []steps.Substep
	IdentityVerificationSteps(parent steps.Code) []steps.Substep

	IssuerPublicKey() (string, error)
	IssuerName() (string, error)
	IssuerProfileDomain() (string, error)
	IssuerProfileURL() (string, error)
	SigningDate() (string, error)
}

// IdentityVerifier is implemented by formats with an identity binding scheme.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context) error
}

// ChainAnchored is implemented by formats anchored to a blockchain. The second
// return value is false when the document carries no such value.
type ChainAnchored interface {
	Chain() (chains.Chain, bool)
	Receipt() (models.Receipt, bool)
	TransactionID() (string, bool)
	TransactionLink() (string, bool)
	RawTransactionLink() (string, bool)
}

// TransactionReader is implemented by formats that fetch their anchoring
// transaction during the proof steps. ok is false until it was fetched.
type TransactionReader interface {
	TransactionData() (*models.TransactionData, bool)
}

// Deps are the collaborators a suite is built from. The suite does not own
// them.
type Deps struct {
	Action         ActionFunc
	Document       *models.Document
	Issuer         *models.Issuer
	Transactions   ports.TransactionLookup
	IssuerProfiles ports.IssuerProfileFetcher
	Chains         *chains.Registry
	Hasher         *canonical.Hasher
	Logger         *slog.Logger
}

// LocalHash hashes the document with the configured Hasher, or with the
// bundled contexts only when none is set.
func (d Deps) LocalHash() (string, error) {
	if d.Hasher == nil {
		return canonical.LocalHash(d.Document.Raw)
	}
	return d.Hasher.LocalHash(d.Document.Raw)
}

// HashFailureMessage is the step message for a local hash error. Unmapped
// fields are listed so the issuer can fix their contexts.
func HashFailureMessage(err error) string {
	if errors.Is(err, canonical.ErrUnmappedFields) {
		return err.Error()
	}
	return "Failed to compute the local hash of the document."
}

// Validate checks the dependencies every suite needs.
func (d Deps) Validate() error {
	switch {
	case d.Action == nil:
		return errors.New("action func is required")
	case d.Document == nil:
		return errors.New("document is required")
	case d.Issuer == nil:
		return errors.New("issuer is required")
	}
	return nil
}

// Step is one planned sub-step of a suite.
type Step struct {
	Code steps.Code
	Run  func(ctx context.Context) error
}

// RunSteps routes each step through act, in order, and stops at the first
// error returned by act.
func RunSteps(ctx context.Context, act ActionFunc, plan []Step) error {
	for _, st := range plan {
		run := st.Run
		if _, err := act(ctx, st.Code, func(ctx context.Context) (any, error) {
			return nil, run(ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Substeps lists the plan as sub-steps of parent.
func Substeps(parent steps.Code, plan []Step) []steps.Substep {
	codes := make([]steps.Code, 0, len(plan))
	for _, st := range plan {
		codes = append(codes, st.Code)
	}
	return steps.NewSubsteps(parent, codes...)
}

// Do runs fn through act and returns its typed result.
func Do[T any](ctx context.Context, act ActionFunc, step steps.Code, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	res, err := act(ctx, step, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

// IsHandled reports whether err was already reported by the action wrapper.
func IsHandled(err error) bool {
	return errors.Is(err, ErrSkipped) || errors.Is(err, ErrStepFailed)
}

// IssuerInfo implements the issuer getters shared by the suites.
type IssuerInfo struct {
	Issuer *models.Issuer
}

func (i IssuerInfo) IssuerName() (string, error) {
	if i.Issuer == nil || i.Issuer.Name == "" {
		return "", Missing("issuer name")
	}
	return i.Issuer.Name, nil
}

// IssuerProfileURL returns the issuer id, which is the profile URL for
// hosted profiles.
func (i IssuerInfo) IssuerProfileURL() (string, error) {
	if i.Issuer == nil || i.Issuer.ID == "" {
		return "", Missing("issuer profile url")
	}
	return i.Issuer.ID, nil
}

// IssuerProfileDomain returns the host of the issuer's profile or site URL.
func (i IssuerInfo) IssuerProfileDomain() (string, error) {
	if i.Issuer == nil {
		return "", Missing("issuer")
	}
	for _, raw := range []string{i.Issuer.ID, i.Issuer.URL} {
		u, err := url.Parse(raw)
		if err == nil && u.Host != "" {
			return u.Host, nil
		}
	}
	return "", Missing("issuer profile domain")
}

// Missing builds the error returned by getters for absent fields.
func Missing(field string) error {
	return models.NewError(models.KindMalformedDocument, "", field+" is missing from the document")
}
