// Package verifier orchestrates the verification of a blockchain-anchored
// credential: it selects the proof suite, assembles the step model, runs every
// step through a fail-fast action wrapper and derives the final verdict.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"certverify/internal/verifier/canonical"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/metrics"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/ports"
	"certverify/internal/verifier/steps"
	"certverify/internal/verifier/suite"
	"certverify/internal/verifier/suite/merkleproof2017"
	"certverify/internal/verifier/suite/merkleproof2019"
	"certverify/pkg/platform/tracer"
)

// ProofType is the closed set of supported proof formats.
type ProofType string

const (
	ProofMerkle2017 ProofType = merkleproof2017.Type
	ProofMerkle2019 ProofType = merkleproof2019.Type
)

// ParseProofType reads the proof discriminator: proof.type for v3 documents,
// signature.type[0] for v2 documents.
func ParseProofType(doc *models.Document) (ProofType, error) {
	var raw string
	if proof, ok := doc.FirstProof(); ok {
		raw = proof.Type
	} else if doc.Signature != nil {
		raw = doc.Signature.Type.First()
	}

	switch pt := ProofType(raw); pt {
	case ProofMerkle2017, ProofMerkle2019:
		return pt, nil
	}
	return "", models.NewError(models.KindUnsupportedProofType, "",
		fmt.Sprintf("unsupported proof type %q", raw))
}

// Config carries the document and the collaborators of one verification.
type Config struct {
	Document      *models.Document
	Issuer        *models.Issuer
	DocumentID    string
	Expires       *time.Time
	RevocationKey string

	Transactions    ports.TransactionLookup
	IssuerProfiles  ports.IssuerProfileFetcher
	RevocationLists ports.RevocationListFetcher
	Hashlinks       ports.HashlinkVerifier
	Chains          *chains.Registry
	// Contexts resolves JSON-LD contexts for the local hash; nil limits it
	// to the bundled contexts.
	Contexts ports.ContextLoader
}

// Verifier verifies one document. Build a new Verifier per document; Verify
// may be called concurrently since every call owns its run state.
//
// The document getters answer from the most recently completed run, so data
// fetched during verification (the issuer key of a MerkleProof2017 anchor)
// is visible once Verify returns. Before any run they answer from the
// document alone.
type Verifier struct {
	cfg       Config
	proofType ProofType
	hasher    *canonical.Hasher
	planning  suite.Suite
	stepMap   *steps.Map

	mu   sync.RWMutex
	last suite.Suite

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger used for step diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMetrics records step latencies and verdicts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithTracer opens a span per tracked step.
func WithTracer(t tracer.Tracer) Option {
	return func(v *Verifier) {
		v.tracer = t
	}
}

// New selects the suite for cfg.Document and assembles the step model. An
// unrecognized proof type fails here, before any step can run.
func New(cfg Config, opts ...Option) (*Verifier, error) {
	if cfg.Document == nil {
		return nil, errors.New("document is required")
	}
	if cfg.Issuer == nil {
		return nil, errors.New("issuer is required")
	}
	if cfg.Chains == nil {
		cfg.Chains = chains.Default()
	}

	proofType, err := ParseProofType(cfg.Document)
	if err != nil {
		return nil, err
	}

	v := &Verifier{
		cfg:       cfg,
		proofType: proofType,
		logger:    slog.Default(),
		tracer:    tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if cfg.Contexts != nil {
		v.hasher = canonical.NewHasher(cfg.Contexts)
	}

	// The planning suite only answers pure questions (steps, getters); each run
	// gets its own suite bound to its own action wrapper.
	v.planning, err = v.newSuite(notRunning)
	if err != nil {
		return nil, err
	}
	if err := v.prepareSteps(); err != nil {
		return nil, err
	}
	return v, nil
}

func notRunning(context.Context, steps.Code, suite.Action) (any, error) {
	return nil, errors.New("verification is not running")
}

func (v *Verifier) newSuite(act suite.ActionFunc) (suite.Suite, error) {
	deps := suite.Deps{
		Action:         act,
		Document:       v.cfg.Document,
		Issuer:         v.cfg.Issuer,
		Transactions:   v.cfg.Transactions,
		IssuerProfiles: v.cfg.IssuerProfiles,
		Chains:         v.cfg.Chains,
		Hasher:         v.hasher,
		Logger:         v.logger,
	}
	switch v.proofType {
	case ProofMerkle2017:
		return merkleproof2017.New(deps)
	case ProofMerkle2019:
		return merkleproof2019.New(deps)
	default:
		return nil, models.NewError(models.KindUnsupportedProofType, "",
			fmt.Sprintf("unsupported proof type %q", v.proofType))
	}
}

func (v *Verifier) prepareSteps() error {
	v.stepMap = steps.Build(v.cfg.Issuer.HasIdentityBinding())
	if err := v.stepMap.Merge(steps.ProofVerification,
		v.planning.ProofVerificationSteps(steps.ProofVerification)); err != nil {
		return err
	}
	if err := v.stepMap.Merge(steps.IdentityVerification,
		v.planning.IdentityVerificationSteps(steps.IdentityVerification)); err != nil {
		return err
	}
	v.stepMap.Prune()
	return nil
}

// Outcome is the full result of a run.
type Outcome struct {
	Verdict models.FinalVerdict
	Log     []models.StepStatus
	// Suite is the run's suite; its getters reflect data fetched during the run.
	Suite suite.Suite
}

// Verify runs the verification and reports progress through cb, which may be
// nil. It never fails: every error ends up in the verdict.
func (v *Verifier) Verify(ctx context.Context, cb models.StepCallback) models.FinalVerdict {
	return v.Run(ctx, cb).Verdict
}

// Run is Verify returning the step log and the run's suite as well.
func (v *Verifier) Run(ctx context.Context, cb models.StepCallback) *Outcome {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrProofType, string(v.proofType)),
		tracer.String(tracer.AttrDocumentID, tracer.HashDocumentID(v.cfg.DocumentID)),
	)

	r := newRun(v, cb)
	s, err := v.newSuite(r.do)
	if err != nil {
		r.record(steps.ProofVerification, err)
		s = v.planning
	} else {
		if err := s.VerifyProof(ctx); err != nil && !suite.IsHandled(err) {
			r.record(steps.ProofVerification, err)
		}

		for _, op := range v.stepMap.Process {
			v.runOperation(ctx, r, s, op)
		}

		if iv, ok := s.(suite.IdentityVerifier); ok {
			if err := iv.VerifyIdentity(ctx); err != nil && !suite.IsHandled(err) {
				r.record(steps.IdentityVerification, err)
			}
		}
	}

	verdict := r.verdict(v.isMockChain(s))
	v.metrics.IncrementVerdict(string(verdict.Status), string(v.proofType))
	v.metrics.ObserveVerifyLatency(time.Since(start))

	var spanErr error
	if !verdict.Succeeded() {
		spanErr = errors.New(verdict.Message)
	}
	span.SetAttributes(tracer.String(tracer.AttrStatus, string(verdict.Status)))
	span.End(spanErr)

	v.mu.Lock()
	v.last = s
	v.mu.Unlock()

	return &Outcome{Verdict: verdict, Log: r.snapshot(), Suite: s}
}

// current is the suite of the last completed run, or the planning suite.
func (v *Verifier) current() suite.Suite {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.last != nil {
		return v.last
	}
	return v.planning
}

func (v *Verifier) isMockChain(s suite.Suite) bool {
	anchored, ok := s.(suite.ChainAnchored)
	if !ok {
		return false
	}
	c, ok := anchored.Chain()
	return ok && chains.IsMockChain(&c)
}

// Steps returns the hierarchy of steps this document will report, without
// empty phases.
func (v *Verifier) Steps() []steps.Step {
	return v.stepMap.Visible()
}

// Process returns the ordered orchestrator operations for this document.
func (v *Verifier) Process() []steps.Code {
	return append([]steps.Code(nil), v.stepMap.Process...)
}

func (v *Verifier) ProofType() ProofType {
	return v.proofType
}

func (v *Verifier) DocumentID() string {
	return v.cfg.DocumentID
}

func (v *Verifier) RevocationKey() string {
	return v.cfg.RevocationKey
}

func (v *Verifier) IssuerPublicKey() (string, error) {
	return v.current().IssuerPublicKey()
}

func (v *Verifier) IssuerName() (string, error) {
	return v.current().IssuerName()
}

func (v *Verifier) IssuerProfileDomain() (string, error) {
	return v.current().IssuerProfileDomain()
}

func (v *Verifier) IssuerProfileURL() (string, error) {
	return v.current().IssuerProfileURL()
}

func (v *Verifier) SigningDate() (string, error) {
	return v.current().SigningDate()
}

// Chain returns the anchoring chain; ok is false for suites that are not
// chain-anchored or documents whose anchor names no known chain.
func (v *Verifier) Chain() (chains.Chain, bool) {
	if a, ok := v.current().(suite.ChainAnchored); ok {
		return a.Chain()
	}
	return chains.Chain{}, false
}

func (v *Verifier) Receipt() (models.Receipt, bool) {
	if a, ok := v.current().(suite.ChainAnchored); ok {
		return a.Receipt()
	}
	return models.Receipt{}, false
}

func (v *Verifier) TransactionID() (string, bool) {
	if a, ok := v.current().(suite.ChainAnchored); ok {
		return a.TransactionID()
	}
	return "", false
}

func (v *Verifier) TransactionLink() (string, bool) {
	if a, ok := v.current().(suite.ChainAnchored); ok {
		return a.TransactionLink()
	}
	return "", false
}

func (v *Verifier) RawTransactionLink() (string, bool) {
	if a, ok := v.current().(suite.ChainAnchored); ok {
		return a.RawTransactionLink()
	}
	return "", false
}
