// Package service turns raw credential JSON into verification results: it
// parses the document, resolves its issuer, runs a fresh Verifier, then
// persists and audits the outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"certverify/internal/verifier"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/metrics"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/parsing"
	"certverify/internal/verifier/ports"
	"certverify/internal/verifier/steps"
	dErrors "certverify/pkg/domain-errors"
	audit "certverify/pkg/platform/audit"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tracer"
	txcontext "certverify/pkg/platform/tx"
	"certverify/pkg/requestcontext"
)

// Store persists verification results.
type Store interface {
	Save(ctx context.Context, result *models.Result) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Result, error)
	ListByDocument(ctx context.Context, documentID string, limit int) ([]*models.Result, error)
}

// MaxHistory bounds History.
const MaxHistory = 100

// Service is safe for concurrent use; every call builds its own Verifier.
type Service struct {
	store   Store
	tx      txcontext.Runner
	records audit.Publisher
	auditor audit.Publisher

	transactions ports.TransactionLookup
	issuers      ports.IssuerProfileFetcher
	revocations  ports.RevocationListFetcher
	hashlinks    ports.HashlinkVerifier
	contexts     ports.ContextLoader
	chains       *chains.Registry

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Service)

func WithAuditor(p audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithAuditRecords writes the audit event of every run in the same unit of
// work as its result.
func WithAuditRecords(p audit.Publisher) Option {
	return func(s *Service) {
		s.records = p
	}
}

// WithTxRunner sets the transaction a result and its audit record share.
func WithTxRunner(r txcontext.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.tx = r
		}
	}
}

func WithTransactionLookup(l ports.TransactionLookup) Option {
	return func(s *Service) {
		s.transactions = l
	}
}

func WithIssuerProfiles(f ports.IssuerProfileFetcher) Option {
	return func(s *Service) {
		s.issuers = f
	}
}

func WithRevocationLists(f ports.RevocationListFetcher) Option {
	return func(s *Service) {
		s.revocations = f
	}
}

func WithHashlinks(h ports.HashlinkVerifier) Option {
	return func(s *Service) {
		s.hashlinks = h
	}
}

// WithContextLoader resolves the JSON-LD contexts documents reference.
func WithContextLoader(l ports.ContextLoader) Option {
	return func(s *Service) {
		s.contexts = l
	}
}

func WithChains(r *chains.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.chains = r
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     txcontext.None{},
		chains: chains.Default(),
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare parses raw and builds the Verifier for it without running any step.
func (s *Service) Prepare(ctx context.Context, raw []byte) (*verifier.Verifier, error) {
	doc, err := models.ParseDocument(raw)
	if err != nil {
		return nil, s.reject(ctx, "", "malformed_document", err,
			dErrors.Wrap(err, dErrors.CodeBadRequest, "document is not a valid credential"))
	}

	expires, err := doc.ExpiresAt()
	if err != nil {
		return nil, s.reject(ctx, doc.ID, "malformed_document", err,
			dErrors.Wrap(err, dErrors.CodeBadRequest, "document has an invalid expiration date"))
	}

	issuer, err := s.resolveIssuer(ctx, doc)
	if err != nil {
		return nil, s.reject(ctx, doc.ID, "issuer_unavailable", err, err)
	}

	v, err := verifier.New(verifier.Config{
		Document:        doc,
		Issuer:          issuer,
		DocumentID:      doc.ID,
		Expires:         expires,
		RevocationKey:   parsing.RevocationKey(issuer),
		Transactions:    s.transactions,
		IssuerProfiles:  s.issuers,
		RevocationLists: s.revocations,
		Hashlinks:       s.hashlinks,
		Chains:          s.chains,
		Contexts:        s.contexts,
	},
		verifier.WithLogger(s.logger),
		verifier.WithMetrics(s.metrics),
		verifier.WithTracer(s.tracer),
	)
	if err != nil {
		if models.IsKind(err, models.KindUnsupportedProofType) {
			return nil, s.reject(ctx, doc.ID, "unsupported_proof_type", err,
				dErrors.Wrap(err, dErrors.CodeUnsupported, err.Error()))
		}
		return nil, s.reject(ctx, doc.ID, "malformed_document", err,
			dErrors.Wrap(err, dErrors.CodeBadRequest, "document cannot be verified"))
	}
	return v, nil
}

// resolveIssuer prefers an embedded profile that carries keys or a DID
// document, then the profile served at the issuer URL. Without either, a
// bare issuer with the document's issuer id is used and the suites report
// what is missing.
func (s *Service) resolveIssuer(ctx context.Context, doc *models.Document) (*models.Issuer, error) {
	embedded := doc.Issuer.Embedded
	if embedded != nil && (len(embedded.PublicKey) > 0 || embedded.DIDDocument != nil) {
		return embedded, nil
	}

	id := doc.Issuer.ID
	if s.issuers != nil && isHTTP(id) {
		profile, err := s.issuers.FetchIssuerProfile(ctx, id)
		if err == nil {
			return profile, nil
		}
		s.logger.WarnContext(ctx, "issuer profile fetch failed", "issuer", id, "error", err)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "issuer profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "unable to retrieve the issuer profile")
	}

	if embedded != nil {
		return embedded, nil
	}
	return &models.Issuer{ID: id}, nil
}

func isHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// Verify runs the full verification of raw, reporting step progress through
// cb (which may be nil). A failed verification is a successful call: the
// verdict carries the failure. Errors are returned only when no verification
// could start.
func (s *Service) Verify(ctx context.Context, raw []byte, cb models.StepCallback) (*models.Result, error) {
	v, err := s.Prepare(ctx, raw)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, v, cb), nil
}

// Run executes a prepared Verifier, then persists and audits the result.
// Persistence failures are logged and never change the verdict.
func (s *Service) Run(ctx context.Context, v *verifier.Verifier, cb models.StepCallback) *models.Result {
	outcome := v.Run(ctx, cb)

	result := &models.Result{
		ID:         uuid.New(),
		DocumentID: v.DocumentID(),
		ProofType:  string(v.ProofType()),
		Subject:    requestcontext.Subject(ctx),
		Verdict:    outcome.Verdict,
		Steps:      outcome.Log,
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	}
	if c, ok := v.Chain(); ok {
		result.Chain = c.Code
	}
	if key, err := v.IssuerPublicKey(); err == nil {
		result.IssuerPublicKey = key
	}

	event := audit.Event{
		Action:     audit.ActionVerified,
		ResultID:   result.ID.String(),
		DocumentID: result.DocumentID,
		ProofType:  result.ProofType,
		Chain:      result.Chain,
		Status:     string(result.Verdict.Status),
	}
	if failed, ok := result.FailedStep(); ok {
		event.FailedStep = failed.Code.String()
		event.Reason = failed.ErrorMessage
	}
	s.enrich(ctx, &event)

	if err := s.persist(ctx, result, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist verification result",
			"result_id", result.ID,
			"error", err,
		)
	}
	s.emit(ctx, event)

	s.logger.InfoContext(ctx, "verification completed",
		"result_id", result.ID,
		"proof_type", result.ProofType,
		"status", result.Verdict.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result
}

// persist saves the result, when there is one, and its audit record
// atomically.
func (s *Service) persist(ctx context.Context, result *models.Result, event audit.Event) error {
	save := s.store != nil && result != nil
	if !save && s.records == nil {
		return nil
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if save {
			if err := s.store.Save(txCtx, result); err != nil {
				return err
			}
		}
		if s.records != nil {
			if err := s.records.Emit(txCtx, event); err != nil {
				return fmt.Errorf("record audit event: %w", err)
			}
		}
		return nil
	})
}

// Result returns a persisted result.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*models.Result, error) {
	if s.store == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "verification results are not stored")
	}
	r, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "verification result not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification result")
	}
	return r, nil
}

// History returns the stored runs of documentID, newest first. limit is
// clamped to MaxHistory.
func (s *Service) History(ctx context.Context, documentID string, limit int) ([]*models.Result, error) {
	if documentID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "documentId is required")
	}
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	if s.store == nil {
		return []*models.Result{}, nil
	}
	results, err := s.store.ListByDocument(ctx, documentID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification results")
	}
	if results == nil {
		results = []*models.Result{}
	}
	return results, nil
}

// StepsReport describes what verifying a document would do.
type StepsReport struct {
	ProofType           string       `json:"proofType"`
	Steps               []steps.Step `json:"steps"`
	Process             []steps.Code `json:"process"`
	Chain               string       `json:"chain,omitempty"`
	TransactionID       string       `json:"transactionId,omitempty"`
	TransactionLink     string       `json:"transactionLink,omitempty"`
	RawTransactionLink  string       `json:"rawTransactionLink,omitempty"`
	IssuerName          string       `json:"issuerName,omitempty"`
	IssuerProfileURL    string       `json:"issuerProfileUrl,omitempty"`
	IssuerProfileDomain string       `json:"issuerProfileDomain,omitempty"`
	SigningDate         string       `json:"signingDate,omitempty"`
}

// Steps reports the verification map of raw without running it.
func (s *Service) Steps(ctx context.Context, raw []byte) (*StepsReport, error) {
	v, err := s.Prepare(ctx, raw)
	if err != nil {
		return nil, err
	}
	return Describe(v), nil
}

// Describe builds the StepsReport of a prepared Verifier. Getters that fail
// leave their field empty.
func Describe(v *verifier.Verifier) *StepsReport {
	r := &StepsReport{
		ProofType: string(v.ProofType()),
		Steps:     v.Steps(),
		Process:   v.Process(),
	}
	if c, ok := v.Chain(); ok {
		r.Chain = c.Code
	}
	r.TransactionID, _ = v.TransactionID()
	r.TransactionLink, _ = v.TransactionLink()
	r.RawTransactionLink, _ = v.RawTransactionLink()
	r.IssuerName, _ = v.IssuerName()
	r.IssuerProfileURL, _ = v.IssuerProfileURL()
	r.IssuerProfileDomain, _ = v.IssuerProfileDomain()
	r.SigningDate, _ = v.SigningDate()
	return r
}

func (s *Service) reject(ctx context.Context, documentID, reason string, cause, ret error) error {
	s.metrics.IncrementRejected(reason)
	s.logger.WarnContext(ctx, "document rejected",
		"reason", reason,
		"error", cause,
		"request_id", requestcontext.RequestID(ctx),
	)
	event := audit.Event{
		Action:     audit.ActionRejected,
		DocumentID: documentID,
		Reason:     reason,
	}
	s.enrich(ctx, &event)
	if err := s.persist(ctx, nil, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record rejection", "error", err)
	}
	s.emit(ctx, event)
	return ret
}

func (s *Service) enrich(ctx context.Context, event *audit.Event) {
	event.Subject = requestcontext.Subject(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.ClientName = requestcontext.ClientName(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.Normalize(requestcontext.Now(ctx))
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.enrich(ctx, &event)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
