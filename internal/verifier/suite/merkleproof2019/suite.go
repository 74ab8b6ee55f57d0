// Package merkleproof2019 verifies Blockcerts v3 credentials whose proof is a
// MerkleProof2019 receipt, including the issuer DID binding.
package merkleproof2019

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/inspectors"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/parsing"
	"certverify/internal/verifier/steps"
	"certverify/internal/verifier/suite"
)

// Type is the proof type discriminator of this suite.
const Type = "MerkleProof2019"

// Suite verifies a MerkleProof2019 proof. One instance serves one run.
type Suite struct {
	suite.IssuerInfo

	deps      suite.Deps
	logger    *slog.Logger
	proof     models.Proof
	receipt   models.Receipt
	decodeErr error
	chain     chains.Chain
	hasChain  bool
	txID      string
	hasTx     bool

	localHash string
	txData    *models.TransactionData
	profile   *models.Issuer
	keys      map[string]models.KeyInfo
}

var (
	_ suite.Suite            = (*Suite)(nil)
	_ suite.ChainAnchored    = (*Suite)(nil)
	_ suite.IdentityVerifier = (*Suite)(nil)
)

// New builds the suite for deps.Document. A proofValue that cannot be decoded
// does not fail construction; it fails the getTransactionId step instead.
func New(deps suite.Deps) (*Suite, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	proof, ok := deps.Document.FirstProof()
	if !ok {
		return nil, models.NewError(models.KindMalformedDocument, "", "document has no proof")
	}
	if deps.Chains == nil {
		deps.Chains = chains.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Suite{
		IssuerInfo: suite.IssuerInfo{Issuer: deps.Issuer},
		deps:       deps,
		logger:     logger,
		proof:      *proof,
	}
	s.receipt, s.decodeErr = DecodeProofValue(proof.ProofValue)
	if s.decodeErr == nil && len(s.receipt.Anchors) > 0 {
		if anchor := s.receipt.Anchors[0]; anchor.Kind == models.AnchorString {
			s.chain, s.hasChain = deps.Chains.ByBlink(anchor.Value)
		}
		if txID, err := parsing.ReceiptTransactionID(s.receipt); err == nil {
			s.txID, s.hasTx = txID, true
		}
	}
	return s, nil
}

func (s *Suite) Type() string {
	return Type
}

func (s *Suite) isMock() bool {
	return s.hasChain && chains.IsMockChain(&s.chain)
}

func (s *Suite) hasDID() bool {
	return s.deps.Issuer.HasIdentityBinding()
}

func (s *Suite) proofPlan() []suite.Step {
	if s.isMock() {
		return []suite.Step{
			{Code: steps.ComputeLocalHash, Run: s.computeLocalHash},
			{Code: steps.CompareHashes, Run: s.compareHashes},
			{Code: steps.CheckReceipt, Run: s.checkReceipt},
		}
	}
	plan := []suite.Step{
		{Code: steps.GetTransactionID, Run: s.getTransactionID},
		{Code: steps.ComputeLocalHash, Run: s.computeLocalHash},
		{Code: steps.FetchRemoteHash, Run: s.fetchRemoteHash},
	}
	if !s.hasDID() {
		plan = append(plan,
			suite.Step{Code: steps.GetIssuerProfile, Run: s.getIssuerProfile},
			suite.Step{Code: steps.ParseIssuerKeys, Run: s.parseIssuerKeys},
		)
	}
	plan = append(plan,
		suite.Step{Code: steps.CompareHashes, Run: s.compareHashes},
		suite.Step{Code: steps.CheckMerkleRoot, Run: s.checkMerkleRoot},
		suite.Step{Code: steps.CheckReceipt, Run: s.checkReceipt},
	)
	if !s.hasDID() {
		plan = append(plan, suite.Step{Code: steps.CheckAuthenticity, Run: s.checkAuthenticity})
	}
	return plan
}

func (s *Suite) identityPlan() []suite.Step {
	if !s.hasDID() || s.isMock() {
		return nil
	}
	return []suite.Step{{Code: steps.CompareIssuingAddress, Run: s.compareIssuingAddress}}
}

func (s *Suite) VerifyProof(ctx context.Context) error {
	return suite.RunSteps(ctx, s.deps.Action, s.proofPlan())
}

// VerifyIdentity checks that the anchoring address belongs to the issuer DID.
func (s *Suite) VerifyIdentity(ctx context.Context) error {
	return suite.RunSteps(ctx, s.deps.Action, s.identityPlan())
}

func (s *Suite) ProofVerificationSteps(parent steps.Code) []steps.Substep {
	return suite.Substeps(parent, s.proofPlan())
}

func (s *Suite) IdentityVerificationSteps(parent steps.Code) []steps.Substep {
	return suite.Substeps(parent, s.identityPlan())
}

func (s *Suite) getTransactionID(context.Context) error {
	if s.decodeErr != nil {
		return models.WrapError(s.decodeErr, models.KindMalformedAnchor, steps.GetTransactionID,
			"Cannot verify this certificate without a transaction ID to compare against.")
	}
	txID, err := parsing.ReceiptTransactionID(s.receipt)
	if err != nil {
		return err
	}
	if !s.hasChain {
		return models.NewError(models.KindMalformedAnchor, steps.GetTransactionID,
			"The anchor does not reference a supported blockchain.")
	}
	s.txID, s.hasTx = txID, true
	return nil
}

func (s *Suite) computeLocalHash(context.Context) error {
	h, err := s.deps.LocalHash()
	if err != nil {
		return models.WrapError(err, models.KindProofVerification, steps.ComputeLocalHash,
			suite.HashFailureMessage(err))
	}
	s.localHash = h
	return nil
}

func (s *Suite) fetchRemoteHash(ctx context.Context) error {
	if s.deps.Transactions == nil {
		return models.NewError(models.KindTransport, steps.FetchRemoteHash, "no transaction lookup configured")
	}
	data, err := s.deps.Transactions.LookupTransaction(ctx, s.chain, s.txID)
	if err != nil {
		return models.WrapError(err, models.KindTransport, steps.FetchRemoteHash,
			"Unable to get remote hash: "+err.Error())
	}
	s.txData = data
	return nil
}

func (s *Suite) getIssuerProfile(ctx context.Context) error {
	profileURL, err := s.IssuerProfileURL()
	if err != nil || s.deps.IssuerProfiles == nil || !strings.HasPrefix(profileURL, "http") {
		if len(s.deps.Issuer.PublicKey) == 0 {
			return models.NewError(models.KindProofVerification, steps.GetIssuerProfile,
				"Unable to get issuer profile")
		}
		s.logger.Debug("using embedded issuer profile", "issuer", s.deps.Issuer.ID)
		s.profile = s.deps.Issuer
		return nil
	}
	profile, err := s.deps.IssuerProfiles.FetchIssuerProfile(ctx, profileURL)
	if err != nil {
		return models.WrapError(err, models.KindTransport, steps.GetIssuerProfile,
			"Unable to get issuer profile")
	}
	s.profile = profile
	return nil
}

func (s *Suite) parseIssuerKeys(context.Context) error {
	keys, err := parsing.IssuerKeys(s.profile)
	if err != nil {
		return err
	}
	s.keys = keys
	return nil
}

func (s *Suite) compareHashes(context.Context) error {
	if s.decodeErr != nil {
		return models.WrapError(s.decodeErr, models.KindProofVerification, steps.CompareHashes,
			"The proof value could not be decoded.")
	}
	return inspectors.EnsureHashesEqual(s.localHash, s.receipt.TargetHash)
}

func (s *Suite) checkMerkleRoot(context.Context) error {
	if s.txData == nil {
		return errors.New("transaction data was not fetched")
	}
	return inspectors.EnsureMerkleRootEqual(s.receipt.MerkleRoot, s.txData.RemoteHash)
}

func (s *Suite) checkReceipt(context.Context) error {
	return inspectors.EnsureValidReceipt(s.receipt)
}

func (s *Suite) checkAuthenticity(context.Context) error {
	if s.txData == nil {
		return errors.New("transaction data was not fetched")
	}
	return inspectors.EnsureValidIssuingKey(s.keys, s.txData.IssuingAddress, s.txData.Time)
}

func (s *Suite) compareIssuingAddress(context.Context) error {
	if s.txData == nil {
		return errors.New("transaction data was not fetched")
	}
	return inspectors.EnsureIssuingAddressMatches(s.deps.Issuer.DIDDocument, s.txData.IssuingAddress)
}

// IssuerPublicKey returns the anchoring address once known, otherwise the
// verification method declared by the proof.
func (s *Suite) IssuerPublicKey() (string, error) {
	if s.txData != nil && s.txData.IssuingAddress != "" {
		return s.txData.IssuingAddress, nil
	}
	if s.proof.VerificationMethod != "" {
		return s.proof.VerificationMethod, nil
	}
	return "", suite.Missing("issuer public key")
}

func (s *Suite) SigningDate() (string, error) {
	doc := s.deps.Document
	for _, d := range []string{s.proof.Created, doc.ValidFrom, doc.IssuanceDate} {
		if d != "" {
			return d, nil
		}
	}
	return "", suite.Missing("signing date")
}

// VerificationMethod returns the proof's declared verification method.
func (s *Suite) VerificationMethod() string {
	return s.proof.VerificationMethod
}

func (s *Suite) Chain() (chains.Chain, bool) {
	return s.chain, s.hasChain
}

func (s *Suite) TransactionData() (*models.TransactionData, bool) {
	return s.txData, s.txData != nil
}

func (s *Suite) Receipt() (models.Receipt, bool) {
	return s.receipt, s.decodeErr == nil
}

func (s *Suite) TransactionID() (string, bool) {
	return s.txID, s.hasTx
}

func (s *Suite) TransactionLink() (string, bool) {
	if !s.hasTx || !s.hasChain {
		return "", false
	}
	return s.chain.TransactionLink(s.txID), true
}

func (s *Suite) RawTransactionLink() (string, bool) {
	if !s.hasTx || !s.hasChain {
		return "", false
	}
	return s.chain.RawTransactionLink(s.txID), true
}
