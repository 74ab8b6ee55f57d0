// Package merkleproof2017 verifies Blockcerts v2 credentials carrying a
// MerkleProof2017 signature block.
package merkleproof2017

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
const Type = "MerkleProof2017"

// Suite verifies a MerkleProof2017 signature. It holds the state of a single
// run and must not be shared across runs.
type Suite struct {
	suite.IssuerInfo

	deps    suite.Deps
	logger  *slog.Logger
	receipt models.Receipt
	chain   chains.Chain
	hasTx   bool
	txID    string

	localHash string
	txData    *models.TransactionData
	profile   *models.Issuer
	keys      map[string]models.KeyInfo
}

var (
	_ suite.Suite         = (*Suite)(nil)
	_ suite.ChainAnchored = (*Suite)(nil)
)

// New builds the suite for deps.Document.
func New(deps suite.Deps) (*Suite, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if deps.Document.Signature == nil {
		return nil, models.NewError(models.KindMalformedDocument, "", "document has no signature block")
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
		receipt:    deps.Document.Signature.Receipt(),
	}
	s.chain = s.resolveChain()
	if txID, err := parsing.ReceiptTransactionID(s.receipt); err == nil {
		s.txID, s.hasTx = txID, true
	}
	return s, nil
}

// resolveChain reads the chain from the first anchor, defaulting to Bitcoin
// mainnet when the anchor names none.
func (s *Suite) resolveChain() chains.Chain {
	if len(s.receipt.Anchors) > 0 && s.receipt.Anchors[0].Chain != "" {
		if c, ok := s.deps.Chains.BySignature(s.receipt.Anchors[0].Chain); ok {
			return c
		}
	}
	c, _ := s.deps.Chains.ByCode(chains.BitcoinMainnet)
	return c
}

func (s *Suite) Type() string {
	return Type
}

func (s *Suite) plan() []suite.Step {
	if chains.IsMockChain(&s.chain) {
		return []suite.Step{
			{Code: steps.ComputeLocalHash, Run: s.computeLocalHash},
			{Code: steps.CompareHashes, Run: s.compareHashes},
			{Code: steps.CheckReceipt, Run: s.checkReceipt},
		}
	}
	return []suite.Step{
		{Code: steps.GetTransactionID, Run: s.getTransactionID},
		{Code: steps.ComputeLocalHash, Run: s.computeLocalHash},
		{Code: steps.FetchRemoteHash, Run: s.fetchRemoteHash},
		{Code: steps.GetIssuerProfile, Run: s.getIssuerProfile},
		{Code: steps.ParseIssuerKeys, Run: s.parseIssuerKeys},
		{Code: steps.CompareHashes, Run: s.compareHashes},
		{Code: steps.CheckMerkleRoot, Run: s.checkMerkleRoot},
		{Code: steps.CheckReceipt, Run: s.checkReceipt},
		{Code: steps.CheckAuthenticity, Run: s.checkAuthenticity},
	}
}

func (s *Suite) VerifyProof(ctx context.Context) error {
	return suite.RunSteps(ctx, s.deps.Action, s.plan())
}

func (s *Suite) ProofVerificationSteps(parent steps.Code) []steps.Substep {
	return suite.Substeps(parent, s.plan())
}

// IdentityVerificationSteps is empty: v2 documents have no identity binding.
func (s *Suite) IdentityVerificationSteps(parent steps.Code) []steps.Substep {
	return []steps.Substep{}
}

func (s *Suite) getTransactionID(context.Context) error {
	txID, err := parsing.ReceiptTransactionID(s.receipt)
	if err != nil {
		return err
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

// IssuerPublicKey returns the address that issued the anchoring transaction.
// It is known once the remote hash was fetched.
func (s *Suite) IssuerPublicKey() (string, error) {
	if s.txData == nil || s.txData.IssuingAddress == "" {
		return "", suite.Missing("issuer public key")
	}
	return s.txData.IssuingAddress, nil
}

func (s *Suite) SigningDate() (string, error) {
	for _, d := range []string{s.deps.Document.IssuedOn, s.deps.Document.IssuanceDate} {
		if d != "" {
			return d, nil
		}
	}
	return "", suite.Missing("issuance date")
}

func (s *Suite) Chain() (chains.Chain, bool) {
	return s.chain, s.chain.Code != ""
}

func (s *Suite) TransactionData() (*models.TransactionData, bool) {
	return s.txData, s.txData != nil
}

func (s *Suite) Receipt() (models.Receipt, bool) {
	return s.receipt, true
}

func (s *Suite) TransactionID() (string, bool) {
	return s.txID, s.hasTx
}

func (s *Suite) TransactionLink() (string, bool) {
	if !s.hasTx {
		return "", false
	}
	return s.chain.TransactionLink(s.txID), true
}

func (s *Suite) RawTransactionLink() (string, bool) {
	if !s.hasTx {
		return "", false
	}
	return s.chain.RawTransactionLink(s.txID), true
}
