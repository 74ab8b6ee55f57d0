package verifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certverify/internal/verifier/models"
	"certverify/internal/verifier/parsing"
	"certverify/internal/verifier/ports/mocks"
	"certverify/internal/verifier/steps"
	"certverify/internal/verifier/suite/merkleproof2017"
	"certverify/internal/verifier/suite/merkleproof2019"
	"certverify/pkg/requestcontext"
)

type VerifierSuite struct {
	suite.Suite
	ctx          context.Context
	ctrl         *gomock.Controller
	transactions *mocks.MockTransactionLookup
	revocations  *mocks.MockRevocationListFetcher
	hashlinks    *mocks.MockHashlinkVerifier
	logger       *slog.Logger
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s.ctrl = gomock.NewController(s.T())
	s.transactions = mocks.NewMockTransactionLookup(s.ctrl)
	s.revocations = mocks.NewMockRevocationListFetcher(s.ctrl)
	s.hashlinks = mocks.NewMockHashlinkVerifier(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *VerifierSuite) newVerifier(built builtDocument, issuer *models.Issuer) *Verifier {
	expires, err := built.doc.ExpiresAt()
	s.Require().NoError(err)
	v, err := New(Config{
		Document:        built.doc,
		Issuer:          issuer,
		DocumentID:      built.doc.ID,
		Expires:         expires,
		RevocationKey:   parsing.RevocationKey(issuer),
		Transactions:    s.transactions,
		RevocationLists: s.revocations,
		Hashlinks:       s.hashlinks,
	}, WithLogger(s.logger))
	s.Require().NoError(err)
	return v
}

// assertSingleTrailingFailure checks that a log holds at most one failure and
// that it is the last entry.
func (s *VerifierSuite) assertSingleTrailingFailure(log []models.StepStatus) {
	failures := 0
	for i, entry := range log {
		if entry.Status == models.StatusFailure {
			failures++
			s.Equal(len(log)-1, i, "failure must be the last log entry")
		}
	}
	s.LessOrEqual(failures, 1)
}

func (s *VerifierSuite) TestParseProofType() {
	s.Run("v3 proof block", func() {
		built := buildDocument(s.T(), docFixture{proofType: merkleproof2019.Type, anchor: testMocknetBlink})
		pt, err := ParseProofType(built.doc)
		s.Require().NoError(err)
		s.Equal(ProofMerkle2019, pt)
	})

	s.Run("v2 signature block", func() {
		built := buildDocument(s.T(), docFixture{proofType: merkleproof2017.Type, anchor: "bitcoinTestnet"})
		pt, err := ParseProofType(built.doc)
		s.Require().NoError(err)
		s.Equal(ProofMerkle2017, pt)
	})

	s.Run("unknown type is rejected before any step runs", func() {
		built := buildDocument(s.T(), docFixture{proofType: "Ed25519Signature2020"})
		_, err := ParseProofType(built.doc)
		s.True(models.IsKind(err, models.KindUnsupportedProofType))

		_, err = New(Config{Document: built.doc, Issuer: keyedIssuer()})
		s.True(models.IsKind(err, models.KindUnsupportedProofType))
	})
}

func (s *VerifierSuite) TestStepModel() {
	s.Run("mocknet without identity binding", func() {
		built := buildDocument(s.T(), docFixture{proofType: merkleproof2019.Type, anchor: testMocknetBlink})
		v := s.newVerifier(built, keyedIssuer())

		visible := v.Steps()
		s.Require().Len(visible, 2)
		s.Equal(steps.ProofVerification, visible[0].Code)
		s.Equal(steps.StatusCheck, visible[1].Code)
		s.Equal([]steps.Code{steps.ComputeLocalHash, steps.CompareHashes, steps.CheckReceipt}, substepCodes(visible[0]))
		s.Equal([]steps.Code{steps.CheckImagesIntegrity, steps.CheckRevokedStatus, steps.CheckExpiresDate}, v.Process())
	})

	s.Run("real chain with identity binding", func() {
		built := buildDocument(s.T(), docFixture{
			proofType: merkleproof2019.Type, anchor: testTestnetBlink, verificationMethod: testMethod,
		})
		v := s.newVerifier(built, didIssuer("#key-1"))

		visible := v.Steps()
		s.Require().Len(visible, 3)
		s.Equal(steps.IdentityVerification, visible[1].Code)
		s.Equal([]steps.Code{steps.ControlVerificationMethod, steps.CompareIssuingAddress}, substepCodes(visible[1]))
		s.NotContains(substepCodes(visible[0]), steps.GetIssuerProfile)
		s.Contains(v.Process(), steps.ControlVerificationMethod)

		for _, step := range visible {
			s.NotEmpty(step.Substeps)
		}
	})
}

func (s *VerifierSuite) TestVerifyMocknetSuccess() {
	built := buildDocument(s.T(), docFixture{
		proofType: merkleproof2019.Type, anchor: testMocknetBlink, expires: "2030-01-01T00:00:00Z",
	})
	v := s.newVerifier(built, keyedIssuer())

	s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), built.doc).Return(nil)
	s.revocations.EXPECT().RevokedAssertions(gomock.Any(), testRevokedURL, testDocumentID).
		Return([]string{"urn:uuid:other"}, nil)

	rec := &statusRecorder{}
	out := v.Run(s.ctx, rec.record)

	s.Equal(models.StatusSuccess, out.Verdict.Status)
	s.Equal(steps.Final, out.Verdict.Code)
	s.Equal(messageMocknet, out.Verdict.Message)
	s.Equal([]string{
		"computeLocalHash", "compareHashes", "checkReceipt",
		"checkImagesIntegrity", "checkRevokedStatus", "checkExpiresDate",
	}, rec.codes(models.StatusSuccess))
	s.Equal(rec.codes(models.StatusStarting), rec.codes(models.StatusSuccess))
	s.Len(out.Log, 6)
	s.Equal("Computing local hash", out.Log[0].Label)
}

func (s *VerifierSuite) TestVerifyAlteredHashFails() {
	built := buildDocument(s.T(), docFixture{
		proofType: merkleproof2019.Type, anchor: testMocknetBlink, alterTargetHash: true,
	})
	v := s.newVerifier(built, keyedIssuer())

	rec := &statusRecorder{}
	out := v.Run(s.ctx, rec.record)

	s.Equal(models.StatusFailure, out.Verdict.Status)
	s.Equal("Computed hash does not match remote hash", out.Verdict.Message)
	s.Equal([]string{"compareHashes"}, rec.codes(models.StatusFailure))
	s.False(rec.seen("checkReceipt"))
	s.False(rec.seen("checkExpiresDate"))
	s.False(rec.seen("checkRevokedStatus"))
	s.Len(out.Log, 2)
	s.assertSingleTrailingFailure(out.Log)
}

func (s *VerifierSuite) TestFailFastSkipsLaterOperations() {
	built := buildDocument(s.T(), docFixture{
		proofType: merkleproof2019.Type, anchor: testMocknetBlink, expires: "2020-01-01T00:00:00Z",
	})

	s.Run("revoked document stops before the expiry check", func() {
		v := s.newVerifier(built, keyedIssuer())
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)
		s.revocations.EXPECT().RevokedAssertions(gomock.Any(), testRevokedURL, testDocumentID).
			Return([]string{testDocumentID}, nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusFailure, out.Verdict.Status)
		s.Equal("This certificate has been revoked by the issuer.", out.Verdict.Message)
		s.False(rec.seen("checkExpiresDate"))
		// three proof steps, images, then the failing revocation step
		s.Len(out.Log, 5)
		s.assertSingleTrailingFailure(out.Log)
	})

	s.Run("revocation list fetch error fails the tracked step", func() {
		v := s.newVerifier(built, keyedIssuer())
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)
		s.revocations.EXPECT().RevokedAssertions(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("connection refused"))

		out := v.Run(s.ctx, nil)

		s.Equal(models.StatusFailure, out.Verdict.Status)
		s.Equal("Unable to retrieve the revocation list of the issuer.", out.Verdict.Message)
		s.Equal(steps.CheckRevokedStatus, out.Log[len(out.Log)-1].Code)
	})

	s.Run("expired document fails the last operation", func() {
		issuer := keyedIssuer()
		issuer.RevocationList = ""
		v := s.newVerifier(built, issuer)
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusFailure, out.Verdict.Status)
		s.Equal("This certificate has expired.", out.Verdict.Message)
		s.False(rec.seen("checkRevokedStatus"), "revocation is skipped without a list url")
		s.assertSingleTrailingFailure(out.Log)
	})

	s.Run("hashlink mismatch fails the images step", func() {
		v := s.newVerifier(built, keyedIssuer())
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(errors.New("digest mismatch"))

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal([]string{"checkImagesIntegrity"}, rec.codes(models.StatusFailure))
		s.False(rec.seen("checkRevokedStatus"))
		s.Len(out.Log, 4)
	})
}

func (s *VerifierSuite) TestVerifyMerkleProof2017OnChain() {
	built := buildDocument(s.T(), docFixture{proofType: merkleproof2017.Type, anchor: "bitcoinTestnet"})
	txTime := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("all proof steps pass", func() {
		v := s.newVerifier(built, keyedIssuer())
		chain, ok := v.Chain()
		s.Require().True(ok)
		s.Equal("testnet", chain.Code)

		s.transactions.EXPECT().LookupTransaction(gomock.Any(), chain, testTxID).Return(&models.TransactionData{
			RemoteHash: built.merkleRoot, IssuingAddress: testIssuingAddr, Time: txTime,
		}, nil)
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)
		s.revocations.EXPECT().RevokedAssertions(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := v.IssuerPublicKey()
		s.Error(err, "the issuing address is only known once the transaction is fetched")

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusSuccess, out.Verdict.Status, out.Verdict.Message)
		s.Equal(messageChain, out.Verdict.Message)
		s.Equal([]string{
			"getTransactionId", "computeLocalHash", "fetchRemoteHash", "getIssuerProfile", "parseIssuerKeys",
			"compareHashes", "checkMerkleRoot", "checkReceipt", "checkAuthenticity",
			"checkImagesIntegrity", "checkRevokedStatus", "checkExpiresDate",
		}, rec.codes(models.StatusSuccess))

		key, err := v.IssuerPublicKey()
		s.Require().NoError(err)
		s.Equal(testIssuingAddr, key)

		runKey, err := out.Suite.IssuerPublicKey()
		s.Require().NoError(err)
		s.Equal(key, runKey)

		link, ok := v.TransactionLink()
		s.True(ok)
		s.Equal("https://testnet.blockchain.info/tx/"+testTxID, link)
	})

	s.Run("spent revocation output revokes the document", func() {
		v := s.newVerifier(built, keyedIssuer())
		s.Equal("k1", v.RevocationKey())
		s.transactions.EXPECT().LookupTransaction(gomock.Any(), gomock.Any(), testTxID).Return(&models.TransactionData{
			RemoteHash: built.merkleRoot, IssuingAddress: testIssuingAddr, Time: txTime,
			RevokedAddresses: []string{"k1"},
		}, nil)
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusFailure, out.Verdict.Status)
		s.Equal("This certificate has been revoked by the issuer.", out.Verdict.Message)
		s.Equal([]string{"checkRevokedStatus"}, rec.codes(models.StatusFailure))
		s.assertSingleTrailingFailure(out.Log)
	})

	s.Run("spent outputs are checked without a revocation list", func() {
		issuer := keyedIssuer()
		issuer.RevocationList = ""
		v := s.newVerifier(built, issuer)
		s.transactions.EXPECT().LookupTransaction(gomock.Any(), gomock.Any(), testTxID).Return(&models.TransactionData{
			RemoteHash: built.merkleRoot, IssuingAddress: testIssuingAddr, Time: txTime,
			RevokedAddresses: []string{"1Change"},
		}, nil)
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusSuccess, out.Verdict.Status, out.Verdict.Message)
		s.True(rec.seen("checkRevokedStatus"))
	})

	s.Run("unknown issuing address fails authenticity", func() {
		v := s.newVerifier(built, keyedIssuer())
		s.transactions.EXPECT().LookupTransaction(gomock.Any(), gomock.Any(), testTxID).Return(&models.TransactionData{
			RemoteHash: built.merkleRoot, IssuingAddress: "1SomeoneElse", Time: txTime,
		}, nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal([]string{"checkAuthenticity"}, rec.codes(models.StatusFailure))
		s.False(rec.seen("checkImagesIntegrity"))
		s.assertSingleTrailingFailure(out.Log)
	})

	s.Run("explorer error fails fetchRemoteHash", func() {
		v := s.newVerifier(built, keyedIssuer())
		s.transactions.EXPECT().LookupTransaction(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("explorer unavailable"))

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal("Unable to get remote hash: explorer unavailable", out.Verdict.Message)
		s.Equal([]string{"getTransactionId", "computeLocalHash"}, rec.codes(models.StatusSuccess))
		s.Len(out.Log, 3)
	})
}

func (s *VerifierSuite) TestVerifyIdentityBinding() {
	txTime := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	built := buildDocument(s.T(), docFixture{
		proofType: merkleproof2019.Type, anchor: testTestnetBlink, verificationMethod: testMethod,
	})

	s.Run("authorized method and matching address", func() {
		v := s.newVerifier(built, didIssuer("#key-1"))
		s.transactions.EXPECT().LookupTransaction(gomock.Any(), gomock.Any(), testTxID).Return(&models.TransactionData{
			RemoteHash: built.merkleRoot, IssuingAddress: testIssuingAddr, Time: txTime,
		}, nil)
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)
		s.revocations.EXPECT().RevokedAssertions(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusSuccess, out.Verdict.Status, out.Verdict.Message)
		successes := rec.codes(models.StatusSuccess)
		s.Equal("controlVerificationMethod", successes[len(successes)-2])
		s.Equal("compareIssuingAddress", successes[len(successes)-1])
	})

	s.Run("unauthorized method skips the identity suite step", func() {
		v := s.newVerifier(built, didIssuer("#key-2"))
		s.transactions.EXPECT().LookupTransaction(gomock.Any(), gomock.Any(), testTxID).Return(&models.TransactionData{
			RemoteHash: built.merkleRoot, IssuingAddress: testIssuingAddr, Time: txTime,
		}, nil)
		s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil)
		s.revocations.EXPECT().RevokedAssertions(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

		rec := &statusRecorder{}
		out := v.Run(s.ctx, rec.record)

		s.Equal(models.StatusFailure, out.Verdict.Status)
		s.Equal([]string{"controlVerificationMethod"}, rec.codes(models.StatusFailure))
		s.False(rec.seen("compareIssuingAddress"))
		s.assertSingleTrailingFailure(out.Log)
	})
}

func (s *VerifierSuite) TestConcurrentRunsAreIndependent() {
	built := buildDocument(s.T(), docFixture{proofType: merkleproof2019.Type, anchor: testMocknetBlink})
	v := s.newVerifier(built, keyedIssuer())

	s.hashlinks.EXPECT().VerifyHashlinks(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.revocations.EXPECT().RevokedAssertions(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	const runs = 8
	var wg sync.WaitGroup
	outcomes := make([]*Outcome, runs)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = v.Run(s.ctx, nil)
		}(i)
	}
	wg.Wait()

	for _, out := range outcomes {
		s.Equal(models.StatusSuccess, out.Verdict.Status)
		s.Len(out.Log, 6)
	}
}

func (s *VerifierSuite) TestGetterPassthrough() {
	built := buildDocument(s.T(), docFixture{
		proofType: merkleproof2019.Type, anchor: testTestnetBlink, verificationMethod: testMethod,
	})
	v := s.newVerifier(built, keyedIssuer())

	name, err := v.IssuerName()
	s.Require().NoError(err)
	s.Equal("Example University", name)

	domain, err := v.IssuerProfileDomain()
	s.Require().NoError(err)
	s.Equal("issuer.example.org", domain)

	date, err := v.SigningDate()
	s.Require().NoError(err)
	s.Equal("2022-01-01T00:00:00Z", date)

	txID, ok := v.TransactionID()
	s.True(ok)
	s.Equal(testTxID, txID)

	s.Equal("k1", v.RevocationKey())
	s.Equal(testDocumentID, v.DocumentID())
}

func substepCodes(step steps.Step) []steps.Code {
	out := make([]steps.Code, 0, len(step.Substeps))
	for _, sub := range step.Substeps {
		out = append(out, sub.Code)
	}
	return out
}
