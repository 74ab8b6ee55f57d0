package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"certverify/internal/verifier/canonical"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/suite/merkleproof2017"
	"certverify/internal/verifier/suite/merkleproof2019"
	"certverify/pkg/testutil"
)

const (
	testDocumentID   = "urn:uuid:bbba8553-8ec1-445f-82c9-a57251dd731c"
	testIssuerURL    = "https://issuer.example.org/profile.json"
	testRevokedURL   = "https://issuer.example.org/revocation.json"
	testIssuingAddr  = "mgdWjvq4RYAAP5goUNagTRMx7Xw534S5am"
	testTxID         = "2378076e8e140012814e98a2b2cb1af07ec760b239c1d6d93ba54d658a010ecd"
	testDID          = "did:example:issuer"
	testMethod       = "did:example:issuer#key-1"
	testMocknetBlink = "blink:mock:mocknet:" + testTxID
	testTestnetBlink = "blink:btc:testnet:" + testTxID
)

type docFixture struct {
	proofType string
	// blink anchor for MerkleProof2019, chain signature for MerkleProof2017
	anchor             string
	expires            string
	verificationMethod string
	alterTargetHash    bool
}

type builtDocument struct {
	doc        *models.Document
	merkleRoot string
}

func buildDocument(t *testing.T, f docFixture) builtDocument {
	t.Helper()

	unsigned := map[string]any{
		"@context":          []any{canonical.CredentialsV1, testutil.CredentialTerms()},
		"id":                testDocumentID,
		"type":              []any{"VerifiableCredential", "BlockcertsCredential"},
		"issuer":            testIssuerURL,
		"issuanceDate":      "2022-01-01T00:00:00Z",
		"credentialSubject": map[string]any{"id": "did:example:holder", "name": "Ada Lovelace"},
	}
	if f.expires != "" {
		unsigned["expires"] = f.expires
	}

	localHash := hashOf(t, unsigned)
	sibling := sha256.Sum256([]byte("sibling leaf"))
	target, err := hex.DecodeString(localHash)
	require.NoError(t, err)
	root := sha256.Sum256(append(append([]byte{}, sibling[:]...), target...))

	targetHash := localHash
	if f.alterTargetHash {
		altered := sha256.Sum256([]byte("another document"))
		targetHash = hex.EncodeToString(altered[:])
	}

	receipt := models.Receipt{
		TargetHash: targetHash,
		MerkleRoot: hex.EncodeToString(root[:]),
		Path:       []models.ProofNode{{Left: hex.EncodeToString(sibling[:])}},
	}

	signed := make(map[string]any, len(unsigned)+1)
	for k, v := range unsigned {
		signed[k] = v
	}

	switch f.proofType {
	case merkleproof2019.Type:
		receipt.Anchors = []models.Anchor{models.StringAnchor(f.anchor)}
		value, err := merkleproof2019.EncodeProofValue(receipt)
		require.NoError(t, err)
		signed["proof"] = map[string]any{
			"type":               merkleproof2019.Type,
			"created":            "2022-01-01T00:00:00Z",
			"proofValue":         value,
			"proofPurpose":       "assertionMethod",
			"verificationMethod": f.verificationMethod,
		}
	case merkleproof2017.Type:
		signed["signature"] = map[string]any{
			"type":       []any{merkleproof2017.Type, "Extension"},
			"targetHash": receipt.TargetHash,
			"merkleRoot": receipt.MerkleRoot,
			"proof":      []any{map[string]any{"left": receipt.Path[0].Left}},
			"anchors": []any{map[string]any{
				"sourceId": testTxID,
				"type":     "BTCOpReturn",
				"chain":    f.anchor,
			}},
		}
	default:
		signed["proof"] = map[string]any{"type": f.proofType}
	}

	raw, err := json.Marshal(signed)
	require.NoError(t, err)
	doc, err := models.ParseDocument(raw)
	require.NoError(t, err)
	return builtDocument{doc: doc, merkleRoot: receipt.MerkleRoot}
}

func hashOf(t *testing.T, v map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	doc, err := models.ParseDocument(raw)
	require.NoError(t, err)
	h, err := canonical.LocalHash(doc.Raw)
	require.NoError(t, err)
	return h
}

func keyedIssuer() *models.Issuer {
	return &models.Issuer{
		ID:             testIssuerURL,
		Name:           "Example University",
		URL:            "https://www.example.org",
		RevocationList: testRevokedURL,
		RevocationKeys: []models.RevocationKey{{Key: "k1"}},
		PublicKey: []models.IssuerKey{{
			ID:      "ecdsa-koblitz-pubkey:" + testIssuingAddr,
			Created: "2017-01-01T00:00:00Z",
		}},
	}
}

func didIssuer(authorized string) *models.Issuer {
	iss := keyedIssuer()
	iss.ID = testDID
	iss.DIDDocument = &models.DIDDocument{
		ID: testDID,
		VerificationMethod: []models.VerificationMethod{{
			ID:                  "#key-1",
			Type:                "EcdsaSecp256k1RecoveryMethod2020",
			BlockchainAccountID: "bip122:000000000933ea01ad0ee984209779ba:" + testIssuingAddr,
		}},
		AssertionMethod: []models.MethodRef{{ID: authorized}},
	}
	return iss
}

// statusRecorder collects the callback stream of a run.
type statusRecorder struct {
	updates []models.StepStatus
}

func (r *statusRecorder) record(s models.StepStatus) {
	r.updates = append(r.updates, s)
}

func (r *statusRecorder) codes(status models.Status) []string {
	var out []string
	for _, u := range r.updates {
		if u.Status == status {
			out = append(out, u.Code.String())
		}
	}
	return out
}

func (r *statusRecorder) seen(code string) bool {
	for _, u := range r.updates {
		if u.Code.String() == code {
			return true
		}
	}
	return false
}
