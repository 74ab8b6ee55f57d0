package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"certverify/internal/verifier/canonical"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/suite/merkleproof2019"
)

// MocknetTxID is the transaction id anchored by MocknetCredential.
const MocknetTxID = "e2e2d1a5cd4ab30bcbb31dd6e8bc6f4e0e0f6c2f07e1ad8a4aa1c7c5d1b2e3f4"

// CredentialTerms is an inline JSON-LD context defining the terms fixture
// credentials use beyond the Verifiable Credentials context, so they hash
// without network access.
func CredentialTerms() map[string]any {
	const xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
	return map[string]any{
		"BlockcertsCredential": "https://w3id.org/blockcerts#BlockcertsCredential",
		"name":                 "http://schema.org/name",
		"url":                  map[string]any{"@id": "http://schema.org/url", "@type": "@id"},
		"email":                "http://schema.org/email",
		"image":                map[string]any{"@id": "http://schema.org/image", "@type": "@id"},
		"publicKey":            map[string]any{"@id": "https://w3id.org/security#publicKey", "@type": "@id"},
		"created":              map[string]any{"@id": "http://purl.org/dc/terms/created", "@type": xsdDateTime},
		"expires":              map[string]any{"@id": "https://w3id.org/security#expiration", "@type": xsdDateTime},
	}
}

// MocknetCredential returns a Blockcerts v3 credential anchored on mocknet
// whose receipt matches its content, so every proof step passes offline.
// mutate, if set, edits the unsigned document before it is hashed.
func MocknetCredential(t testing.TB, mutate func(doc map[string]any)) []byte {
	t.Helper()

	doc := map[string]any{
		"@context":          []any{canonical.CredentialsV1, CredentialTerms()},
		"id":                "urn:uuid:bbba8553-8ec1-445f-82c9-a57251dd731c",
		"type":              []any{"VerifiableCredential", "BlockcertsCredential"},
		"issuer":            "https://issuer.example.org/profile.json",
		"issuanceDate":      "2022-01-01T00:00:00Z",
		"credentialSubject": map[string]any{"id": "did:example:holder", "name": "Ada Lovelace"},
	}
	if mutate != nil {
		mutate(doc)
	}

	hash := localHash(t, doc)
	value, err := merkleproof2019.EncodeProofValue(models.Receipt{
		TargetHash: hash,
		MerkleRoot: hash,
		Anchors:    []models.Anchor{models.StringAnchor("blink:mock:mocknet:" + MocknetTxID)},
	})
	require.NoError(t, err)

	doc["proof"] = map[string]any{
		"type":               merkleproof2019.Type,
		"created":            "2022-01-01T00:00:00Z",
		"proofValue":         value,
		"proofPurpose":       "assertionMethod",
		"verificationMethod": "https://issuer.example.org/profile.json#key-1",
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

// EmbeddedIssuer is a MocknetCredential mutation that inlines a keyed issuer
// profile, so verification needs no issuer lookup.
func EmbeddedIssuer(doc map[string]any) {
	doc["issuer"] = map[string]any{
		"id":   "https://issuer.example.org/profile.json",
		"name": "Example University",
		"publicKey": []any{map[string]any{
			"id":      "ecdsa-koblitz-pubkey:mgdWjvq4RYAAP5goUNagTRMx7Xw534S5am",
			"created": "2017-01-01T00:00:00Z",
		}},
	}
}

// TamperedMocknetCredential is MocknetCredential with its subject edited
// after signing.
func TamperedMocknetCredential(t testing.TB) []byte {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(MocknetCredential(t, nil), &doc))
	doc["credentialSubject"] = map[string]any{"id": "did:example:holder", "name": "Mallory"}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func localHash(t testing.TB, doc map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	parsed, err := models.ParseDocument(raw)
	require.NoError(t, err)
	h, err := canonical.LocalHash(parsed.Raw)
	require.NoError(t, err)
	return h
}
