package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/piprate/json-gold/ld"

	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
)

// TransactionLookup fetches the anchoring transaction of a proof.
// This port keeps suites independent of the explorer APIs and their transports.
type TransactionLookup interface {
	// LookupTransaction returns the data recorded on chain for txID
	LookupTransaction(ctx context.Context, chain chains.Chain, txID string) (*models.TransactionData, error)
}

// IssuerProfileFetcher retrieves an issuer profile document by URL.
type IssuerProfileFetcher interface {
	FetchIssuerProfile(ctx context.Context, url string) (*models.Issuer, error)
}

// RevocationListFetcher retrieves the ids of assertions an issuer revoked.
type RevocationListFetcher interface {
	// RevokedAssertions returns the revoked ids listed at url. documentID is
	// passed along for issuers serving per-assertion lookups.
	RevokedAssertions(ctx context.Context, url, documentID string) ([]string, error)
}

// HashlinkVerifier checks embedded resources against their hashlinks.
// It is an integrity oracle: an error means at least one resource did not match.
type HashlinkVerifier interface {
	VerifyHashlinks(ctx context.Context, doc *models.Document) error
}

// ContextLoader resolves the JSON-LD contexts a document references when its
// local hash is computed. It has the method set of ld.DocumentLoader; the
// processor calls it without a context, so implementations bound their own
// I/O.
type ContextLoader interface {
	LoadDocument(url string) (*ld.RemoteDocument, error)
}
