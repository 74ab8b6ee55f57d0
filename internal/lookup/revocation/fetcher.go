// Package revocation retrieves issuer revocation lists.
package revocation

import (
	"context"
	"fmt"
	"net/url"

	"certverify/internal/lookup/httpfetch"
	platformstrings "certverify/pkg/platform/strings"
)

// List is the revocation list document served by an issuer.
type List struct {
	ID                string             `json:"id,omitempty"`
	RevokedAssertions []RevokedAssertion `json:"revokedAssertions"`
}

type RevokedAssertion struct {
	ID               string `json:"id"`
	RevocationReason string `json:"revocationReason,omitempty"`
}

// Fetcher implements ports.RevocationListFetcher.
type Fetcher struct {
	client *httpfetch.Client
}

func NewFetcher(client *httpfetch.Client) *Fetcher {
	return &Fetcher{client: client}
}

// RevokedAssertions returns the revoked ids listed at listURL. The document id
// is sent as the assertionId query parameter so issuers can serve a filtered
// list; static lists ignore it. Lists are always fetched fresh, never from the
// fetch cache.
func (f *Fetcher) RevokedAssertions(ctx context.Context, listURL, documentID string) ([]string, error) {
	target, err := withAssertionID(listURL, documentID)
	if err != nil {
		return nil, err
	}

	var list List
	if err := f.client.GetJSONFresh(ctx, target, &list); err != nil {
		return nil, fmt.Errorf("fetch revocation list: %w", err)
	}

	ids := make([]string, 0, len(list.RevokedAssertions))
	for _, a := range list.RevokedAssertions {
		ids = append(ids, a.ID)
	}
	return platformstrings.DedupeAndTrim(ids), nil
}

func withAssertionID(listURL, documentID string) (string, error) {
	u, err := url.Parse(listURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("revocation list url %q is invalid", listURL)
	}
	if documentID == "" {
		return listURL, nil
	}
	q := u.Query()
	q.Set("assertionId", documentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
