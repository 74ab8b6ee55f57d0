// Package issuer retrieves issuer profiles over HTTP.
package issuer

import (
	"context"
	"fmt"
	"net/url"

	"certverify/internal/lookup/httpfetch"
	"certverify/internal/verifier/models"
)

// Fetcher implements ports.IssuerProfileFetcher.
type Fetcher struct {
	client *httpfetch.Client
}

func NewFetcher(client *httpfetch.Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchIssuerProfile downloads and decodes the profile at profileURL. A
// profile without an id inherits the URL it was served from.
func (f *Fetcher) FetchIssuerProfile(ctx context.Context, profileURL string) (*models.Issuer, error) {
	u, err := url.Parse(profileURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, fmt.Errorf("issuer profile url %q is not an http(s) url", profileURL)
	}

	var profile models.Issuer
	if err := f.client.GetJSON(ctx, profileURL, &profile); err != nil {
		return nil, fmt.Errorf("fetch issuer profile: %w", err)
	}
	if profile.ID == "" {
		profile.ID = profileURL
	}
	return &profile, nil
}
