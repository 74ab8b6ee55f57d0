// Package ldcontext loads JSON-LD contexts over HTTP.
package ldcontext

import (
	"context"
	"fmt"
	"time"

	"github.com/piprate/json-gold/ld"

	"certverify/internal/lookup/httpfetch"
)

// DefaultTimeout bounds one context download.
const DefaultTimeout = 10 * time.Second

// Loader implements ports.ContextLoader through the shared fetch client, so
// contexts benefit from its cache and retries.
type Loader struct {
	client  *httpfetch.Client
	timeout time.Duration
}

type Option func(*Loader)

func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func New(client *httpfetch.Client, opts ...Option) *Loader {
	l := &Loader{client: client, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDocument downloads the context document at url.
func (l *Loader) LoadDocument(url string) (*ld.RemoteDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var doc any
	if err := l.client.GetJSON(ctx, url, &doc); err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Sprintf("load context %s: %v", url, err))
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Sprintf("context %s is not a JSON object", url))
	}
	return &ld.RemoteDocument{DocumentURL: url, Document: doc}, nil
}
