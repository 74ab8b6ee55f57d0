// Package tracer is a small tracing abstraction over OpenTelemetry.
//
// Verification steps and collaborator fetches open spans through the Tracer
// interface; tests use NoopTracer, servers use OTelTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanVerifyStep, tracer.String(tracer.AttrStep, "checkReceipt"))
//	defer span.End(err)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to a span.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashDocumentID shortens a credential id for span attributes.
func HashDocumentID(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

const (
	SpanVerify      = "verifier.verify"
	SpanVerifyStep  = "verifier.step"
	SpanHTTPFetch   = "lookup.fetch"
	SpanExplorerTx  = "lookup.explorer.transaction"
	SpanHashlinkGet = "lookup.hashlink"
)

const (
	AttrStep       = "verifier.step"
	AttrStatus     = "verifier.status"
	AttrProofType  = "verifier.proof_type"
	AttrDocumentID = "verifier.document_id"
	AttrURL        = "http.url"
	AttrChain      = "chain"
	AttrExplorer   = "explorer"
	AttrCacheHit   = "cache.hit"
)
