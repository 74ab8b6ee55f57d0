package testutil

import (
	"net/http"
	"time"

	"certverify/pkg/requestcontext"
)

// WithSubject simulates the auth middleware for an authenticated caller.
func WithSubject(req *http.Request, subject string) *http.Request {
	return req.WithContext(requestcontext.WithSubject(req.Context(), subject))
}

// WithRequestTime pins the request-scoped "now".
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithClient injects client metadata as the metadata middleware would.
func WithClient(req *http.Request, ip, userAgent, clientName string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent, clientName))
}
