// Package models holds the rate limit decision types shared by the bucket
// stores and the HTTP middleware.
package models

import (
	"strings"
	"time"
)

// Limit is a request budget over a sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the API response when a caller is over budget.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// SanitizeKeySegment escapes the key delimiter so an identifier such as
// "client:admin" cannot address another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// SubjectKey buckets authenticated callers by token subject.
func SubjectKey(subject string) string {
	return "rl:sub:" + SanitizeKeySegment(subject)
}

// IPKey buckets anonymous callers by client address.
func IPKey(ip string) string {
	return "rl:ip:" + SanitizeKeySegment(ip)
}

// RetryAfterSeconds rounds the wait until resetAt up to whole seconds, at
// least one.
func RetryAfterSeconds(now, resetAt time.Time) int {
	wait := resetAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
