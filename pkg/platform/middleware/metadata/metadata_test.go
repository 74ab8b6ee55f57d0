package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"certverify/pkg/requestcontext"
)

func TestClientMetadata(t *testing.T) {
	const chrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	tests := []struct {
		name         string
		headers      map[string]string
		remoteAddr   string
		expectedIP   string
		expectedUA   string
		expectedName string
	}{
		{
			name: "extracts from X-Forwarded-For",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.1, 198.51.100.1",
				"User-Agent":      chrome,
			},
			remoteAddr:   "192.168.1.1:12345",
			expectedIP:   "203.0.113.1",
			expectedUA:   chrome,
			expectedName: "chrome",
		},
		{
			name: "extracts from X-Real-IP when no X-Forwarded-For",
			headers: map[string]string{
				"X-Real-IP":  "203.0.113.2",
				"User-Agent": chrome,
			},
			remoteAddr:   "192.168.1.1:12345",
			expectedIP:   "203.0.113.2",
			expectedUA:   chrome,
			expectedName: "chrome",
		},
		{
			name:         "falls back to RemoteAddr",
			headers:      map[string]string{},
			remoteAddr:   "192.168.1.100:54321",
			expectedIP:   "192.168.1.100",
			expectedName: "unknown",
		},
		{
			name:         "strips IPv6 brackets",
			headers:      map[string]string{},
			remoteAddr:   "[::1]:8080",
			expectedIP:   "::1",
			expectedName: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctx context.Context
			h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				ctx = r.Context()
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expectedIP, requestcontext.ClientIP(ctx))
			assert.Equal(t, tt.expectedUA, requestcontext.UserAgent(ctx))
			assert.Equal(t, tt.expectedName, requestcontext.ClientName(ctx))
		})
	}
}

func TestClientNameFlagsBots(t *testing.T) {
	name := ClientName("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.Contains(t, name, "bot:")
}
