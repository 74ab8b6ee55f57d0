package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"certverify/pkg/platform/httputil"
)

// Health reports readiness of the process and its optional backends.
type Health struct {
	mu     sync.RWMutex
	checks map[string]func(context.Context) error
}

func NewHealth() *Health {
	return &Health{checks: make(map[string]func(context.Context) error)}
}

// Add registers a named dependency check.
func (hc *Health) Add(name string, check func(context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// ServeHTTP answers 200 when every check passes, 503 otherwise.
func (hc *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range hc.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	httputil.WriteJSON(w, status, body)
}
