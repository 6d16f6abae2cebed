// Package health exposes liveness and readiness endpoints. Liveness is
// always OK while the process runs; readiness runs the registered checks on
// demand and also honours an explicit ready flag flipped during startup and
// shutdown.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Check probes one dependency. It must return quickly and respect ctx.
type Check func(ctx context.Context) error

const checkTimeout = 5 * time.Second

// Handler serves /livez and /readyz.
type Handler struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[string]Check
}

func NewHandler() *Handler {
	return &Handler{checks: make(map[string]Check)}
}

// AddCheck registers a named readiness check.
func (h *Handler) AddCheck(name string, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// SetReady flips the explicit readiness gate. The server marks itself not
// ready before draining connections so load balancers stop sending traffic.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Routes registers the probe endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /livez", h.livez)
	mux.HandleFunc("GET /readyz", h.readyz)
}

func (h *Handler) livez(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	results := make(map[string]string)
	healthy := true

	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	for name, c := range checks {
		if err := c(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, results)
}

func writeStatus(w http.ResponseWriter, code int, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		for k, v := range fields {
			e.Field(k, func(e *jx.Encoder) { e.Str(v) })
		}
	})
	_, _ = w.Write(e.Bytes())
}
