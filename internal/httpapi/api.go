// Package httpapi is the HTTP surface of the licensing service. It owns
// routing, authentication, and the mapping from domain errors to stable
// wire-level codes; all business behavior lives in the licensing service.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"licentia.dev/internal/auth"
	"licentia.dev/internal/licensing"
	"licentia.dev/internal/obs"
	"licentia.dev/internal/stream"
)

// ReadyProbe reports readiness, pinging the read-model when configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	resolver   auth.Resolver
	service    *licensing.Service
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string

	// Party the backend acts as when submitting contracts.
	providerParty string

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, resolver auth.Resolver, svc *licensing.Service, events *stream.Stream, providerParty string) *API {
	a := &API{
		mux:           http.NewServeMux(),
		resolver:      resolver,
		service:       svc,
		stream:        events,
		readyProbe:    rp,
		version:       version,
		providerParty: providerParty,
		rateBurst:     50,
		ratePerSec:    25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// licensing operations; exact patterns win over the /v1/licenses/ prefix
	a.mux.HandleFunc("/v1/licenses", a.handleLicensesCollection)
	a.mux.HandleFunc("/v1/licenses/renew", a.handleRenew)
	a.mux.HandleFunc("/v1/licenses/events", a.Stream)
	a.mux.HandleFunc("/v1/licenses/", a.handleLicenseResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. Metrics wrap
// everything so rejected requests are counted too.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "licentia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "licentia-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
