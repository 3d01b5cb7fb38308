package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"licentia.dev/internal/audit"
	"licentia.dev/internal/auth"
	"licentia.dev/internal/domain"
	"licentia.dev/internal/licensing"
	"licentia.dev/internal/obs"
)

// scopeWrite allows license mutations for federated callers that are not
// full admins.
const scopeWrite = "licensing:write"

type listLicensesResponse struct {
	Items  []licensing.License `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (a *API) handleLicensesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createLicense(w, r)
	case http.MethodGet:
		a.listLicenses(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRenew(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.renewLicense(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleLicenseResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/licenses/")
	if id == "" || strings.Contains(id, "/") {
		writeDomainError(w, r, domain.NotFound("resource", r.URL.Path))
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getLicense(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) createLicense(w http.ResponseWriter, r *http.Request) {
	if derr := a.requireWriteScope(r); derr != nil {
		writeDomainError(w, r, derr)
		return
	}

	var req licensing.CreateLicenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, domain.Validation(err.Error()))
		return
	}

	res := a.service.CreateLicense(r.Context(), a.partyFor(r), req)
	if !res.IsOk() {
		writeDomainError(w, r, res.Err())
		return
	}

	l := res.Value()
	w.Header().Set("Location", "/v1/licenses/"+l.ContractID)
	writeJSON(w, http.StatusCreated, l)
}

func (a *API) renewLicense(w http.ResponseWriter, r *http.Request) {
	if derr := a.requireWriteScope(r); derr != nil {
		writeDomainError(w, r, derr)
		return
	}

	var req licensing.RenewLicenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, domain.Validation(err.Error()))
		return
	}

	res := a.service.RenewLicense(r.Context(), req)
	if !res.IsOk() {
		writeDomainError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, res.Value())
}

func (a *API) getLicense(w http.ResponseWriter, r *http.Request, id string) {
	res := a.service.GetLicense(r.Context(), id)
	if !res.IsOk() {
		writeDomainError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, res.Value())
}

func (a *API) listLicenses(w http.ResponseWriter, r *http.Request) {
	q, derr := parseLicenseQuery(r)
	if derr != nil {
		writeDomainError(w, r, derr)
		return
	}

	res := a.service.QueryLicenses(r.Context(), q)
	if !res.IsOk() {
		writeDomainError(w, r, res.Err())
		return
	}

	limit := q.Limit
	if limit <= 0 {
		limit = licensing.DefaultQueryLimit
	}
	items := res.Value()
	if items == nil {
		items = []licensing.License{}
	}
	writeJSON(w, http.StatusOK, listLicensesResponse{
		Items:  items,
		Limit:  limit,
		Offset: q.Offset,
	})
}

func parseLicenseQuery(r *http.Request) (licensing.Query, *domain.Error) {
	values := r.URL.Query()
	q := licensing.Query{
		UserID:    strings.TrimSpace(values.Get("userId")),
		ProductID: strings.TrimSpace(values.Get("productId")),
	}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		switch licensing.Status(raw) {
		case licensing.StatusActive, licensing.StatusExpired, licensing.StatusRevoked:
			q.Status = licensing.Status(raw)
		default:
			return licensing.Query{}, domain.Validation("status must be one of active, expired, revoked")
		}
	}

	limit, err := parseBoundedInt(values.Get("limit"), licensing.DefaultQueryLimit, 1, 200)
	if err != nil {
		return licensing.Query{}, domain.Validation("limit must be an integer between 1 and 200")
	}
	q.Limit = limit

	offset, err := parseBoundedInt(values.Get("offset"), 0, 0, 1<<30)
	if err != nil {
		return licensing.Query{}, domain.Validation("offset must be a non-negative integer")
	}
	q.Offset = offset

	return q, nil
}

func parseBoundedInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if val < min || val > max {
		return 0, errors.New("out of range")
	}
	return val, nil
}

// partyFor resolves the party contracts are submitted under: the configured
// provider party, or the caller's own party when none is configured.
func (a *API) partyFor(r *http.Request) string {
	if a.providerParty != "" {
		return a.providerParty
	}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		return id.Party
	}
	return ""
}

func (a *API) requireWriteScope(r *http.Request) *domain.Error {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// No resolver configured (dev mode without auth): allow.
		if a.resolver == nil {
			return nil
		}
		return domain.Unauthenticated("")
	}
	return auth.Authorize(id, auth.ScopeAdmin, scopeWrite)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// writeDomainError renders the stable error contract: code, message,
// request id. Messages of unclassified 5xx failures are replaced with a
// generic one; the cause goes to the log instead.
func writeDomainError(w http.ResponseWriter, r *http.Request, e *domain.Error) {
	msg := e.Message
	if e.Status >= http.StatusInternalServerError && !e.Public() {
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "request_failed",
			"code":       e.Code,
			"error":      e.Error(),
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		})
		msg = "internal error"
	}
	payload := map[string]any{
		"error": msg,
		"code":  e.Code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, e.Status, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": "method not allowed",
	})
}

// RequestIDFromContext re-exports the audit package's accessor so handlers
// and middleware share one id.
func RequestIDFromContext(ctx context.Context) string {
	return audit.RequestIDFromContext(ctx)
}
