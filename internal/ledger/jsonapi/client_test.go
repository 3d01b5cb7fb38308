package jsonapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"licentia.dev/internal/ledger"
)

const licenseTemplate = ledger.TemplateID("Quickstart.Licensing:License")

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token", "provider::1220ab", srv.Client())
}

func TestCreateSubmitsAndReturnsContractID(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody createRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 200,
			"result": map[string]any{"contractId": "00abc", "templateId": licenseTemplate},
		})
	})

	res := c.Create(context.Background(), licenseTemplate, json.RawMessage(`{"user":"u1"}`))
	if !res.IsOk() {
		t.Fatalf("create: %v", res.Err())
	}
	if res.Value() != "00abc" {
		t.Fatalf("contract id = %s", res.Value())
	}
	if gotPath != "/v1/create" || gotAuth != "Bearer test-token" {
		t.Fatalf("request: path=%s auth=%s", gotPath, gotAuth)
	}
	if gotBody.TemplateID != licenseTemplate || gotBody.CommandID == "" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestExerciseCollectsSuccessors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 200,
			"result": map[string]any{
				"exerciseResult": "00new",
				"events": []map[string]any{
					{"archived": map[string]any{"contractId": "00old"}},
					{"created": map[string]any{
						"contractId": "00new",
						"templateId": licenseTemplate,
						"payload":    map[string]any{"user": "u1"},
					}},
				},
			},
		})
	})

	res := c.Exercise(context.Background(), licenseTemplate, "Renew", "00old", json.RawMessage(`{"additionalDays":30}`))
	if !res.IsOk() {
		t.Fatalf("exercise: %v", res.Err())
	}
	succ, ok := res.Value().FirstCreated(licenseTemplate)
	if !ok || succ.ContractID != "00new" {
		t.Fatalf("successor = %+v ok=%v", succ, ok)
	}
}

func TestFetchNullMeansAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 200, "result": nil})
	})

	res := c.Fetch(context.Background(), licenseTemplate, "00gone")
	if !res.IsOk() {
		t.Fatalf("fetch: %v", res.Err())
	}
	if res.Value() != nil {
		t.Fatal("null result must map to absence")
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		notFound   bool
	}{
		{"unauthorized", 401, `{"status":401,"errors":["invalid token"]}`, http.StatusForbidden, false},
		{"forbidden", 403, `{"status":403,"errors":["party mismatch"]}`, http.StatusForbidden, false},
		{"not found", 404, `{"status":404,"errors":["unknown contract"]}`, http.StatusNotFound, true},
		{"contract not found code", 500, `{"status":500,"errors":["CONTRACT_NOT_FOUND: stale id"]}`, http.StatusNotFound, true},
		{"internal", 500, `{"status":500,"errors":["ledger unavailable"]}`, http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			res := c.Fetch(context.Background(), licenseTemplate, "00x")
			if res.IsOk() {
				t.Fatal("expected failure")
			}
			if res.Err().Code != "LEDGER_ERROR" {
				t.Fatalf("code = %s", res.Err().Code)
			}
			if res.Err().Status != tc.wantStatus {
				t.Fatalf("status = %d, want %d", res.Err().Status, tc.wantStatus)
			}
			if tc.notFound != errors.Is(res.Err(), ledger.ErrNotFound) {
				t.Fatalf("ErrNotFound mismatch: %v", res.Err())
			}
		})
	}
}

func TestTransportFailureIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	c := New(srv.URL, "t", "p", nil)
	res := c.Query(context.Background(), licenseTemplate)
	if res.IsOk() {
		t.Fatal("expected failure")
	}
	if res.Err().Code != "LEDGER_ERROR" || res.Err().Cause == nil {
		t.Fatalf("transport failure not wrapped: %v", res.Err())
	}
}
