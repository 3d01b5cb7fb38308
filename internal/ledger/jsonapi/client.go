// Package jsonapi implements ledger.Client over the ledger's HTTP JSON API.
package jsonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"licentia.dev/internal/domain"
	"licentia.dev/internal/ledger"
)

// Client talks to the JSON API on behalf of one party. The bearer token must
// be issued for that party; the API rejects mismatches.
type Client struct {
	baseURL string
	token   string
	party   string
	http    *http.Client
}

var _ ledger.Client = (*Client)(nil)

// New creates a client with sensible defaults.
func New(baseURL, token, party string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		party:   party,
		http:    httpClient,
	}
}

// Party returns the acting party this client was constructed for.
func (c *Client) Party() string { return c.party }

type createRequest struct {
	TemplateID ledger.TemplateID `json:"templateId"`
	Payload    json.RawMessage   `json:"payload"`
	CommandID  string            `json:"commandId,omitempty"`
}

type exerciseRequest struct {
	TemplateID ledger.TemplateID `json:"templateId"`
	ContractID ledger.ContractID `json:"contractId"`
	Choice     string            `json:"choice"`
	Argument   json.RawMessage   `json:"argument"`
	CommandID  string            `json:"commandId,omitempty"`
}

type queryRequest struct {
	TemplateIDs []ledger.TemplateID `json:"templateIds"`
}

type fetchRequest struct {
	TemplateID ledger.TemplateID `json:"templateId"`
	ContractID ledger.ContractID `json:"contractId"`
}

type apiEnvelope struct {
	Status int               `json:"status"`
	Result json.RawMessage   `json:"result"`
	Errors []json.RawMessage `json:"errors"`
}

type eventEnvelope struct {
	Created  *ledger.ActiveContract `json:"created"`
	Archived *struct {
		ContractID ledger.ContractID `json:"contractId"`
	} `json:"archived"`
}

func (c *Client) Create(ctx context.Context, template ledger.TemplateID, payload json.RawMessage) domain.Result[ledger.ContractID] {
	req := createRequest{TemplateID: template, Payload: payload, CommandID: uuid.NewString()}
	result, derr := c.post(ctx, "/v1/create", req)
	if derr != nil {
		return domain.Err[ledger.ContractID](derr)
	}
	var created ledger.ActiveContract
	if err := json.Unmarshal(result, &created); err != nil {
		return domain.Err[ledger.ContractID](domain.Ledger("decode create response", err))
	}
	if created.ContractID == "" {
		return domain.Err[ledger.ContractID](domain.Ledger("create response missing contract id", nil))
	}
	return domain.Ok(created.ContractID)
}

func (c *Client) Exercise(ctx context.Context, template ledger.TemplateID, choice string, id ledger.ContractID, argument json.RawMessage) domain.Result[ledger.ExerciseResult] {
	if argument == nil {
		argument = json.RawMessage(`{}`)
	}
	req := exerciseRequest{
		TemplateID: template,
		ContractID: id,
		Choice:     choice,
		Argument:   argument,
		CommandID:  uuid.NewString(),
	}
	result, derr := c.post(ctx, "/v1/exercise", req)
	if derr != nil {
		return domain.Err[ledger.ExerciseResult](derr)
	}

	var body struct {
		ExerciseResult json.RawMessage `json:"exerciseResult"`
		Events         []eventEnvelope `json:"events"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return domain.Err[ledger.ExerciseResult](domain.Ledger("decode exercise response", err))
	}
	out := ledger.ExerciseResult{Value: body.ExerciseResult}
	for _, ev := range body.Events {
		if ev.Created != nil {
			out.Created = append(out.Created, *ev.Created)
		}
	}
	return domain.Ok(out)
}

func (c *Client) Query(ctx context.Context, template ledger.TemplateID) domain.Result[[]ledger.ActiveContract] {
	result, derr := c.post(ctx, "/v1/query", queryRequest{TemplateIDs: []ledger.TemplateID{template}})
	if derr != nil {
		return domain.Err[[]ledger.ActiveContract](derr)
	}
	var contracts []ledger.ActiveContract
	if err := json.Unmarshal(result, &contracts); err != nil {
		return domain.Err[[]ledger.ActiveContract](domain.Ledger("decode query response", err))
	}
	return domain.Ok(contracts)
}

func (c *Client) Fetch(ctx context.Context, template ledger.TemplateID, id ledger.ContractID) domain.Result[*ledger.ActiveContract] {
	result, derr := c.post(ctx, "/v1/fetch", fetchRequest{TemplateID: template, ContractID: id})
	if derr != nil {
		return domain.Err[*ledger.ActiveContract](derr)
	}
	// The API answers a fetch of an archived or unknown contract with a null
	// result, which the orchestration layer treats as absence, not failure.
	if len(result) == 0 || string(result) == "null" {
		return domain.Ok[*ledger.ActiveContract](nil)
	}
	var contract ledger.ActiveContract
	if err := json.Unmarshal(result, &contract); err != nil {
		return domain.Err[*ledger.ActiveContract](domain.Ledger("decode fetch response", err))
	}
	return domain.Ok(&contract)
}

// post performs one JSON API call and maps every failure mode into the closed
// error taxonomy; no transport error escapes untyped.
func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, *domain.Error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.Ledger("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Ledger("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Ledger(fmt.Sprintf("call %s", path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domain.Ledger(fmt.Sprintf("read %s response", path), err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, domain.Ledger(fmt.Sprintf("%s: status %d, undecodable body", path, resp.StatusCode), err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return envelope.Result, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, domain.LedgerUnauthorized(fmt.Sprintf("%s: ledger rejected credentials for party %s", path, c.party))
	case http.StatusNotFound:
		return nil, notFoundError(path, envelope)
	default:
		if strings.Contains(apiErrors(envelope), "CONTRACT_NOT_FOUND") {
			return nil, notFoundError(path, envelope)
		}
		return nil, domain.Ledger(fmt.Sprintf("%s: status %d: %s", path, resp.StatusCode, apiErrors(envelope)), nil)
	}
}

// notFoundError keeps the LEDGER_ERROR code but carries a 404 status and the
// ledger.ErrNotFound sentinel for errors.Is checks.
func notFoundError(path string, envelope apiEnvelope) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeLedger,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s: %s", path, apiErrors(envelope)),
		Cause:   ledger.ErrNotFound,
	}
}

func apiErrors(e apiEnvelope) string {
	if len(e.Errors) == 0 {
		return "no error detail"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, raw := range e.Errors {
		parts = append(parts, string(raw))
	}
	return strings.Join(parts, "; ")
}
