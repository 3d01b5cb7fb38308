// smoke-license runs one end-to-end pass against a running licentia-api:
// create a license, read it back, renew it, and verify the expiry shifted by
// exactly the renewal duration.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type license struct {
	ContractID string    `json:"contractId"`
	User       string    `json:"user"`
	ProductID  string    `json:"productId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Status     string    `json:"status"`
}

func main() {
	baseURL := os.Getenv("LICENTIA_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	secret := os.Getenv("LICENTIA_SHARED_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}

	c := &client{
		baseURL: baseURL,
		token:   secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	user := fmt.Sprintf("smoke-%d", time.Now().UnixNano())

	var created license
	if err := c.call(http.MethodPost, "/v1/licenses", map[string]any{
		"userId":    user,
		"productId": "smoke-product",
		"duration":  30,
	}, &created); err != nil {
		log.Fatalf("create license: %v", err)
	}
	if created.Status != "active" {
		log.Fatalf("created license not active: %s", created.Status)
	}

	var fetched license
	if err := c.call(http.MethodGet, "/v1/licenses/"+created.ContractID, nil, &fetched); err != nil {
		log.Fatalf("get license: %v", err)
	}
	if fetched.ContractID != created.ContractID {
		log.Fatalf("fetched wrong license: %s", fetched.ContractID)
	}

	var renewed license
	if err := c.call(http.MethodPost, "/v1/licenses/renew", map[string]any{
		"licenseId":          created.ContractID,
		"additionalDuration": 60,
	}, &renewed); err != nil {
		log.Fatalf("renew license: %v", err)
	}
	if renewed.ContractID == created.ContractID {
		log.Fatal("renewal did not produce a successor contract")
	}
	if want := created.ExpiresAt.AddDate(0, 0, 60); !renewed.ExpiresAt.Equal(want) {
		log.Fatalf("expiry shift wrong: got %s, want %s", renewed.ExpiresAt, want)
	}

	// The predecessor must be gone.
	var gone license
	err := c.call(http.MethodGet, "/v1/licenses/"+created.ContractID, nil, &gone)
	if err == nil {
		log.Fatal("archived predecessor is still queryable")
	}

	fmt.Printf("✅ license smoke test passed: %s -> %s (user=%s)\n",
		created.ContractID, renewed.ContractID, user)
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) call(method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d code=%s: %s", method, path, resp.StatusCode, apiErr.Code, apiErr.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
