package licensing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// contractPayload is the typed schema of a License contract's create
// arguments. Decoding fails closed: a row whose payload does not satisfy the
// schema is an error, never a half-populated domain entity.
type contractPayload struct {
	Provider  string         `json:"provider"`
	User      string         `json:"user"`
	ProductID string         `json:"productId"`
	ExpiresAt string         `json:"expiresAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EncodePayload renders create arguments for a new License contract.
func EncodePayload(provider, user, productID string, expiresAt time.Time, metadata map[string]any) (json.RawMessage, error) {
	p := contractPayload{
		Provider:  provider,
		User:      user,
		ProductID: productID,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Metadata:  metadata,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("licensing: encode payload: %w", err)
	}
	return raw, nil
}

func decodePayload(raw json.RawMessage) (contractPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var p contractPayload
	if err := dec.Decode(&p); err != nil {
		return contractPayload{}, fmt.Errorf("licensing: malformed payload: %w", err)
	}
	if p.Provider == "" || p.User == "" || p.ProductID == "" {
		return contractPayload{}, fmt.Errorf("licensing: payload missing required fields (provider=%q user=%q productId=%q)", p.Provider, p.User, p.ProductID)
	}
	if p.ExpiresAt == "" {
		return contractPayload{}, fmt.Errorf("licensing: payload missing expiresAt")
	}
	return p, nil
}

// Translate builds a License from a raw contract payload plus the read-model
// row's indexing timestamp. Status is computed against the supplied instant;
// two translations of the same row moments apart may legitimately disagree,
// so the result must never be cached.
func Translate(contractID string, payload json.RawMessage, createdAt, now time.Time) (License, error) {
	p, err := decodePayload(payload)
	if err != nil {
		return License{}, err
	}
	expiresAt, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return License{}, fmt.Errorf("licensing: payload expiresAt %q: %w", p.ExpiresAt, err)
	}
	return License{
		ContractID: contractID,
		Provider:   p.Provider,
		User:       p.User,
		ProductID:  p.ProductID,
		ExpiresAt:  expiresAt,
		CreatedAt:  createdAt,
		Status:     ComputeStatus(expiresAt, now),
		Metadata:   p.Metadata,
	}, nil
}
