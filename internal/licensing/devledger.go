package licensing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"licentia.dev/internal/ledger"
)

// RegisterRenewChoice installs the Renew semantics on an in-memory ledger,
// used by dev mode and tests. The successor's expiry extends from the current
// expiry, not from the time of renewal.
func RegisterRenewChoice(l *ledger.InMemory) {
	l.RegisterChoice(Template, ChoiceRenew, func(c ledger.ActiveContract, arg json.RawMessage) ([]json.RawMessage, json.RawMessage, error) {
		var a struct {
			AdditionalDays int `json:"additionalDays"`
		}
		if err := json.Unmarshal(arg, &a); err != nil {
			return nil, nil, fmt.Errorf("renew argument: %w", err)
		}
		if a.AdditionalDays < 1 {
			return nil, nil, errors.New("additionalDays must be positive")
		}

		p, err := decodePayload(c.Payload)
		if err != nil {
			return nil, nil, err
		}
		expires, err := time.Parse(time.RFC3339, p.ExpiresAt)
		if err != nil {
			return nil, nil, fmt.Errorf("contract expiresAt: %w", err)
		}
		p.ExpiresAt = expires.AddDate(0, 0, a.AdditionalDays).UTC().Format(time.RFC3339)

		raw, err := json.Marshal(p)
		if err != nil {
			return nil, nil, err
		}
		return []json.RawMessage{raw}, nil, nil
	})
}
