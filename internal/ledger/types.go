package ledger

import (
	"encoding/json"
	"errors"
	"time"
)

// ContractID identifies one immutable contract instance on the ledger.
type ContractID string

// TemplateID names a contract template, e.g. "Quickstart.Licensing:License".
type TemplateID string

// ActiveContract is a snapshot of a contract visible to the acting party.
// Contracts are never mutated; exercising a choice archives the contract and
// may create successors.
type ActiveContract struct {
	ContractID  ContractID      `json:"contractId"`
	TemplateID  TemplateID      `json:"templateId"`
	Payload     json.RawMessage `json:"payload"`
	Signatories []string        `json:"signatories,omitempty"`
	Observers   []string        `json:"observers,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
}

// ExerciseResult carries the choice's return value plus any successor
// contracts created in the same transaction.
type ExerciseResult struct {
	Value   json.RawMessage
	Created []ActiveContract
}

// FirstCreated returns the first successor of the given template, if any.
func (r ExerciseResult) FirstCreated(template TemplateID) (ActiveContract, bool) {
	for _, c := range r.Created {
		if c.TemplateID == template {
			return c, true
		}
	}
	return ActiveContract{}, false
}

// Ledger-level rejections. Transport failures are wrapped separately; these
// represent the ledger refusing the operation itself.
var (
	ErrNotFound     = errors.New("ledger: contract not found")
	ErrUnauthorized = errors.New("ledger: party not authorized")
)
