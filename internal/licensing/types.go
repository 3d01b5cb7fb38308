package licensing

import (
	"time"

	"licentia.dev/internal/ledger"
)

// Template and choice identifiers for the licensing workflow. The template
// definition itself lives on the ledger; these are wire-level names.
const (
	Template    = ledger.TemplateID("Quickstart.Licensing:License")
	ChoiceRenew = "Renew"
)

// Status is computed from ExpiresAt at translation time, never stored.
// Revoked exists as a ledger lifecycle outcome (a Revoke choice archives the
// contract); since the read-model only holds active contracts, no query path
// currently derives it.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// ComputeStatus derives the status of a license at the given instant.
func ComputeStatus(expiresAt, now time.Time) Status {
	if expiresAt.After(now) {
		return StatusActive
	}
	return StatusExpired
}

// License is the domain projection of one ledger contract joined with its
// read-model row. Immutable: renewal archives the contract and the successor
// appears under a new ContractID.
type License struct {
	ContractID string         `json:"contractId"`
	Provider   string         `json:"provider"`
	User       string         `json:"user"`
	ProductID  string         `json:"productId"`
	ExpiresAt  time.Time      `json:"expiresAt"`
	CreatedAt  time.Time      `json:"createdAt"`
	Status     Status         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateLicenseRequest is the validated input for CreateLicense. Duration is
// in days.
type CreateLicenseRequest struct {
	UserID    string         `json:"userId"`
	ProductID string         `json:"productId"`
	Duration  int            `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RenewLicenseRequest extends an existing license by AdditionalDuration days.
type RenewLicenseRequest struct {
	LicenseID          string `json:"licenseId"`
	AdditionalDuration int    `json:"additionalDuration"`
}

// Query filters read-model lookups. Status is applied after translation since
// it is computed, not stored.
type Query struct {
	UserID    string
	ProductID string
	Status    Status
	Limit     int
	Offset    int
}

// DefaultQueryLimit bounds unpaginated callers.
const DefaultQueryLimit = 50
