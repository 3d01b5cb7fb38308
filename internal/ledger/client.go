package ledger

import (
	"context"
	"encoding/json"

	"licentia.dev/internal/domain"
)

// Client is the uniform interface over the ledger's primitive operations,
// acting on behalf of one resolved party. A successful Create does not imply
// visibility in any read-model; callers own that reconciliation.
type Client interface {
	// Create submits a new contract and returns its id once the ledger
	// accepts the transaction.
	Create(ctx context.Context, template TemplateID, payload json.RawMessage) domain.Result[ContractID]

	// Exercise atomically archives the target contract and applies the
	// choice, possibly creating successor contracts.
	Exercise(ctx context.Context, template TemplateID, choice string, id ContractID, argument json.RawMessage) domain.Result[ExerciseResult]

	// Query returns all active contracts of the template visible to the
	// acting party.
	Query(ctx context.Context, template TemplateID) domain.Result[[]ActiveContract]

	// Fetch is a point lookup. A nil contract with a successful result means
	// the contract is archived or was never visible to the acting party.
	Fetch(ctx context.Context, template TemplateID, id ContractID) domain.Result[*ActiveContract]
}
