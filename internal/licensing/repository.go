package licensing

import (
	"context"

	"licentia.dev/internal/domain"
)

// Repository is the query contract over the indexed read-model. The store is
// eventually consistent with the ledger: absence of a row proves nothing
// about the ledger itself, so FindByID reports absence as a successful nil,
// never as an error.
type Repository interface {
	FindByID(ctx context.Context, contractID string) domain.Result[*License]
	FindByQuery(ctx context.Context, q Query) domain.Result[[]License]
	FindActiveByUser(ctx context.Context, userID string) domain.Result[[]License]
}
