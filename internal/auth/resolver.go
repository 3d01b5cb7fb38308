package auth

import (
	"context"

	"licentia.dev/internal/domain"
)

// Resolver turns a raw bearer credential into a ledger identity. The concrete
// strategy is selected once at process startup; request handling never
// branches on an auth-mode flag.
type Resolver interface {
	Resolve(ctx context.Context, rawCredential string) domain.Result[Identity]
}
