package auth

import (
	"context"
	"crypto/subtle"

	"licentia.dev/internal/domain"
)

// SharedSecretResolver authenticates callers by exact match against a
// pre-shared secret. The resolved identity is the statically configured
// provider party with an implicit admin scope.
type SharedSecretResolver struct {
	secret  []byte
	subject string
	party   string
}

var _ Resolver = (*SharedSecretResolver)(nil)

func NewSharedSecretResolver(secret, subject, party string) *SharedSecretResolver {
	return &SharedSecretResolver{
		secret:  []byte(secret),
		subject: subject,
		party:   party,
	}
}

func (r *SharedSecretResolver) Resolve(ctx context.Context, rawCredential string) domain.Result[Identity] {
	if len(r.secret) == 0 {
		return domain.Err[Identity](domain.Unauthenticated("shared secret not configured"))
	}
	if subtle.ConstantTimeCompare([]byte(rawCredential), r.secret) != 1 {
		return domain.Err[Identity](domain.Unauthenticated("invalid credential"))
	}
	return domain.Ok(Identity{
		Subject: r.subject,
		Party:   r.party,
		Scopes:  []string{ScopeAdmin},
	})
}
