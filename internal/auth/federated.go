package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"licentia.dev/internal/domain"
)

// FederatedResolver verifies RS256 tokens against the issuer's published key
// set. The party identity comes from the party_id claim, falling back to the
// token subject when absent.
type FederatedResolver struct {
	keys   KeySet
	issuer string
}

var _ Resolver = (*FederatedResolver)(nil)

func NewFederatedResolver(keys KeySet, issuer string) *FederatedResolver {
	return &FederatedResolver{keys: keys, issuer: issuer}
}

// federatedClaims carries the registered claims plus the two custom claims
// this service consumes.
type federatedClaims struct {
	PartyID string     `json:"party_id"`
	Scope   scopeClaim `json:"scope"`
	jwt.RegisteredClaims
}

// scopeClaim accepts the two wire encodings issuers use for scopes: a
// space-delimited string or a JSON array. Both normalize to the same set.
type scopeClaim []string

func (s *scopeClaim) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = scopeClaim(strings.Fields(str))
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = scopeClaim(list)
		return nil
	}
	return errors.New("scope claim is neither a string nor an array")
}

func (r *FederatedResolver) Resolve(ctx context.Context, rawCredential string) domain.Result[Identity] {
	if strings.TrimSpace(rawCredential) == "" {
		return domain.Err[Identity](domain.Unauthenticated("missing bearer token"))
	}

	claims := &federatedClaims{}
	parsed, err := jwt.ParseWithClaims(rawCredential, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, errors.New("unexpected signing method")
		}
		kid, _ := t.Header["kid"].(string)
		return r.keys.Key(ctx, kid)
	}, jwt.WithIssuer(r.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.Err[Identity](domain.Unauthenticated("invalid or expired token"))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Err[Identity](domain.Unauthenticated("token subject missing"))
	}

	party := strings.TrimSpace(claims.PartyID)
	if party == "" {
		party = claims.Subject
	}
	return domain.Ok(Identity{
		Subject: claims.Subject,
		Party:   party,
		Scopes:  NormalizeScopes(claims.Scope),
	})
}
