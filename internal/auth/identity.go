package auth

import (
	"sort"
	"strings"

	"licentia.dev/internal/domain"
)

// ScopeAdmin is granted implicitly in shared-secret mode.
const ScopeAdmin = "admin"

// Identity is the resolved caller for one request. It is never persisted or
// cached across requests.
type Identity struct {
	Subject string
	Party   string
	Scopes  []string
}

// HasScope reports whether the identity carries the scope.
func (id Identity) HasScope(scope string) bool {
	scope = strings.TrimSpace(scope)
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authorize succeeds iff the identity holds at least one of the required
// scopes. Callers that require nothing pass an empty list and always succeed.
func Authorize(id Identity, required ...string) *domain.Error {
	if len(required) == 0 {
		return nil
	}
	for _, scope := range required {
		if id.HasScope(scope) {
			return nil
		}
	}
	return domain.Forbidden("missing required scope: " + strings.Join(required, ", "))
}

// NormalizeScopes trims, deduplicates and sorts a scope list so that the two
// wire encodings (space-delimited string, JSON array) compare equal.
func NormalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	var out []string
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
