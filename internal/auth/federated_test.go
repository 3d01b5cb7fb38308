package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://idp.test/realms/app"

type signer struct {
	key *rsa.PrivateKey
	kid string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return &signer{key: key, kid: "test-key-1"}
}

func (s *signer) jwksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pub := &s.key.PublicKey
		doc := map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"kid": s.kid,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		}
		_ = json.NewEncoder(w).Encode(doc)
	}
}

func (s *signer) mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testIssuer,
		"sub": "service-account-app",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func newFederated(t *testing.T, s *signer) *FederatedResolver {
	t.Helper()
	srv := httptest.NewServer(s.jwksHandler())
	t.Cleanup(srv.Close)
	return NewFederatedResolver(NewJWKSCache(srv.URL, srv.Client()), testIssuer)
}

func TestFederatedResolveHappyPath(t *testing.T) {
	s := newSigner(t)
	r := newFederated(t, s)

	claims := baseClaims()
	claims["party_id"] = "app_provider::1220ab"
	claims["scope"] = "licenses:read licenses:write"

	res := r.Resolve(context.Background(), s.mint(t, claims))
	if !res.IsOk() {
		t.Fatalf("resolve: %v", res.Err())
	}
	id := res.Value()
	if id.Subject != "service-account-app" || id.Party != "app_provider::1220ab" {
		t.Fatalf("identity = %+v", id)
	}
	if !id.HasScope("licenses:write") || !id.HasScope("licenses:read") {
		t.Fatalf("scopes = %v", id.Scopes)
	}
}

func TestFederatedPartyFallsBackToSubject(t *testing.T) {
	s := newSigner(t)
	r := newFederated(t, s)

	claims := baseClaims()
	claims["scope"] = []string{"licenses:read"}

	res := r.Resolve(context.Background(), s.mint(t, claims))
	if !res.IsOk() {
		t.Fatalf("resolve: %v", res.Err())
	}
	if res.Value().Party != "service-account-app" {
		t.Fatalf("party = %s", res.Value().Party)
	}
}

func TestFederatedRejectsBadTokens(t *testing.T) {
	s := newSigner(t)
	r := newFederated(t, s)

	expired := baseClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := baseClaims()
	wrongIssuer["iss"] = "https://evil.test"

	other := newSigner(t) // key unknown to the JWKS endpoint
	forged := other.mint(t, baseClaims())

	cases := map[string]string{
		"garbage":      "not.a.jwt",
		"empty":        "",
		"expired":      s.mint(t, expired),
		"wrong issuer": s.mint(t, wrongIssuer),
		"forged":       forged,
	}
	for name, tok := range cases {
		res := r.Resolve(context.Background(), tok)
		if res.IsOk() {
			t.Fatalf("%s: token must be rejected", name)
		}
		if res.Err().Code != "AUTH_ERROR" {
			t.Fatalf("%s: code = %s", name, res.Err().Code)
		}
	}
}

func TestJWKSCacheServesRotatedKeyOnMiss(t *testing.T) {
	s1 := newSigner(t)
	s2 := newSigner(t)
	s2.kid = "test-key-2"

	current := s1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current.jwksHandler()(w, r)
	}))
	t.Cleanup(srv.Close)

	cache := NewJWKSCache(srv.URL, srv.Client())
	if _, err := cache.Key(context.Background(), s1.kid); err != nil {
		t.Fatal(err)
	}

	// Rotate: the cache has never seen key 2, so the miss forces a refetch.
	current = s2
	if _, err := cache.Key(context.Background(), s2.kid); err != nil {
		t.Fatalf("rotated key not picked up: %v", err)
	}
}
