package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthMode selects the identity resolution strategy. Chosen once at startup,
// never re-evaluated per request.
type AuthMode string

const (
	AuthOAuth2       AuthMode = "oauth2"
	AuthSharedSecret AuthMode = "shared-secret"
)

// Config is the explicit configuration passed into each component constructor.
// It is built once in main from the environment; nothing reads env vars after
// startup.
type Config struct {
	ListenAddr string

	// Ledger JSON API endpoint and the party the backend acts as.
	LedgerHost    string
	LedgerPort    int
	LedgerToken   string
	ProviderParty string

	// Read-model (PQS) connection string. The store is consumed read-only.
	PQSDSN string

	AuthMode        AuthMode
	IssuerURL       string // oauth2 mode: JWKS discovery base
	SharedSecret    string // shared-secret mode
	BackendUserName string // subject reported in shared-secret mode

	// Visibility bridge: how long create/renew wait for the read-model to
	// observe a just-written contract, and the initial retry interval.
	VisibilityDeadline time.Duration
	VisibilityInterval time.Duration
}

// LedgerBaseURL renders the JSON API base endpoint.
func (c Config) LedgerBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.LedgerHost, c.LedgerPort)
}

// Load reads LICENTIA_* variables and validates mode-specific requirements.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:         getenv("LICENTIA_LISTEN_ADDR", ":8080"),
		LedgerHost:         getenv("LICENTIA_LEDGER_HOST", ""),
		LedgerToken:        os.Getenv("LICENTIA_LEDGER_TOKEN"),
		ProviderParty:      getenv("LICENTIA_PROVIDER_PARTY", ""),
		PQSDSN:             getenv("LICENTIA_PQS_DSN", ""),
		AuthMode:           AuthMode(getenv("LICENTIA_AUTH_MODE", "")),
		IssuerURL:          strings.TrimRight(getenv("LICENTIA_OAUTH2_ISSUER_URL", ""), "/"),
		SharedSecret:       os.Getenv("LICENTIA_SHARED_SECRET"),
		BackendUserName:    getenv("LICENTIA_BACKEND_USER_NAME", "licentia-backend"),
		VisibilityDeadline: 10 * time.Second,
		VisibilityInterval: 100 * time.Millisecond,
	}

	port, err := intEnv("LICENTIA_LEDGER_PORT", 7575)
	if err != nil {
		return Config{}, err
	}
	cfg.LedgerPort = port

	if d, err := durationEnv("LICENTIA_VISIBILITY_DEADLINE", cfg.VisibilityDeadline); err != nil {
		return Config{}, err
	} else {
		cfg.VisibilityDeadline = d
	}
	if d, err := durationEnv("LICENTIA_VISIBILITY_INTERVAL", cfg.VisibilityInterval); err != nil {
		return Config{}, err
	} else {
		cfg.VisibilityInterval = d
	}

	return cfg, cfg.Validate()
}

// Validate enforces cross-field requirements so main can fail fast.
func (c Config) Validate() error {
	if c.LedgerHost == "" {
		return errors.New("config: LICENTIA_LEDGER_HOST is required")
	}
	if c.PQSDSN == "" {
		return errors.New("config: LICENTIA_PQS_DSN is required")
	}
	switch c.AuthMode {
	case AuthOAuth2:
		if c.IssuerURL == "" {
			return errors.New("config: LICENTIA_OAUTH2_ISSUER_URL is required in oauth2 mode")
		}
	case AuthSharedSecret:
		if c.SharedSecret == "" {
			return errors.New("config: LICENTIA_SHARED_SECRET is required in shared-secret mode")
		}
		if c.ProviderParty == "" {
			return errors.New("config: LICENTIA_PROVIDER_PARTY is required in shared-secret mode")
		}
	default:
		return fmt.Errorf("config: unknown auth mode %q (want oauth2 or shared-secret)", c.AuthMode)
	}
	if c.VisibilityDeadline <= 0 {
		return errors.New("config: visibility deadline must be positive")
	}
	if c.VisibilityInterval <= 0 || c.VisibilityInterval > c.VisibilityDeadline {
		return errors.New("config: visibility interval must be positive and below the deadline")
	}
	return nil
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}
