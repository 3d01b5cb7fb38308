package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"licentia.dev/internal/auth"
	"licentia.dev/internal/config"
	"licentia.dev/internal/httpapi"
	"licentia.dev/internal/ledger"
	"licentia.dev/internal/ledger/jsonapi"
	"licentia.dev/internal/licensing"
	"licentia.dev/internal/obs"
	"licentia.dev/internal/store/mem"
	"licentia.dev/internal/store/pg"
	"licentia.dev/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	devMode := flag.Bool("dev", false, "run with an in-process ledger and read-model (no external services)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	events := stream.New()

	var (
		api     *httpapi.API
		addr    string
		cleanup = func() {}
	)
	if *devMode {
		api, addr = buildDev(events)
	} else {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		api, cleanup = build(cfg, events)
		addr = cfg.ListenAddr
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting licentia-api %s on %s (dev=%v)", version, srv.Addr, *devMode)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// build wires the production stack: JSON API ledger client, PQS repository,
// and the configured identity resolver.
func build(cfg config.Config, events *stream.Stream) (*httpapi.API, func()) {
	store, err := pg.Open(cfg.PQSDSN)
	if err != nil {
		log.Fatalf("open read-model: %v", err)
	}

	client := jsonapi.New(cfg.LedgerBaseURL(), cfg.LedgerToken, cfg.ProviderParty, nil)

	svc := licensing.NewService(client, store,
		licensing.WithVisibilityPolicy(cfg.VisibilityDeadline, cfg.VisibilityInterval),
		licensing.WithEvents(events),
	)

	var resolver auth.Resolver
	switch cfg.AuthMode {
	case config.AuthOAuth2:
		keys := auth.NewJWKSCache(cfg.IssuerURL+"/.well-known/jwks.json", nil)
		resolver = auth.NewFederatedResolver(keys, cfg.IssuerURL)
	case config.AuthSharedSecret:
		resolver = auth.NewSharedSecretResolver(cfg.SharedSecret, cfg.BackendUserName, cfg.ProviderParty)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, resolver, svc, events, cfg.ProviderParty)
	return api, func() { _ = store.Close() }
}

// buildDev wires everything in-process: handy for local frontends and demos.
// Ingestion lag is simulated so the visibility bridge actually exercises.
func buildDev(events *stream.Stream) (*httpapi.API, string) {
	const party = "provider::dev"

	l := ledger.NewInMemory()
	licensing.RegisterRenewChoice(l)

	store := mem.New(mem.WithIndexingDelay(250 * time.Millisecond))
	l.OnCreated(store.Ingest)
	l.OnArchived(store.Archive)

	svc := licensing.NewService(l.ForParty(party), store,
		licensing.WithEvents(events),
	)

	secret := os.Getenv("LICENTIA_SHARED_SECRET")
	if secret == "" {
		secret = "dev-secret"
		log.Printf("dev mode: using default shared secret %q", secret)
	}
	resolver := auth.NewSharedSecretResolver(secret, "licentia-backend", party)

	api := httpapi.New(httpapi.ReadyProbe{}, version, resolver, svc, events, party)
	return api, ":8080"
}
