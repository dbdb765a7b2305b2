package core

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/ssoware/cascade/internal/mockcas"
	"github.com/ssoware/cascade/pkg/cas"
	"github.com/ssoware/cascade/pkg/session"
)

// BootstrapResult holds the initialized dependencies of the demo server.
type BootstrapResult struct {
	Config  *Config
	Store   *session.TicketStore
	Handler *cas.Handler
	Auth    *cas.Middleware
	MockCAS *mockcas.Server

	// Closer releases backend resources (the sqlite handle). Nil for the
	// memory backend.
	Closer func() error
}

// Bootstrap wires the session backend, the CAS handler and, when enabled,
// the embedded mock CAS server from the environment configuration.
func Bootstrap() (*BootstrapResult, error) {
	cfg := LoadConfig()

	codec, err := session.NewPayloadCodec([]byte(cfg.SessionSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session codec: %w", err)
	}

	var (
		opts   session.TicketStoreOptions
		closer func() error
	)
	switch cfg.SessionBackend {
	case "sqlite":
		backend, err := session.NewSQLiteBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		opts = session.TicketStoreOptions{
			Codec:        codec,
			GetSession:   backend.Get,
			StoreSession: backend.Put,
			RemoveSession: func(ctx context.Context, key string) error {
				return backend.Delete(ctx, key)
			},
			TTL: cfg.SessionTTL,
		}
		closer = backend.Close
		log.Printf("Session backend: sqlite (%s)", cfg.DataDir)
	case "memory", "":
		backend := session.NewMemoryBackend()
		opts = session.TicketStoreOptions{
			Codec:        codec,
			GetSession:   backend.Get,
			StoreSession: backend.Put,
			RemoveSession: func(ctx context.Context, key string) error {
				return backend.Delete(ctx, key)
			},
			TTL: cfg.SessionTTL,
		}
		log.Println("Session backend: memory")
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}

	store, err := session.NewTicketStore(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build session store: %w", err)
	}

	serverURL, err := url.Parse(cfg.CASServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CAS server URL %q: %w", cfg.CASServerURL, err)
	}

	if cfg.ProxyMode && cfg.ProxyCallbackURL == "" {
		cfg.ProxyCallbackURL = cfg.BaseURL + cas.DefaultCallbackPath
	}

	handler, err := cas.New(cas.Config{
		ServerURL:        serverURL,
		ProtocolVersion:  cas.ProtocolVersion(cfg.CASVersion),
		ProxyServer:      cfg.ProxyMode,
		ProxyCallbackURL: cfg.ProxyCallbackURL,
		TrustedProxies:   cfg.TrustedProxies,
		SessionTTL:       cfg.SessionTTL,
		Store:            store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build CAS handler: %w", err)
	}
	log.Printf("CAS client initialized against %s (protocol v%d)", cfg.CASServerURL, cfg.CASVersion)

	result := &BootstrapResult{
		Config:  cfg,
		Store:   store,
		Handler: handler,
		Auth:    cas.NewMiddleware(handler),
		Closer:  closer,
	}

	if cfg.MockCASEnabled {
		result.MockCAS = mockcas.NewServer(mockcas.NewProvider())
		log.Println("Mock CAS server enabled at /cas")
	}

	return result, nil
}
