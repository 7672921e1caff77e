package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/billing"
	"github.com/flexiproxy/flexiproxy/internal/config"
	"github.com/flexiproxy/flexiproxy/internal/contact"
	"github.com/flexiproxy/flexiproxy/internal/http/api"
	"github.com/flexiproxy/flexiproxy/internal/kv"
	"github.com/flexiproxy/flexiproxy/internal/permissions"
	"github.com/flexiproxy/flexiproxy/internal/providers"
	"github.com/flexiproxy/flexiproxy/internal/proxydir"
	"github.com/flexiproxy/flexiproxy/internal/registry"
	"github.com/flexiproxy/flexiproxy/internal/token"
)

// shutdownGrace bounds in-flight request draining on shutdown.
const shutdownGrace = 10 * time.Second

// RunServer connects to the KV store, wires the components, and serves the
// API until ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config, defaultPort int) error {
	if cfg == nil {
		return fmt.Errorf("app: nil config")
	}

	store, errDial := kv.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if errDial != nil {
		return errDial
	}
	defer func() { _ = store.Close() }()

	deps := buildDeps(cfg, store)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, deps)

	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", port).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if errShutdown := server.Shutdown(ctxShutdown); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildDeps constructs every component against the shared store and config.
func buildDeps(cfg *config.Config, store kv.Store) api.Deps {
	directory := proxydir.NewDirectory(store, cfg.Prefixes.Proxy, nil)
	return api.Deps{
		Store:     store,
		Registry:  registry.New(store, directory, cfg.MasterKey, cfg.Prefixes.Adapter, cfg.Prefixes.Version),
		Directory: directory,
		Providers: providers.NewDirectory(store, cfg.Prefixes.Provider),
		Gate:      permissions.NewGate(store, cfg.Prefixes.Permissions),
		Tokens:    token.NewFabricator(store, cfg.Prefixes.AuthToken, cfg.JWT, nil),
		Intake:    contact.NewIntake(store, cfg.Prefixes.Contact, nil),
		Billing:   billing.NewService(cfg.StripeKey),
	}
}
