package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"mentorchat/internal/api"
	"mentorchat/internal/auth"
	"mentorchat/internal/broker"
	"mentorchat/internal/config"
	"mentorchat/internal/directory"
	"mentorchat/internal/store"
	"mentorchat/internal/websocket"
)

// Application wires the components together in dependency order and owns
// their lifecycle: store, directory, broker, auth, then the HTTP surface.
type Application struct {
	config *config.Config

	store      *store.Store
	directory  *directory.Directory
	broker     *broker.Broker
	auth       *auth.Authenticator
	httpServer *http.Server
}

// New builds a fully wired application from validated configuration.
func New(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.NewStore(cfg.Database.Path, cfg.Chat.MaxMessageLength)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	dir := directory.New(st)
	b := broker.New(st, dir, cfg.Chat.MaxMessageLength, cfg.Chat.RateLimitPerMinute)
	authn := auth.New(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	apiServer := api.NewServer(dir, st, b, authn, cfg.Chat.DefaultPageLimit, cfg.Chat.MaxPageLimit)
	wsHandler := websocket.NewHandler(b, authn, cfg.WebSocket, cfg.Chat.MaxMessageLength)

	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	mux.HandleFunc("/ws/chat", wsHandler.HandleChat)
	mux.HandleFunc("/ws/discussions", wsHandler.HandleDiscussions)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      st,
		directory:  dir,
		broker:     b,
		auth:       authn,
		httpServer: httpServer,
	}, nil
}

// Store exposes the persistence layer for seeding commands.
func (a *Application) Store() *store.Store {
	return a.store
}

// Auth exposes the authenticator for token issuance commands.
func (a *Application) Auth() *auth.Authenticator {
	return a.auth
}

// Start serves HTTP until the listener fails or Stop is called.
func (a *Application) Start() error {
	log.Printf("Listening on %s", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop shuts components down in reverse dependency order: stop accepting
// HTTP first, then close live channels, then the store.
func (a *Application) Stop(ctx context.Context) error {
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	a.broker.Close()

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close message store: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}
