package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/inklet-dev/inklet/internal/auth"
	"github.com/inklet-dev/inklet/internal/bus"
	"github.com/inklet-dev/inklet/internal/config"
	"github.com/inklet-dev/inklet/internal/db"
	"github.com/inklet-dev/inklet/internal/engine"
	"github.com/inklet-dev/inklet/internal/httpapi"
	"github.com/inklet-dev/inklet/internal/room"
	"github.com/inklet-dev/inklet/internal/session"
	"github.com/inklet-dev/inklet/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "inklet").Logger()
	if cfg.Development() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := context.Background()

	// serverId stamps every bus envelope so this instance can drop its
	// own echoes.
	serverID := uuid.NewString()
	log.Info().Str("serverId", serverID).Str("env", cfg.Env).Msg("starting")

	var docs interface {
		store.DocumentStore
		store.UserStore
	}
	if cfg.StoreURI != "" {
		pool, err := db.Open(ctx, cfg.StoreURI)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure schema")
		}
		docs = store.NewPostgres(pool)
	} else {
		// Development without a database: everything lives in memory.
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		docs = store.NewMemory()
	}

	var b bus.Bus
	if rb, err := bus.NewRedis(ctx, cfg.Bus, log.Logger); err != nil {
		if !cfg.Development() {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		// A single dev instance needs no cross-instance fan-out.
		log.Warn().Err(err).Msg("redis unreachable, using in-process bus")
		b = bus.NewMemoryBroker().Client()
	} else {
		b = rb
	}
	defer b.Close()

	tokens := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	eng := engine.New(docs, log.Logger)
	rooms := room.NewManager(serverID, docs, eng, b, log.Logger)
	ws := session.NewHandler(tokens, docs, rooms, cfg.ClientURL, log.Logger)

	api := &httpapi.Server{
		Docs:   docs,
		Users:  docs,
		Tokens: tokens,
		Engine: eng,
		WS:     ws,
		Client: cfg.ClientURL,
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Rooms first, so peer instances see the presence entries disappear
	// before the bus connection drops.
	rooms.Close(shutdownCtx)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
