package main

import (
	"chat-core/auth"
	"chat-core/gateway"
	"chat-core/internal"
	"chat-core/moderation"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close included)
// executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	registry := runtime.NewRegistry()
	messageRepository := repositories.NewMessageRepository(db, log)
	userRepository := repositories.NewUserRepository(db, log)
	batcher := services.NewBatcher(log, messageRepository)

	var moderator *moderation.Moderator
	if words := config.CensoredWordList(); len(words) > 0 {
		replacement, err := internal.CharacterRune(config.ModerationCharReplacement)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		m, err := moderation.NewModerator(words, replacement)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		moderator = &m
		log.Info(fmt.Sprintf("%d censored words loaded", len(words)))
	}

	relay := services.NewRelay(log, registry, batcher, moderator)
	coordinator := services.NewCoordinator(log, registry)
	verifier := auth.NewVerifier(config.JWTSecret)

	gw := gateway.New(log, verifier, registry, relay, coordinator,
		messageRepository, userRepository, gateway.Options{
			IceServers:   config.IceServerList(),
			HistoryLimit: config.HistoryLimit,
			SendBuffer:   config.SendBufferSize,
		})

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewFlushWorker(log, batcher, config.FlushInterval))
	sup.Add(workers.NewTelemetryWorker(log, registry, batcher, config.TelemetryInterval))

	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 6. Debug endpoints for the inspector and the viewer CLI
	internal.StartDebugServer(log, db, config.DebugPort, func() map[string]any {
		return map[string]any{
			"online_users":      registry.OnlineCount(),
			"buffered_messages": batcher.Len(),
			"sessions":          registry.Snapshot(),
		}
	})

	// 7. Gateway HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: gw.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("Gateway listening", "addr", server.Addr)
	if err = server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server failed: %w", err)
	}

	// Wait for the workers so the final flush lands before the db closes.
	stop()
	<-supervisorDone
	log.Info("Shutdown complete")
	return nil
}
