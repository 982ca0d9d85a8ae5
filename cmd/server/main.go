package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"roadlink/auth"
	"roadlink/internal"
	"roadlink/moderation"
	"roadlink/observability"
	"roadlink/repositories"
	"roadlink/runtime"
	"roadlink/runtime/workers"
	"roadlink/search"
	"roadlink/services"
	"roadlink/web"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database cleanup included)
// executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := internal.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug store inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		internal.StartDebugServer(db, config.DebugPort, endpoint, nil, nil)
	}

	// 3. Moderation, repositories, search
	filter, err := moderation.NewEmbeddedFilter()
	if err != nil {
		return exitRuntime, fmt.Errorf("moderation filter init failed: %w", err)
	}
	messageRepository := repositories.NewMessageRepository(db, logger)
	incidentRepository := repositories.NewIncidentRepository(db, logger)
	userRepository := repositories.NewUserRepository(db)
	incidentIndex := search.NewIncidentIndex(blugeWriter, logger)

	// 4. Chat runtime under supervision
	supervisor := workers.NewSupervisor(logger).WithRestartInterval(config.RestartInterval)
	registry := runtime.NewSessionRegistry(logger, config.SessionBufferSize, config.DeliverTimeout)
	membership := runtime.NewMembership()
	orchestrator := runtime.NewOrchestrator(
		logger, registry, membership, filter,
		incidentRepository, messageRepository,
		supervisor, config.RoomBufferSize,
	)

	monitor := observability.NewMonitor(logger, orchestrator, config.MetricInterval)
	orchestrator.Instrument(monitor)
	supervisor.Add(monitor)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)
	go supervisor.Run(ctx)

	// 6. Services & HTTP transport
	authenticator := auth.NewAuthenticator(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, authenticator)
	incidentService := services.NewIncidentService(logger, incidentRepository, messageRepository, incidentIndex, orchestrator, monitor)
	chatService := services.NewChatService(orchestrator, monitor)

	handlers := web.NewHandlers(logger, authService, incidentService, monitor)
	wsHandler := web.NewWSHandler(logger, chatService, authService, web.DefaultWebSocketConfig())

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: web.NewRouter(handlers, wsHandler),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	orchestrator.Stop()
	supervisor.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
