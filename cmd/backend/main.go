package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lattice/backend/internal/auth"
	"github.com/lattice/backend/internal/config"
	"github.com/lattice/backend/internal/core"
	"github.com/lattice/backend/internal/events"
	"github.com/lattice/backend/internal/http/handlers"
	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := setupLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sessionTTL, err := cfg.SessionTTL()
	if err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}
	retention, err := cfg.SessionRetention()
	if err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}
	staleness, err := cfg.StalenessWindow()
	if err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}
	providerTimeout, err := cfg.ProviderTimeout()
	if err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}

	logger.Info("Starting Lattice Backend",
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("provider_enabled", cfg.Provider.Enabled))

	// Setup optional NATS connection for linkage notifications
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = setupNATS(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to setup NATS", zap.Error(err))
		}
		defer natsConn.Close()
	}

	// Create stores
	sessionStore := repo.NewSessionStore(retention)
	accountStore := repo.NewAccountStore()
	transactionStore := repo.NewTransactionStore()

	// Create provider clients and the mode selector. Credential absence is
	// not an error: it selects simulation mode per call.
	liveClient := provider.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.ClientID,
		cfg.Provider.ClientSecret,
		providerTimeout,
		cfg.Provider.MaxAttempts,
		logger,
	)
	simulator := provider.NewSimulator(sessionTTL, nil)
	selector := provider.NewSelector(&cfg.Provider, liveClient, simulator)

	if selector.Resolve() == provider.ModeSimulated {
		logger.Warn("Provider credentials absent or toggle off - running in simulation mode")
	}

	// Create core services
	publisher := events.NewPublisher(natsConn, logger)
	sessionService := core.NewSessionService(sessionStore, selector, cfg.Provider.SessionType, sessionTTL, logger)
	linkService := core.NewLinkService(sessionService, accountStore, selector, publisher, logger)
	accountService := core.NewAccountService(accountStore, selector, staleness, logger)
	syncService := core.NewSyncService(accountStore, transactionStore, selector, publisher, logger)
	merchantService := core.NewMerchantService(selector, logger)
	onboardingService := core.NewOnboardingService(sessionService, linkService, logger)

	jwtConfig := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)

	// HTTP server
	if err := runHTTPServer(ctx, cfg, onboardingService, accountService, syncService, merchantService, jwtConfig, logger); err != nil {
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func setupLogger(level string, jsonFormat bool) (*zap.Logger, error) {
	var cfg zap.Config
	if jsonFormat {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func setupNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS connection established", zap.String("url", url))
	return nc, nil
}

func runHTTPServer(ctx context.Context, cfg *config.Config, onboarding *core.OnboardingService, accounts *core.AccountService, sync *core.SyncService, merchants *core.MerchantService, jwtConfig *auth.JWTConfig, logger *zap.Logger) error {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// API handlers
	apiHandler := handlers.NewAPIHandler(onboarding, accounts, sync, merchants, jwtConfig, logger)
	router.Mount("/", apiHandler.Routes())

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	logger.Info("Starting HTTP server", zap.String("addr", addr))

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal or context cancellation
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	logger.Info("HTTP server stopped")
	return nil
}
