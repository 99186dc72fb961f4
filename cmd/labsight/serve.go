package labsight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kamilpajak/labsight/internal/api"
	"github.com/kamilpajak/labsight/internal/auth"
	"github.com/kamilpajak/labsight/internal/config"
	"github.com/kamilpajak/labsight/internal/credentials"
	"github.com/kamilpajak/labsight/internal/database"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the lab analysis API.

Analyses are stored in PostgreSQL when database.url (or DATABASE_URL) is set.
Outside development an identity provider must be configured under auth.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, reg, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	credStore, closeStore, err := openCredentialStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	resolver := credentials.NewResolver(credStore, credentials.FromEnvironment(os.Getenv),
		credentials.WithTTL(cfg.Credentials.TTL),
		credentials.WithProviders(reg.Providers()),
		credentials.WithLogger(logger),
	)

	authMiddleware, err := newAuthMiddleware(cfg, logger)
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		Pipeline:       orch,
		Models:         reg,
		Credentials:    resolver,
		Auth:           authMiddleware,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
		Logger:         logger,
	}

	if cfg.Database.URL != "" {
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		apiCfg.Store = db

		if cfg.Database.Retention > 0 {
			go pruneAnalyses(ctx, db, cfg.Database.Retention, logger)
		}
	} else {
		logger.Warn().Msg("database.url not set; analyses will not be stored")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewServer(apiCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("env", cfg.Server.Env).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

// openCredentialStore returns the configured session key store and a func
// releasing it.
func openCredentialStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (credentials.Store, func(), error) {
	if cfg.Credentials.Store == config.StoreRedis {
		store, err := credentials.OpenRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("session credentials stored in redis")
		return store, func() { _ = store.Close() }, nil
	}

	store := credentials.NewMemoryStore()
	store.StartSweeper(ctx, time.Minute)
	return store, func() {}, nil
}

func newAuthMiddleware(cfg *config.Config, logger zerolog.Logger) (func(http.Handler) http.Handler, error) {
	authCfg := cfg.AuthSettings()
	if authCfg.Enabled() {
		verifier, err := auth.NewVerifier(authCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create auth verifier: %w", err)
		}
		return auth.Middleware(verifier, logger), nil
	}
	if cfg.IsDev() {
		logger.Warn().Msg("auth.domain not set; every request runs as the development doctor")
		return auth.DevMiddleware(logger), nil
	}
	return nil, fmt.Errorf("auth.domain is required when server.env is %q", cfg.Server.Env)
}

func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.DB, error) {
	if cfg.Database.AutoMigrate {
		logger.Info().Msg("running database migrations")
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	db, err := database.NewWithConfig(ctx, cfg.Database.URL, cfg.PoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// pruneAnalyses deletes stored analyses past the retention window, hourly.
func pruneAnalyses(ctx context.Context, db *database.DB, retention time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := db.DeleteOldLabAnalyses(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Msg("failed to prune lab analyses")
		case n > 0:
			logger.Info().Int64("deleted", n).Msg("pruned lab analyses")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
