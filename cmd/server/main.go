// Command mailhub-server starts the web mail HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/billing"
	"github.com/avolkov87/mailhub/internal/config"
	"github.com/avolkov87/mailhub/internal/identity"
	"github.com/avolkov87/mailhub/internal/mailsync"
	"github.com/avolkov87/mailhub/internal/migrate"
	"github.com/avolkov87/mailhub/internal/provider"
	"github.com/avolkov87/mailhub/internal/quota"
	"github.com/avolkov87/mailhub/internal/repository/postgres"
	httpserver "github.com/avolkov87/mailhub/internal/server/http"
	"github.com/avolkov87/mailhub/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the HTTP server.
func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	threadRepo := postgres.NewThreadRepo(db)

	// External collaborators
	prov := provider.New(provider.Config{
		BaseURL:      cfg.Provider.BaseURL,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		ReturnURL:    cfg.AppURL + "/api/callback",
	}, logger)
	ident := identity.NewHTTPClient(cfg.Identity.BaseURL, cfg.Identity.APIKey)
	bill := billing.NewHTTPClient(cfg.Billing.BaseURL, cfg.Billing.APIKey)

	// Services
	policy := quota.NewPolicy(cfg.Quota.FreeAccounts, cfg.Quota.ProAccounts)
	linkSvc := service.NewLinkService(userRepo, accountRepo, ident, bill, prov, policy, logger)
	mailSvc := service.NewMailService(accountRepo, threadRepo, prov, logger)

	state := mailsync.NewState()
	srv := httpserver.New(ctx, linkSvc, mailSvc, accountRepo, state,
		cfg.Sync.Interval, cfg.Sync.CountRefresh, logger)
	verifier := identity.NewSessionVerifier([]byte(cfg.SessionSecret))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		srv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			_ = httpSrv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
