package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	outlineadapter "github.com/B3hnamR/OutlineManager/internal/adapter/driven/outline"
	sqliteadapter "github.com/B3hnamR/OutlineManager/internal/adapter/driven/sqlite"
	httphandler "github.com/B3hnamR/OutlineManager/internal/adapter/driving/http"
	"github.com/B3hnamR/OutlineManager/internal/application"
	"github.com/B3hnamR/OutlineManager/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load process configuration.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"config_path", cfg.ConfigPath,
	)

	// 2. Deployment settings provider; fail fast if config.json is unreadable.
	deploy := config.NewDeploymentProvider(cfg.ConfigPath)
	if _, err := deploy.Deployment(); err != nil {
		return err
	}

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Back up any existing database before the schema is touched.
	if backupPath, err := sqliteadapter.BackupExisting(cfg.DBPath); err != nil {
		slog.Warn("database backup failed, continuing without one", "error", err)
	} else if backupPath != "" {
		slog.Info("database backed up", "path", backupPath)
	}

	// 5. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 6. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 7. Wire adapters and services.
	keyStore := sqliteadapter.NewKeyRepo(db)
	outlineClient := outlineadapter.NewClient(func() (string, error) {
		dep, err := deploy.Deployment()
		if err != nil {
			return "", err
		}
		return dep.OutlineAPI, nil
	})

	lifecycleSvc := application.NewLifecycleService(keyStore, outlineClient)
	listSvc := application.NewListService(keyStore, outlineClient)
	subsSvc := application.NewSubscriptionService(keyStore, outlineClient, deploy)
	statsSvc := application.NewStatsService()

	// 8. HTTP handler and server.
	handler := httphandler.NewHandler(lifecycleSvc, listSvc, subsSvc, statsSvc, deploy, slog.Default())
	mux := httphandler.NewServeMux(handler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("outline manager started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
