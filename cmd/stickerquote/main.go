package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"stickerquote/internal/config"
	"stickerquote/internal/http/server"
	"stickerquote/internal/infra/logging"
	"stickerquote/internal/infra/postgres"
	"stickerquote/internal/metrics"
	"stickerquote/internal/store"
	"stickerquote/internal/tokens"
)

func main() {
	cfg := config.Load()

	if err := ensureLogDir(cfg.Logger.File); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create log directory, logging to stdout: %v\n", err)
		cfg.Logger.File = ""
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	m := metrics.New()

	var storeRedis, pdfRedis *redis.Client
	if cfg.Cache.RedisHost != "" {
		storeRedis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.StoreDB})
		pdfRedis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.PDFCacheDB})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokenCache := tokens.NewCache()
	pg := postgres.NewDB()
	if cfg.Auth.Enabled {
		go bootstrapAuth(ctx, cfg, pg, tokenCache, m)
	}

	app := server.New(server.Deps{
		Config:  cfg,
		Redis:   pdfRedis,
		Store:   store.New(storeRedis, cfg.Cache.StateTTL),
		Tokens:  tokenCache,
		Metrics: m,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed

	cancel()
	for _, c := range []*redis.Client{storeRedis, pdfRedis} {
		if c != nil {
			_ = c.Close()
		}
	}
	_ = pg.Close()
}

// bootstrapAuth waits for Postgres, migrates the token schema and keeps the
// token cache fresh. Until the first load, keyed requests get 503.
func bootstrapAuth(ctx context.Context, cfg config.Config, pg *postgres.DB, cache *tokens.Cache, m *metrics.Metrics) {
	dsn, err := postgres.BuildDSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid Postgres config, API keys disabled", "error", err)
		return
	}
	db, err := postgres.Connect(ctx, pg, dsn, cfg.Auth.ConnectTimeout)
	if err != nil {
		logging.Error("Postgres unreachable, API keys disabled", "error", err)
		return
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		logging.Error("Token schema migration failed", "error", err)
	}

	reloader := tokens.NewReloader(postgres.NewTokenRepository(pg, dsn), cache, cfg.Auth.ReloadInterval)
	reloader.OnLoad(func(n int) {
		m.TokensLoaded(n)
		logging.Debug("API tokens loaded", "count", n)
	})
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
}

// ensureLogDir creates the parent directory of a log file path.
func ensureLogDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// startServer runs app until SIGINT or SIGTERM, then shuts it down gracefully
// and closes idleConnsClosed.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
