// Marketplace bot server: Telegram long-polling front end plus the admin API.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/taskmarket/internal/api"
	"github.com/ashureev/taskmarket/internal/bot"
	"github.com/ashureev/taskmarket/internal/config"
	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/files"
	"github.com/ashureev/taskmarket/internal/identity"
	"github.com/ashureev/taskmarket/internal/maintenance"
	"github.com/ashureev/taskmarket/internal/middleware"
	"github.com/ashureev/taskmarket/internal/moderation"
	"github.com/ashureev/taskmarket/internal/session"
	"github.com/ashureev/taskmarket/internal/store"
	"github.com/ashureev/taskmarket/internal/telegram"
	"github.com/ashureev/taskmarket/web"
)

const (
	pollTimeout   = 30
	dispatchQueue = 64
)

// sessionBackend is a session store the server can health-check and close.
type sessionBackend interface {
	session.Store
	Ping(ctx context.Context) error
	Close() error
}

type memoryBackend struct {
	*session.MemoryStore
}

func (memoryBackend) Ping(context.Context) error { return nil }
func (memoryBackend) Close() error               { return nil }

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "session_store", cfg.SessionStore)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected")

	if cfg.CatalogFile != "" {
		if err := seedCatalog(ctx, repo, cfg.CatalogFile); err != nil {
			return err
		}
		slog.Info("Catalog seeded", "file", cfg.CatalogFile)
	}

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	tg, client, err := telegram.Dial(cfg.BotToken, logger)
	if err != nil {
		return err
	}
	slog.Info("Connected to Telegram", "bot", tg.Self.UserName)

	gate := moderation.NewGate(repo, client, moderation.Config{
		ModeratorChatID: cfg.ModeratorChatID,
		Moderators:      cfg.ModeratorIDs,
		EditCooldown:    cfg.EditCooldown,
	}, logger)

	b, err := bot.New(bot.Config{
		Sessions:   sessions,
		Renderer:   client,
		Callbacks:  client,
		Repo:       repo,
		Moderation: gate,
		Files:      files.NewStore(cfg.FilesDir, client, logger),
	}, logger)
	if err != nil {
		return err
	}

	worker, err := maintenance.New(repo, sessions, maintenance.Config{
		Schedule:       cfg.MaintenanceSchedule,
		SessionIdleTTL: cfg.SessionIdleTTL,
	}, logger)
	if err != nil {
		return err
	}
	if err := worker.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router(cfg, repo, sessions, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	dispatcher := telegram.NewDispatcher(cfg.DispatchShards, dispatchQueue, b.HandleEvent, logger)
	dispatcher.Start(ctx)
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		telegram.Listen(ctx, tg, pollTimeout, dispatcher.Dispatch, logger)
	}()
	slog.Info("Bot is polling for updates", "shards", cfg.DispatchShards)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	slog.Info("Shutting down gracefully...")
	<-listenDone
	dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openSessions(ctx context.Context, cfg *config.Config) (sessionBackend, error) {
	if cfg.SessionStore == config.SessionRedis {
		// Redis expiry doubles as idle eviction when a ttl is set.
		s, err := session.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionIdleTTL)
		if err != nil {
			return nil, err
		}
		slog.Info("Session store connected", "backend", "redis")
		return s, nil
	}
	return memoryBackend{session.NewMemoryStore()}, nil
}

func seedCatalog(ctx context.Context, repo store.Repository, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cat, err := domain.ReadCatalog(f)
	if err != nil {
		return err
	}
	return repo.SeedCatalog(ctx, cat)
}

func router(cfg *config.Config, repo store.Repository, sessions sessionBackend, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AdminOrigins))

	api.NewHealthHandler(map[string]func(context.Context) error{
		"database": repo.Ping,
		"sessions": sessions.Ping,
	}).RegisterHealth(r)

	if cfg.AdminToken != "" {
		admin := api.NewAdminHandler(api.NewHandler(repo, logger))
		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(cfg.AdminToken))
			admin.RegisterRoutes(r)
		})
	} else {
		slog.Warn("ADMIN_TOKEN not set, admin API disabled")
	}

	r.Handle("/*", web.Dashboard())
	return r
}
