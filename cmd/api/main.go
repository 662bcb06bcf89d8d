package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"opsdesk/api/internal/app"
	"opsdesk/api/internal/archive"
	"opsdesk/api/internal/config"
	"opsdesk/api/internal/export"
	"opsdesk/api/internal/identity"
	"opsdesk/api/internal/localcache"
	"opsdesk/api/internal/logging"
	"opsdesk/api/internal/rbac"
	"opsdesk/api/internal/search"
	"opsdesk/api/internal/store"
	"opsdesk/api/internal/summary"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file read before the environment")
	addr := pflag.String("addr", "", "listen address, overrides API_ADDR")
	pflag.Parse()

	cfg := config.Load(*envFile)
	if strings.TrimSpace(*addr) != "" {
		cfg.Addr = *addr
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	cache, closeCache := openCache(cfg, logger)
	defer closeCache()

	var backend store.Backend
	if cfg.RemoteConfigured() {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		if len(applied) > 0 {
			logger.Info().Strs("versions", applied).Msg("migrations applied")
		}
		backend = store.NewPostgresStore(db)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, running in local mode")
		local := store.NewLocalStore(cache)
		bootstrapLocalAdmin(ctx, cfg, local, logger)
		backend = local
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, backend, logger)
	if meiliClient != nil {
		go searchService.ReindexAll(ctx)
	}

	deps := app.Deps{
		Backend:  backend,
		Cache:    cache,
		Search:   searchService,
		Exporter: export.NewService(),
		Logger:   logger,
	}
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.ArchiveDir).Msg("failed to create archive dir")
		}
		deps.Archive = archive.New(cfg.ArchiveDir)
	}
	if client := summary.NewClient(cfg.SummaryAPIURL, cfg.SummaryAPIKey, cfg.SummaryModel); client.Configured() {
		deps.Summarizer = client
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("mode", string(backend.Mode())).Msg("Opsdesk API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// openCache prefers Redis, then a directory of files, then memory.
func openCache(cfg config.Config, logger zerolog.Logger) (localcache.Cache, func()) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := localcache.NewRedisCache(cfg.RedisURL)
		if err == nil {
			logger.Info().Msg("using Redis for local state")
			return redisCache, func() { _ = redisCache.Close() }
		}
		logger.Warn().Err(err).Msg("redis unavailable, falling back to file cache")
	}
	if strings.TrimSpace(cfg.LocalCacheDir) != "" {
		fileCache, err := localcache.NewFileCache(cfg.LocalCacheDir)
		if err == nil {
			logger.Info().Str("dir", cfg.LocalCacheDir).Msg("using file cache for local state")
			return fileCache, func() {}
		}
		logger.Warn().Err(err).Msg("file cache unavailable, keeping local state in memory")
	}
	return localcache.NewMemory(), func() {}
}

func bootstrapLocalAdmin(ctx context.Context, cfg config.Config, local *store.LocalStore, logger zerolog.Logger) {
	if strings.TrimSpace(cfg.LocalAdminEmail) == "" || cfg.LocalAdminPassword == "" {
		return
	}
	profile, created, err := identity.NewAuthenticator(local).EnsureAccount(ctx,
		cfg.LocalAdminEmail, cfg.LocalAdminName, string(rbac.RoleSystemAdmin), cfg.LocalAdminPassword)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap local operator")
		return
	}
	if created {
		logger.Info().Str("email", profile.Email).Msg("local operator account created")
	}
}
