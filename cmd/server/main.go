package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	prbook "github.com/Hwndy/PR-BOOK"
	echoapi "github.com/Hwndy/PR-BOOK/api/echo"
	"github.com/Hwndy/PR-BOOK/cache"
	cacheredis "github.com/Hwndy/PR-BOOK/cache/redis"
	"github.com/Hwndy/PR-BOOK/config"
	"github.com/Hwndy/PR-BOOK/domain"
	"github.com/Hwndy/PR-BOOK/internal/metrics"
	"github.com/Hwndy/PR-BOOK/internal/server"
	"github.com/Hwndy/PR-BOOK/mongodb"
	"github.com/Hwndy/PR-BOOK/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg)
	zlog.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("log_level", cfg.LogLevel).
		Msg("Starting pr-book server")

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}

	ctx := context.Background()

	// MongoDB is the system of record; if it is unreachable at boot the
	// server still comes up in memory-only mode and tokens simply do not
	// survive a restart.
	var (
		repo        domain.TokenRepository
		health      server.HealthChecker
		usingMemory bool
	)
	if initErr := mongodb.Init(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		zlog.Warn().Err(initErr).Msg("MongoDB unavailable, running in memory-only mode. Tokens will not be persisted.")
		repo = cache.NewMemoryTokenRepository()
		usingMemory = true
	} else {
		repo, err = mongodb.NewEbookTokenRepository(ctx, mongodb.DB())
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to initialize token repository")
		}
		health = mongodb.Ping
	}

	var activity prbook.ActivityCache
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			zlog.Warn().Err(pingErr).Msg("Redis unavailable, falling back to in-process session tracking")
			activity = cache.NewActivityCache(cfg.SessionWindow())
		} else {
			activity = cacheredis.NewActivityStore(redisClient, "prbook", cfg.SessionWindow())
		}
	} else {
		activity = cache.NewActivityCache(cfg.SessionWindow())
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	tracker := prbook.NewSessionTracker(repo, activity, cfg.SessionWindow())
	issuer := prbook.NewIssuer(repo, cfg.ReadingBaseURL, cfg.TokenTTL())
	validator := prbook.NewValidator(repo, tracker, cfg.SessionWindow())
	gate := prbook.NewContentGate(validator, cfg.EbookPath, cfg.EbookFilename)

	api := echoapi.NewEbookAPI(issuer, validator, tracker, gate)
	httpServer := server.NewHTTPServer(cfg, api, registry, health)

	// The TTL index reaps expired documents on its own; the sweep keeps the
	// memory store honest and the metrics moving.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go sweepExpired(sweepCtx, repo, cfg.SweepInterval())

	go func() {
		zlog.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			zlog.Fatal().Err(serveErr).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down...")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if !usingMemory {
		mongodb.Close(shutdownCtx)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("TracerProvider shutdown error")
	}
	zlog.Info().Msg("Server stopped.")
}

func setupLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func sweepExpired(ctx context.Context, repo domain.TokenRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.DeleteExpired(ctx)
			if err != nil {
				zlog.Error().Err(err).Msg("Expiry sweep failed")
				continue
			}
			if removed > 0 {
				metrics.ExpiredTokensSweptTotal.Add(float64(removed))
				zlog.Debug().Int64("removed", removed).Msg("Expiry sweep removed tokens")
			}
		}
	}
}
