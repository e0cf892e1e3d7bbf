// Command server runs the website generator API.
//
// @title       Website Generator API
// @version     1.0
// @description Generates websites from prompts through a model gateway and keeps a per-user history.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-sitegen-backend/internal/config"
	"github.com/tbourn/go-sitegen-backend/internal/feed"
	"github.com/tbourn/go-sitegen-backend/internal/gateway"
	httpapi "github.com/tbourn/go-sitegen-backend/internal/http"
	"github.com/tbourn/go-sitegen-backend/internal/observability"
	"github.com/tbourn/go-sitegen-backend/internal/publish"
	"github.com/tbourn/go-sitegen-backend/internal/repo"
	"github.com/tbourn/go-sitegen-backend/internal/services"
	"github.com/tbourn/go-sitegen-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion,
		attribute.String("sitegen.gateway.provider", cfg.Gateway.Provider),
		attribute.String("db.system", cfg.DBDriver),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open record store")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate record store")
	}

	broker := feed.NewBroker(feed.Options{MaxRPS: cfg.Feed.MaxRPS, Burst: cfg.Feed.Burst})
	listenerDone := make(chan struct{})
	switch cfg.Feed.Source {
	case "postgres":
		l := &feed.Listener{DSN: cfg.DatabaseURL, Channel: repo.ChangeChannel, Broker: broker}
		go func() {
			defer close(listenerDone)
			_ = l.Run(ctx)
		}()
	default:
		close(listenerDone)
		if err := feed.RegisterCallbacks(db, broker); err != nil {
			log.Fatal().Err(err).Msg("register feed callbacks")
		}
	}

	gw, err := newGateway(ctx, cfg.Gateway)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Gateway.Provider).Msg("gateway setup failed")
	}
	if cfg.Gateway.APIKey == "" {
		log.Warn().Msg("GATEWAY_API_KEY is empty; every generation will fail as unauthorized")
	}

	history := services.NewHistoryService(db, broker, cfg.Feed.SearchCacheSize, cfg.Feed.SearchCacheTTL)
	generations := &services.GenerationService{
		Gateway:        gw,
		History:        history,
		MaxPromptRunes: cfg.Gateway.MaxPromptRunes,
	}
	if cfg.Publish.Enabled {
		p, err := publish.NewS3Publisher(publish.Config{
			Endpoint:      cfg.Publish.Endpoint,
			Region:        cfg.Publish.Region,
			AccessKey:     cfg.Publish.AccessKey,
			SecretKey:     cfg.Publish.SecretKey,
			Bucket:        cfg.Publish.Bucket,
			UseSSL:        cfg.Publish.UseSSL,
			PublicBaseURL: cfg.Publish.PublicBaseURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("publisher setup failed")
		}
		generations.Publisher = p
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		DB:          db,
		Generations: generations,
		History:     history,
		Feed:        broker,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db, time.Hour)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	history.Close()
	broker.Close()
	<-listenerDone
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

func newGateway(ctx context.Context, gc config.GatewayConfig) (gateway.Generator, error) {
	opts := gateway.Options{URL: gc.URL, APIKey: gc.APIKey, Model: gc.Model, Timeout: gc.Timeout}
	if gc.Provider == "gemini" {
		// GATEWAY_URL targets the OpenAI-compatible endpoint; the Gemini SDK
		// only takes an explicit base URL override.
		opts.URL = gc.GeminiBaseURL
		return gateway.NewGeminiClient(ctx, opts)
	}
	return gateway.NewClient(opts), nil
}

// purgeIdempotency drops expired Idempotency-Key records every interval.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
