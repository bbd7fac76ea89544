// Command fallcentalert runs the discounted-product alert server: it crawls
// the upstream deals feed on a schedule, maintains the bounded product
// catalog and alert log, and fans alerts out to connected viewers over
// websockets, each with its own dismissed-alert state.
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dilduck/fallcentalert/internal/alert"
	"github.com/dilduck/fallcentalert/internal/catalog"
	"github.com/dilduck/fallcentalert/internal/config"
	"github.com/dilduck/fallcentalert/internal/crawler"
	"github.com/dilduck/fallcentalert/internal/domain"
	"github.com/dilduck/fallcentalert/internal/engine"
	httpapi "github.com/dilduck/fallcentalert/internal/http"
	"github.com/dilduck/fallcentalert/internal/observability"
	"github.com/dilduck/fallcentalert/internal/scheduler"
	"github.com/dilduck/fallcentalert/internal/session"
	"github.com/dilduck/fallcentalert/internal/storage"
	"github.com/dilduck/fallcentalert/internal/sysutil"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("storage open failed")
	}
	defer store.Close()

	// Seed from persisted state; any load failure falls back to empty
	// defaults, by design.
	settings := domain.DefaultSettings()
	if saved, err := store.LoadSettings(ctx); err != nil {
		log.Warn().Err(err).Msg("settings load failed, using defaults")
	} else if saved != nil {
		settings = *saved
	}

	cat := catalog.NewStore(catalog.DefaultCapacity)
	if products, err := store.LoadProducts(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog load failed, starting empty")
	} else if len(products) > 0 {
		cat.Seed(products)
		log.Info().Int("products", len(products)).Msg("catalog restored")
	}

	// The alert log and session registry are ephemeral: rebuilt empty on
	// every start.
	alertLog := alert.NewLog(alert.DefaultLogCapacity)
	registry := session.NewRegistry(alertLog, log.Logger)

	source := crawler.NewClient(cfg.CrawlURL, cfg.CrawlTimeout, log.Logger)
	eng := engine.New(cat, alertLog, registry, source, store, settings, log.Logger)

	go session.NewSweeper(registry, cfg.SweepInterval, cfg.SessionIdleTTL, log.Logger).Run(ctx)
	go scheduler.New(eng, cfg.InitialCrawlDelay, log.Logger).Run(ctx)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, eng, registry, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Persist durable state best-effort before the listener closes.
	if err := store.SaveProducts(shutdownCtx, cat.All()); err != nil {
		log.Error().Err(err).Msg("catalog save failed")
	}
	if err := store.SaveSettings(shutdownCtx, eng.Settings()); err != nil {
		log.Error().Err(err).Msg("settings save failed")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}
