package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"QuonkLedger/internal/bot"
	"QuonkLedger/internal/config"
	"QuonkLedger/internal/core"
	"QuonkLedger/internal/ingestion"
	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/observability"
	"QuonkLedger/internal/persistence"
	"QuonkLedger/internal/query"
	"QuonkLedger/internal/quote"
)

func main() {
	cfg := config.FromEnv()
	logger := observability.NewLogger("quonkbot")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Metrics & health ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// --- Storage ---
	var store ledger.Ledger
	switch cfg.Storage {
	case config.StoragePostgres:
		pg, err := ledger.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer pg.Close()

		if err := persistence.NewMigrator(pg.DB()).Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("postgres connected, migrations applied")
		store = pg

	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage; the ledger will not survive a restart")
		store = ledger.NewMemStore()
	}

	// --- Components ---
	engine := core.NewEngine(store)

	var quotes quote.Source
	switch cfg.QuoteProvider {
	case config.QuotesRandom:
		logger.Warn().Msg("using random quote source")
		quotes = quote.NewRandomSource()
	default:
		quotes = quote.NewYahooSource(quote.WithTimeout(cfg.QuoteTimeout))
	}

	queries := query.NewService(store, engine, quotes)

	// --- Price feed (optional) ---
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect nats")
		}
		defer conn.Drain()

		subscriber := ingestion.NewPriceSubscriber(conn, engine, metrics,
			observability.NewLogger("pricefeed"))
		if err := subscriber.Subscribe(ctx); err != nil {
			logger.Fatal().Err(err).Msg("subscribe price feed")
		}
		defer subscriber.Drain()
	}

	// --- Discord bot ---
	quonkBot, err := bot.New(cfg.DiscordToken, cfg.GuildID, bot.Deps{
		Store:   store,
		Engine:  engine,
		Queries: queries,
		Quotes:  quotes,
		Metrics: metrics,
		Logger:  observability.NewLogger("dispatch"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot")
	}
	if err := quonkBot.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start bot")
	}

	health.SetReady(true)
	logger.Info().Msg("quonkbot running")

	<-sigChan
	logger.Info().Msg("shutting down")
	health.SetReady(false)
	cancel()

	if err := quonkBot.Stop(); err != nil {
		logger.Error().Err(err).Msg("close discord session")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown")
	}
}
