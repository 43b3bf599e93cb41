package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "reviewpulse/internal/adapters/http_server"
	"reviewpulse/internal/adapters/observability"
	"reviewpulse/internal/adapters/providers"
	redisad "reviewpulse/internal/adapters/redis"
	"reviewpulse/internal/adapters/sentiment"
	"reviewpulse/internal/app"
	"reviewpulse/internal/domain"
	"reviewpulse/internal/shared"
	mysqlrepo "reviewpulse/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	registry := buildProviders(cfg)
	classifier, fallback := buildClassifiers(cfg)

	aggs := app.NewAggregateService(repo, cache)
	runner := app.NewRunner(cfg.Workers)
	sync := app.NewSyncService(repo, registry, classifier, fallback, aggs, runner,
		cfg.ManualCooldown, cfg.SyncWindowDays, cfg.SyncInterval)
	reviews := app.NewReviewService(repo, aggs)
	q := app.NewQueryService(repo, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Sync:       sync,
		Reviews:    reviews,
		Q:          q,
		StaleAfter: cfg.StaleAfter,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// buildProviders registers an adapter per configured credential; a source
// whose provider has no credential fails its sync with "no adapter".
func buildProviders(cfg shared.Config) *providers.Registry {
	registry := providers.NewRegistry()

	if cfg.GoogleKey != "" {
		g, err := providers.NewGoogle(cfg.GoogleBase, cfg.GoogleKey, cfg.ProviderRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("google client init failed")
		}
		registry.Register(domain.ProviderGoogle, g)
	}
	if cfg.FacebookKey != "" {
		f, err := providers.NewFacebook(cfg.FacebookBase, cfg.FacebookKey, cfg.ProviderRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("facebook client init failed")
		}
		registry.Register(domain.ProviderFacebook, f)
	}
	if cfg.TrustpilotKey != "" {
		tp, err := providers.NewTrustpilot(cfg.TrustpilotBase, cfg.TrustpilotKey, cfg.ProviderRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("trustpilot client init failed")
		}
		registry.Register(domain.ProviderTrustpilot, tp)
	}
	return registry
}

func buildClassifiers(cfg shared.Config) (domain.SentimentClassifier, domain.SentimentClassifier) {
	heuristic := sentiment.NewHeuristic()
	if cfg.SentimentBase == "" {
		return heuristic, heuristic
	}
	remote, err := sentiment.NewRemote(cfg.SentimentBase, cfg.SentimentKey)
	if err != nil {
		log.Fatal().Err(err).Msg("sentiment client init failed")
	}
	return remote, heuristic
}
