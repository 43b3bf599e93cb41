package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

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

	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve(observability.InitRegistry())

	log.Info().
		Str("spec", cfg.SchedulerSpec).
		Int("workers", cfg.Workers).
		Msg("scheduler starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	registry := buildProviders(cfg)
	classifier, fallback := buildClassifiers(cfg)

	aggs := app.NewAggregateService(repo, cache)
	runner := app.NewRunner(cfg.Workers)
	sync := app.NewSyncService(repo, registry, classifier, fallback, aggs, runner,
		cfg.ManualCooldown, cfg.SyncWindowDays, cfg.SyncInterval)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SchedulerSpec, func() {
		if err := sync.RunScheduledPass(context.Background(), time.Now().UTC()); err != nil {
			log.Error().Err(err).Msg("scheduled pass failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.SchedulerSpec).Msg("invalid scheduler spec")
	}
	c.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("scheduler stopping")
	<-c.Stop().Done()
	runner.Wait()
	log.Info().Msg("scheduler stopped")
}

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
