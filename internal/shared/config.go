package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	GoogleBase     string
	GoogleKey      string
	FacebookBase   string
	FacebookKey    string
	TrustpilotBase string
	TrustpilotKey  string
	ProviderRPS    int

	SentimentBase string
	SentimentKey  string

	Workers        int
	ManualCooldown time.Duration
	SyncWindowDays int // trailing window for SCHEDULED/MANUAL jobs
	SyncInterval   time.Duration
	SchedulerSpec  string
	StaleAfter     time.Duration
	CacheTTL       time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviewpulse?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		GoogleBase:     env("GOOGLE_REVIEWS_BASE_URL", "https://mybusiness.googleapis.com/v4"),
		GoogleKey:      env("GOOGLE_REVIEWS_API_KEY", ""),
		FacebookBase:   env("FACEBOOK_GRAPH_BASE_URL", "https://graph.facebook.com/v19.0"),
		FacebookKey:    env("FACEBOOK_ACCESS_TOKEN", ""),
		TrustpilotBase: env("TRUSTPILOT_BASE_URL", "https://api.trustpilot.com/v1"),
		TrustpilotKey:  env("TRUSTPILOT_API_KEY", ""),
		ProviderRPS:    atoi("PROVIDER_RPS", 5),

		SentimentBase: env("SENTIMENT_API_URL", ""),
		SentimentKey:  env("SENTIMENT_API_KEY", ""),

		Workers:        atoi("SYNC_WORKERS", 8),
		ManualCooldown: time.Duration(atoi("MANUAL_COOLDOWN_HOURS", 24)) * time.Hour,
		SyncWindowDays: atoi("SYNC_WINDOW_DAYS", 30),
		SyncInterval:   time.Duration(atoi("SYNC_INTERVAL_HOURS", 24)) * time.Hour,
		SchedulerSpec:  env("SCHEDULER_SPEC", "@every 15m"),
		StaleAfter:     time.Duration(atoi("STALE_JOB_MINUTES", 60)) * time.Minute,
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.GoogleKey == "" && c.FacebookKey == "" && c.TrustpilotKey == "" {
		log.Warn().Msg("no provider credentials configured")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
