package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// USGS feed configuration.
	FeedBaseURL  string
	QueryBaseURL string
	FetchTimeout time.Duration
	CacheTTL     time.Duration

	// Kafka mirror of newly observed earthquakes.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Place search configuration.
	GeocodeEnabled   bool
	GeocodeBaseURL   string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int
	GeocodeUserAgent string
}

// LoadDotEnv loads variables from a .env file in the working directory, if
// present. Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("CACHE_TTL", "2m")
	if err != nil {
		return nil, err
	}

	geocodeTimeout, err := parsePositiveDuration("GEOCODE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedBaseURL:  sharedcfg.EnvOrDefault("FEED_BASE_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"),
		QueryBaseURL: sharedcfg.EnvOrDefault("QUERY_BASE_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
		FetchTimeout: fetchTimeout,
		CacheTTL:     cacheTTL,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquakes"),

		GeocodeEnabled:   os.Getenv("GEOCODE_ENABLED") != "false",
		GeocodeBaseURL:   sharedcfg.EnvOrDefault("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: parseGeocodeCacheSize(),
		GeocodeUserAgent: sharedcfg.EnvOrDefault("GEOCODE_USER_AGENT", "quakewatch/1.0"),
	}

	if cfg.FeedBaseURL == "" {
		return nil, errors.New("FEED_BASE_URL is required")
	}
	if cfg.QueryBaseURL == "" {
		return nil, errors.New("QUERY_BASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseGeocodeCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
