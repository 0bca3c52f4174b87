package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/quake-feed-service/internal/adapter/geocode"
	httpadapter "github.com/couchcryptid/quake-feed-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-feed-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-feed-service/internal/config"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/feed"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	client := usgs.NewClient(cfg.FeedBaseURL, cfg.QueryBaseURL, cfg.FetchTimeout, logger, metrics)
	strategies := feed.NewStrategies(client, logger, metrics)

	// Mirror newly observed earthquakes to Kafka (feature-flagged via KAFKA_ENABLED).
	var (
		observers []feed.Observer
		publisher *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		observers = append(observers, publisher)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	loader := feed.NewLoader(strategies, feed.NewCache(cfg.CacheTTL, clock), logger, metrics, observers...)

	// Initialize place search (feature-flagged via GEOCODE_ENABLED).
	var places domain.PlaceSearcher
	if cfg.GeocodeEnabled {
		gc := geocode.NewClient(cfg.GeocodeBaseURL, cfg.GeocodeUserAgent, cfg.GeocodeTimeout, logger, metrics)
		places = geocode.NewCachedSearcher(gc, cfg.GeocodeCacheSize, metrics)
		logger.Info("place search enabled", "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.GeocodeTimeout)
	} else {
		logger.Info("place search disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Loader:  loader,
		Places:  places,
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if publisher != nil {
		go func() {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("publisher error", "error", err)
			}
		}()
	}

	// Warm the default window so readiness reflects upstream reachability.
	go func() {
		if _, err := loader.Load(ctx, domain.FeedWindow(domain.WindowDay), false); err != nil && !domain.IsCancelled(err) {
			logger.Warn("initial feed load failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
