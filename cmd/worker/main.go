package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/drivermed-api/config"
	"github.com/jwalitptl/drivermed-api/internal/repository/postgres"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/messaging/redis"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
	"github.com/jwalitptl/drivermed-api/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(db *sqlx.DB) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/health/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              healthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.LoadConfig(os.Getenv("BOOKING_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	hostname, _ := os.Hostname()
	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON || cfg.IsProduction(),
	}).WithFields(map[string]interface{}{"worker_id": hostname})
	log.Logger = *appLogger.Zerolog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	broker := redis.NewRedisBroker(client, cfg.Redis.ChannelPrefix, appLogger)
	defer broker.Close()

	m := metrics.NewMetrics("drivermed", "worker")
	outboxRepo := postgres.NewOutboxRepository(db)

	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), appLogger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid outbox configuration")
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	purger := worker.NewOutboxPurger(outboxRepo, cfg.Outbox.Retention, appLogger, m)
	if _, err := purger.Schedule(ctx, scheduler, cfg.Outbox.PurgeCron); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule housekeeping")
	}
	scheduler.Start()

	healthSrv := setupHealthCheck(db)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	processor.Start(ctx)

	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}

	log.Info().Msg("worker exited")
}
