package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/drivermed-api/config"
	"github.com/jwalitptl/drivermed-api/internal/email"
	"github.com/jwalitptl/drivermed-api/internal/gateway/stripegw"
	authHandler "github.com/jwalitptl/drivermed-api/internal/handler/auth"
	"github.com/jwalitptl/drivermed-api/internal/handler/availability"
	bookingHandler "github.com/jwalitptl/drivermed-api/internal/handler/booking"
	catalogHandler "github.com/jwalitptl/drivermed-api/internal/handler/catalog"
	emailHandler "github.com/jwalitptl/drivermed-api/internal/handler/email"
	freezeHandler "github.com/jwalitptl/drivermed-api/internal/handler/freeze"
	"github.com/jwalitptl/drivermed-api/internal/handler/health"
	inquiryHandler "github.com/jwalitptl/drivermed-api/internal/handler/inquiry"
	paymentHandler "github.com/jwalitptl/drivermed-api/internal/handler/payment"
	"github.com/jwalitptl/drivermed-api/internal/handler/prometheus"
	"github.com/jwalitptl/drivermed-api/internal/middleware"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/drivermed-api/internal/repository/redis"
	"github.com/jwalitptl/drivermed-api/internal/router"
	authService "github.com/jwalitptl/drivermed-api/internal/service/auth"
	bookingService "github.com/jwalitptl/drivermed-api/internal/service/booking"
	catalogService "github.com/jwalitptl/drivermed-api/internal/service/catalog"
	"github.com/jwalitptl/drivermed-api/internal/service/discount"
	freezeService "github.com/jwalitptl/drivermed-api/internal/service/freeze"
	"github.com/jwalitptl/drivermed-api/internal/service/geo"
	inquiryService "github.com/jwalitptl/drivermed-api/internal/service/inquiry"
	"github.com/jwalitptl/drivermed-api/internal/service/notification"
	paymentService "github.com/jwalitptl/drivermed-api/internal/service/payment"
	"github.com/jwalitptl/drivermed-api/internal/service/slot"
	"github.com/jwalitptl/drivermed-api/pkg/auth"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/messaging/redis"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
	"github.com/jwalitptl/drivermed-api/pkg/security"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.LoadConfig(os.Getenv("BOOKING_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON || cfg.IsProduction(),
	})
	log.Logger = *appLogger.Zerolog()

	if cfg.Secrets.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}
	if cfg.Secrets.StripeSecretKey == "" || cfg.Secrets.StripeWebhookSecret == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required in production")
		}
		log.Warn().Msg("stripe credentials missing, payments will fail")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	db, err := postgres.NewDB(startupCtx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("drivermed", "api")

	// Optional: only webhook deduplication uses Redis.
	var processed repository.ProcessedEventStore
	redisClient, err := redis.NewClient(startupCtx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, processed-event tracking disabled")
	} else {
		defer redisClient.Close()
		processed = redisrepo.NewProcessedEventStore(redisClient, cfg.Payment.ProcessedEventTTL)
	}

	// Repositories
	locationRepo := postgres.NewLocationRepository(db)
	freezeRepo := postgres.NewFreezeRepository(db)
	serviceRepo := postgres.NewServiceRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	inquiryRepo := postgres.NewInquiryRepository(db)
	profileRepo := postgres.NewProfileRepository(db)

	// Services
	sender, err := email.NewSender(startupCtx, cfg.Email, cfg.Secrets, appLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create email sender")
	}
	notifier, err := notification.NewService(sender, notification.Config{
		AdminAddress: cfg.Email.AdminAddress,
		Timeout:      cfg.Email.Timeout,
	}, appLogger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification service")
	}

	slotCatalog, err := slot.BuildCatalog(cfg.Slots.Open, cfg.Slots.Close, cfg.Slots.IntervalMinutes)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid slot configuration")
	}
	codes, err := discount.CodesFromConfig(cfg.Discounts)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid discount configuration")
	}

	jwtSvc := auth.NewJWTService(cfg.Secrets.JWTSecret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	authSvc := authService.NewService(profileRepo, jwtSvc, security.NewBcryptHasher(0), appLogger)
	catalogSvc := catalogService.NewService(serviceRepo, locationRepo, cfg.Catalog.CacheTTL, appLogger)
	geoSvc := geo.NewService(geo.Config{
		BaseURL:  cfg.Geo.PostcodeAPIURL,
		Timeout:  cfg.Geo.Timeout,
		CacheTTL: cfg.Geo.CacheTTL,
	}, catalogSvc, appLogger, m)
	freezeSvc := freezeService.NewService(freezeRepo, locationRepo, appLogger)
	inquirySvc := inquiryService.NewService(inquiryRepo, notifier, appLogger)
	slotSvc := slot.NewService(freezeRepo, bookingRepo, slotCatalog, appLogger, m)
	resolver := discount.NewResolver(codes, m)
	bookingSvc := bookingService.NewService(bookingRepo, serviceRepo, locationRepo, slotSvc, resolver, notifier, appLogger, m)
	gateway := stripegw.New(stripegw.Config{
		SecretKey:     cfg.Secrets.StripeSecretKey,
		WebhookSecret: cfg.Secrets.StripeWebhookSecret,
		Timeout:       cfg.Payment.Timeout,
	}, m)
	paymentSvc := paymentService.NewService(paymentService.Config{
		Currency:   cfg.Payment.Currency,
		SuccessURL: cfg.Payment.SuccessURL,
		CancelURL:  cfg.Payment.CancelURL,
	}, gateway, bookingSvc, processed, appLogger, m)

	// Handlers
	bookings := bookingHandler.NewHandler(bookingSvc)
	catalog := catalogHandler.NewHandler(catalogSvc, geoSvc)
	inquiries := inquiryHandler.NewHandler(inquirySvc)

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORS.AllowedOrigins

	r := router.NewRouter(router.RouterConfig{
		Production:       cfg.IsProduction(),
		RequestTimeout:   cfg.Server.RequestTimeout,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       cors,
	}, middleware.NewAuthMiddleware(jwtSvc), router.Handlers{
		Health:  health.NewHandler(db),
		Metrics: prometheus.New(),
		Catalog: catalog,
		Public: []router.Handler{
			authHandler.NewHandler(authSvc),
			availability.NewHandler(slotSvc, resolver),
			bookings,
			paymentHandler.NewHandler(paymentSvc),
			inquiries,
		},
		Admin: []router.AdminHandler{
			bookings,
			catalog,
			freezeHandler.NewHandler(freezeSvc),
			inquiries,
			emailHandler.NewHandler(notifier),
		},
	})
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Environment).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let in-flight confirmation emails finish before the process exits.
	if err := notifier.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("notifications still pending at shutdown")
	}

	log.Info().Msg("server exited properly")
}
