package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicbook-io/clinicbook/libs/config"
	"github.com/clinicbook-io/clinicbook/libs/db"
	"github.com/clinicbook-io/clinicbook/libs/httpx"
	"github.com/clinicbook-io/clinicbook/libs/kafkax"
	otelx "github.com/clinicbook-io/clinicbook/libs/otel"
	"github.com/clinicbook-io/clinicbook/libs/runtime"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/availability"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/booking"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/handlers"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/storage"
)

const serviceName = "booking-service"

const defaultSlotTemplate = "9:00 AM,10:00 AM,11:00 AM,1:00 PM,2:00 PM,3:00 PM,4:00 PM"

func main() {
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	port, err := config.Port("PORT", "8080")
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	brokers := config.String("KAFKA_BROKERS", "localhost:9092")

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := storage.NewAppointmentRepository(pool)

	index, err := availability.NewIndex(repo, config.List("SLOT_TEMPLATE", defaultSlotTemplate))
	if err != nil {
		logger.Error("invalid slot template", "error", err)
		os.Exit(1)
	}

	clinicName := config.String("CLINIC_NAME", "ClinicBook Dental")
	clinicAddress := config.String("CLINIC_ADDRESS", "")
	coord := booking.NewCoordinator(repo, index, booking.Config{
		ClinicName:      clinicName,
		ClinicAddress:   clinicAddress,
		ReminderOffsets: reminderOffsets(),
	}, logger)

	publisher := outbox.NewPublisher(pool, kafkax.SplitBrokers(brokers), logger)
	go publisher.Run(ctx)

	handler := handlers.New(coord, index, repo, clinicAddress, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "postgres", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	rateLimit := config.Int("RATE_LIMIT", 20)
	rateWindow := time.Duration(config.Int("RATE_WINDOW_SECONDS", 60)) * time.Second
	var limiter httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, serviceName).Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		limiter = httpx.NewRateLimiter(rateLimit, rateWindow).Middleware()
	}

	publicMux := http.NewServeMux()
	handler.RegisterPublic(publicMux)
	public := httpx.Chain(publicMux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		limiter,
	)

	adminMux := http.NewServeMux()
	handler.RegisterAdmin(adminMux)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/v1/public/", public)
	mux.Handle("/api/v1/", adminMux)

	root := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(root, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func reminderOffsets() []time.Duration {
	var offsets []time.Duration
	for _, v := range config.List("REMINDER_OFFSETS_MINUTES", "1440,60") {
		mins, err := strconv.Atoi(v)
		if err != nil || mins <= 0 {
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	return offsets
}
