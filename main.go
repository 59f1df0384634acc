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

	"dgc-transports/internal/api"
	"dgc-transports/internal/auth"
	"dgc-transports/internal/booking"
	bookingdb "dgc-transports/internal/booking/db"
	seatlock "dgc-transports/internal/booking/redis"
	"dgc-transports/internal/config"
	"dgc-transports/internal/database"
	"dgc-transports/internal/database/migrations"
	"dgc-transports/internal/kafka"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/materialize"
	"dgc-transports/internal/metrics"
	"dgc-transports/internal/payment"
	"dgc-transports/internal/reports"
	"dgc-transports/internal/seats"
	"dgc-transports/internal/tickets"
	"dgc-transports/internal/tickets/qr"
	"dgc-transports/internal/trips"
	tripdb "dgc-transports/internal/trips/db"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const serviceName = "booking-service"

// sweepInterval is how often unpaid bookings past their hold are cancelled,
// covering expiry events Redis failed to deliver.
const sweepInterval = time.Minute

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	seatlock.EnableExpiryEvents(ctx, client, log)
	return client
}

func tokenVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.OIDCIssuer, err))
		}
		log.Info("AUTH", "Verifying tokens issued by "+cfg.OIDCIssuer)
		return v
	}
	log.Info("AUTH", "Verifying HS256 tokens with the shared secret")
	return auth.NewHMACVerifier(cfg.JWTSecret)
}

func sweepStaleBookings(ctx context.Context, svc *booking.Service, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireStale(ctx, ttl)
			if err != nil {
				log.Error("SWEEP", fmt.Sprintf("expire stale bookings: %v", err))
				continue
			}
			m.Expired(n)
		}
	}
}

func main() {
	log := logger.NewLogger(serviceName)
	defer log.Close()

	log.Info("APP", "Starting booking service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate && !database.IsSQLite(cfg.Database.DSN) {
		runner := migrations.NewRunner(bunDB, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("MIGRATION", err.Error())
		}
		log.Info("MIGRATION", "✅ Database schema is up to date")
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	var events kafka.Publisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		events = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are dropped")
	}

	payments, err := payment.New(cfg.Payment, log)
	if err != nil {
		log.Fatal("PAYMENT", err.Error())
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(serviceName)
	}

	timeout := cfg.Database.QueryTimeout
	instances := tripdb.New(bunDB, timeout)
	tripService := trips.NewService(instances, log)
	calculator := seats.NewCalculator(seats.NewBunStore(bunDB, timeout), log)
	bookingService := booking.NewService(
		bookingdb.New(bunDB, timeout),
		instances,
		tripService,
		calculator,
		seatlock.NewSeatLock(redisClient, cfg.Booking.SeatHoldTTL, log),
		payments,
		events,
		cfg.Kafka.Topics,
		cfg.Booking,
		log,
	)
	ticketService := tickets.NewTicketService(bookingService, instances, qr.NewGenerator(cfg.QR.Secret), cfg.Booking.Location(), log)
	reportService := reports.NewService(bunDB, reports.NewDB(bunDB, timeout), log)
	job := materialize.NewJob(bunDB, timeout, cfg.Batch.Workers, events, cfg.Kafka.Topics.TripMaterialized, m, log)

	seatlock.SubscribeExpiredHolds(ctx, redisClient, log, bookingService.OnHoldKeyExpired)
	go sweepStaleBookings(ctx, bookingService, cfg.Booking.SeatHoldTTL, m, log)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentSucceeded, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.Start(ctx, bookingService.HandlePaymentSucceeded)
	}

	handler := &api.Handler{
		Trips:        tripService,
		Seats:        calculator,
		Bookings:     bookingService,
		Tickets:      ticketService,
		Reports:      reportService,
		Materializer: job,
		DB:           bunDB.DB,
		Metrics:      m,
		Logger:       log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.NewRouter(handler, tokenVerifier(ctx, cfg.Auth, log), cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Booking service shutdown complete")
	}
}
