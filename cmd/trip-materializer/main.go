// Command trip-materializer creates the trip instances for one date. It is
// meant to run nightly from cron or a Kubernetes CronJob and is safe to
// rerun: existing instances are left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dgc-transports/internal/booking"
	bookingdb "dgc-transports/internal/booking/db"
	seatlock "dgc-transports/internal/booking/redis"
	"dgc-transports/internal/config"
	"dgc-transports/internal/database"
	"dgc-transports/internal/kafka"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/materialize"
	"dgc-transports/internal/metrics"
	"dgc-transports/internal/recurrence"
	"dgc-transports/internal/seats"
	"dgc-transports/internal/trips"
	tripdb "dgc-transports/internal/trips/db"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/uptrace/bun"
)

const jobName = "trip-materializer"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	loc := cfg.Booking.Location()

	date := flag.String("date", recurrence.Today(loc).String(), "trip date to materialize (YYYY-MM-DD)")
	workers := flag.Int("workers", cfg.Batch.Workers, "templates materialized concurrently; 1 runs the date in one transaction")
	expirePending := flag.Duration("expire-pending", 0, "also cancel unpaid bookings older than this (0 disables)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for the run")
	pushURL := flag.String("pushgateway", os.Getenv("METRICS_PUSHGATEWAY_URL"), "Prometheus Pushgateway URL for run metrics")
	flag.Parse()

	log := logger.NewWriterLogger(os.Stdout)

	day, err := recurrence.ParseDate(*date)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("-date: %v", err))
	}
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var events kafka.Publisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		events = producer
	}

	m := metrics.New(jobName)
	job := materialize.NewJob(bunDB, cfg.Database.QueryTimeout, *workers, events, cfg.Kafka.Topics.TripMaterialized, m, log)

	summary, runErr := job.Run(ctx, day)
	if runErr == nil {
		log.Info("MATERIALIZE", fmt.Sprintf("%s: %d active, %d created, %d existing, %d failed",
			summary.Date, summary.Active, summary.Created, summary.Existing, summary.Failed))
	}

	if *expirePending > 0 && runErr == nil {
		n, err := expireStale(ctx, bunDB, cfg, events, *expirePending, log)
		if err != nil {
			log.Error("SWEEP", fmt.Sprintf("expire stale bookings: %v", err))
		} else {
			m.Expired(n)
			log.Info("SWEEP", fmt.Sprintf("cancelled %d unpaid bookings older than %s", n, *expirePending))
		}
	}

	if *pushURL != "" {
		if err := push.New(*pushURL, jobName).Gatherer(m.Registry).Push(); err != nil {
			log.Warn("METRICS", fmt.Sprintf("push to %s failed: %v", *pushURL, err))
		}
	}

	if runErr != nil {
		log.Fatal("MATERIALIZE", runErr.Error())
	}
}

// expireStale cancels abandoned reservations. Seat holds are released
// through Redis so the booking service sees the seats free again.
func expireStale(ctx context.Context, bunDB *bun.DB, cfg *config.Config, events kafka.Publisher, olderThan time.Duration, log *logger.Logger) (int, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()

	timeout := cfg.Database.QueryTimeout
	instances := tripdb.New(bunDB, timeout)
	svc := booking.NewService(
		bookingdb.New(bunDB, timeout),
		instances,
		trips.NewService(instances, log),
		seats.NewCalculator(seats.NewBunStore(bunDB, timeout), log),
		seatlock.NewSeatLock(client, cfg.Booking.SeatHoldTTL, log),
		nil,
		events,
		cfg.Kafka.Topics,
		cfg.Booking,
		log,
	)
	return svc.ExpireStale(ctx, olderThan)
}
