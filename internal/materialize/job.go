// Package materialize turns active trip templates into concrete trip
// instances for one calendar date.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dgc-transports/internal/kafka"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/metrics"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
	tripdb "dgc-transports/internal/trips/db"

	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// Summary reports what one run did.
type Summary struct {
	Date     string `json:"date"`
	Active   int    `json:"active"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
	Failed   int    `json:"failed"`
}

// InstanceEvent is published once per created instance.
type InstanceEvent struct {
	InstanceID  int64  `json:"instance_id"`
	TemplateID  int64  `json:"template_id"`
	VehicleID   int64  `json:"vehicle_id"`
	TripDate    string `json:"trip_date"`
	BookedSeats int    `json:"booked_seats"`
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeExisting
)

type Job struct {
	DB      *bun.DB
	Timeout time.Duration
	// Workers > 1 materializes templates concurrently, one short
	// transaction per template. Otherwise the whole date is one transaction.
	Workers int
	Events  kafka.Publisher
	Topic   string
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

func NewJob(db *bun.DB, timeout time.Duration, workers int, events kafka.Publisher, topic string, m *metrics.Metrics, log *logger.Logger) *Job {
	return &Job{DB: db, Timeout: timeout, Workers: workers, Events: events, Topic: topic, Metrics: m, Logger: log}
}

// Run creates the missing instances for date. It is safe to run repeatedly:
// existing instances are counted, not duplicated. A failure on one template
// is logged and skipped; only cancellation or a broken transaction aborts
// the run.
func (j *Job) Run(ctx context.Context, date recurrence.Date) (Summary, error) {
	start := time.Now()
	summary := Summary{Date: date.String()}

	store := tripdb.New(j.DB, j.Timeout)
	candidates, err := store.ListActiveTemplates(ctx, date.String())
	if err != nil {
		j.Metrics.ObserveMaterialization(0, 0, 0, time.Since(start), err)
		return summary, err
	}
	active := recurrence.ResolveActiveTemplates(candidates, recurrence.RouteFilter{}, date)
	summary.Active = len(active)
	j.Logger.LogProcess("MATERIALIZE", fmt.Sprintf("%s: %d of %d windowed templates run today", date, len(active), len(candidates)))

	var created []models.TripInstance
	if j.Workers > 1 {
		created, err = j.runParallel(ctx, active, date, &summary)
	} else {
		created, err = j.runSingle(ctx, active, date, &summary)
	}
	j.Metrics.ObserveMaterialization(summary.Created, summary.Existing, summary.Failed, time.Since(start), err)
	if err != nil {
		j.Logger.Error("MATERIALIZE", fmt.Sprintf("%s aborted: %v", date, err))
		return summary, err
	}

	for _, inst := range created {
		j.publish(ctx, inst)
	}
	j.Logger.LogProcess("MATERIALIZE", fmt.Sprintf("%s done in %s: created=%d existing=%d failed=%d",
		date, time.Since(start).Round(time.Millisecond), summary.Created, summary.Existing, summary.Failed))
	return summary, nil
}

// runSingle materializes every template inside one transaction. Each
// template gets a savepoint so its failure does not poison the rest.
func (j *Job) runSingle(ctx context.Context, templates []models.TripTemplate, date recurrence.Date, summary *Summary) ([]models.TripInstance, error) {
	var created []models.TripInstance
	local := *summary

	err := j.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, t := range templates {
			if err := ctx.Err(); err != nil {
				return err
			}
			var (
				inst models.TripInstance
				out  outcome
			)
			err := tx.RunInTx(ctx, nil, func(ctx context.Context, sp bun.Tx) error {
				var err error
				inst, out, err = j.materialize(ctx, tripdb.New(j.DB, j.Timeout).WithTx(sp), t, date)
				return err
			})
			if err != nil {
				if isAbort(err) {
					return err
				}
				local.Failed++
				j.Logger.LogTrip("SKIP", t.ID, date.String(), err.Error())
				continue
			}
			record(&local, out)
			if out == outcomeCreated {
				created = append(created, inst)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	*summary = local
	return created, nil
}

// runParallel materializes templates on Workers goroutines. Templates are
// independent, so each one's check and insert share a transaction and
// nothing else.
func (j *Job) runParallel(ctx context.Context, templates []models.TripTemplate, date recurrence.Date, summary *Summary) ([]models.TripInstance, error) {
	var (
		mu      sync.Mutex
		created []models.TripInstance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Workers)
	for _, t := range templates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				inst models.TripInstance
				out  outcome
			)
			err := j.DB.RunInTx(gctx, nil, func(ctx context.Context, tx bun.Tx) error {
				var err error
				inst, out, err = j.materialize(ctx, tripdb.New(j.DB, j.Timeout).WithTx(tx), t, date)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if isAbort(err) {
					return err
				}
				summary.Failed++
				j.Logger.LogTrip("SKIP", t.ID, date.String(), err.Error())
				return nil
			}
			record(summary, out)
			if out == outcomeCreated {
				created = append(created, inst)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return created, nil
}

// materialize creates the instance of t on date unless it already exists.
// The booked counter starts at the paid bookings taken before the trip was
// materialized.
func (j *Job) materialize(ctx context.Context, store *tripdb.DB, t models.TripTemplate, date recurrence.Date) (models.TripInstance, outcome, error) {
	day := date.String()
	exists, err := store.InstanceExists(ctx, t.ID, day, t.VehicleID)
	if err != nil {
		return models.TripInstance{}, 0, err
	}
	if exists {
		return models.TripInstance{}, outcomeExisting, nil
	}

	paid, err := store.CountPaidSeats(ctx, []int64{t.ID}, day)
	if err != nil {
		return models.TripInstance{}, 0, err
	}
	inst := models.TripInstance{
		TemplateID:  t.ID,
		TripDate:    day,
		VehicleID:   t.VehicleID,
		Status:      models.InstanceStatusActive,
		BookedSeats: paid[t.ID],
		CreatedAt:   time.Now().UTC(),
	}
	ok, err := store.CreateInstance(ctx, &inst)
	if err != nil {
		return models.TripInstance{}, 0, err
	}
	if !ok {
		j.Logger.Warn("MATERIALIZE", fmt.Sprintf("template %d on %s was materialized concurrently", t.ID, day))
		return models.TripInstance{}, outcomeExisting, nil
	}
	j.Logger.LogTrip("MATERIALIZE", t.ID, day, fmt.Sprintf("instance %d on vehicle %d", inst.ID, t.VehicleID))
	return inst, outcomeCreated, nil
}

func (j *Job) publish(ctx context.Context, inst models.TripInstance) {
	if j.Events == nil || j.Topic == "" {
		return
	}
	evt := InstanceEvent{
		InstanceID:  inst.ID,
		TemplateID:  inst.TemplateID,
		VehicleID:   inst.VehicleID,
		TripDate:    inst.TripDate,
		BookedSeats: inst.BookedSeats,
	}
	if err := j.Events.Publish(ctx, j.Topic, fmt.Sprintf("%d:%s", inst.TemplateID, inst.TripDate), evt); err != nil {
		j.Logger.Error("KAFKA", fmt.Sprintf("publish instance %d: %v", inst.ID, err))
	}
}

func record(s *Summary, out outcome) {
	switch out {
	case outcomeCreated:
		s.Created++
	case outcomeExisting:
		s.Existing++
	}
}

func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
