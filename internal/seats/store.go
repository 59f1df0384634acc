package seats

import (
	"context"
	"time"

	"dgc-transports/internal/database"
	"dgc-transports/internal/models"

	"github.com/uptrace/bun"
)

// Store reads the two inputs of an availability calculation.
type Store interface {
	TemplateCapacity(ctx context.Context, templateID int64) (int, error)
	PaidSeats(ctx context.Context, templateID int64, tripDate string) ([]int, error)
}

type BunStore struct {
	Bun     bun.IDB
	Timeout time.Duration
}

func NewBunStore(idb bun.IDB, timeout time.Duration) *BunStore {
	return &BunStore{Bun: idb, Timeout: timeout}
}

// TemplateCapacity is the capacity of the template's vehicle type.
func (s *BunStore) TemplateCapacity(ctx context.Context, templateID int64) (int, error) {
	ctx, cancel := database.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var capacity int
	err := s.Bun.NewSelect().
		TableExpr("trip_templates AS t").
		Join("JOIN vehicle_types AS vt ON vt.id = t.vehicle_type_id").
		ColumnExpr("vt.capacity").
		Where("t.id = ?", templateID).
		Limit(1).
		Scan(ctx, &capacity)
	if err != nil {
		return 0, database.Classify(err, "trip template")
	}
	return capacity, nil
}

// PaidSeats lists the seat numbers held by paid, non-cancelled bookings.
func (s *BunStore) PaidSeats(ctx context.Context, templateID int64, tripDate string) ([]int, error) {
	ctx, cancel := database.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var seats []int
	err := s.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Column("seat_number").
		Where("template_id = ?", templateID).
		Where("trip_date = ?", tripDate).
		Where("payment_status = ?", models.PaymentStatusPaid).
		Where("status <> ?", models.BookingStatusCancelled).
		Order("seat_number ASC").
		Scan(ctx, &seats)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return seats, nil
}
