package database

import (
	"context"
	"fmt"

	"dgc-transports/internal/models"

	"github.com/uptrace/bun"
)

// Indexes shared by the embedded migrations and CreateSchema. The partial
// unique index is the authoritative guard against two paid bookings on one seat.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_bookings_paid_seat
		ON bookings (template_id, trip_date, seat_number)
		WHERE payment_status = 'paid' AND status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_trip ON bookings (template_id, trip_date)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_hold_token ON bookings (hold_token)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_claims_hold_token ON payment_claims (hold_token)`,
	`CREATE INDEX IF NOT EXISTS idx_trip_templates_route ON trip_templates (pickup_city_id, dropoff_city_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vehicles_investor ON vehicles (investor_id)`,
}

// Models lists every table owned by the service, parents first.
func Models() []interface{} {
	return []interface{}{
		(*models.City)(nil),
		(*models.TimeSlot)(nil),
		(*models.VehicleType)(nil),
		(*models.Vehicle)(nil),
		(*models.VehicleExpense)(nil),
		(*models.TripTemplate)(nil),
		(*models.TripInstance)(nil),
		(*models.Booking)(nil),
		(*models.PaymentClaim)(nil),
	}
}

// CreateSchema builds tables and indexes straight from the bun models. Tests
// and local SQLite runs use it; Postgres deployments use the migrations package.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
