package reports

import (
	"context"
	"time"

	"dgc-transports/internal/database"
	"dgc-transports/internal/models"

	"github.com/uptrace/bun"
)

// DB handles reporting queries and vehicle ownership updates
type DB struct {
	Bun     bun.IDB
	Timeout time.Duration
}

// NewDB creates a new reports DB handler
func NewDB(idb bun.IDB, timeout time.Duration) *DB {
	return &DB{Bun: idb, Timeout: timeout}
}

// WithTx returns a copy bound to tx
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx, Timeout: d.Timeout}
}

// VehiclesByInvestor retrieves the vehicles currently owned by an investor
func (d *DB) VehiclesByInvestor(ctx context.Context, investorID string) ([]models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var vehicles []models.Vehicle
	err := d.Bun.NewSelect().
		Model(&vehicles).
		Where("investor_id = ?", investorID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "vehicle")
	}
	return vehicles, nil
}

// RevenueData represents raw paid-booking totals for one vehicle
type RevenueData struct {
	VehicleID int64   `bun:"vehicle_id"`
	Revenue   float64 `bun:"revenue"`
	Seats     int     `bun:"seats"`
}

// GetRevenueByVehicle sums paid, non-cancelled bookings on trips driven by
// each vehicle between from and to inclusive
func (d *DB) GetRevenueByVehicle(ctx context.Context, vehicleIDs []int64, from, to string) ([]RevenueData, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var rows []RevenueData
	err := d.Bun.NewRaw(`
		SELECT
			t.vehicle_id AS vehicle_id,
			SUM(b.price) AS revenue,
			COUNT(b.id) AS seats
		FROM
			bookings b
		JOIN
			trip_templates t ON t.id = b.template_id
		WHERE
			t.vehicle_id IN (?)
			AND b.payment_status = ?
			AND b.status <> ?
			AND b.trip_date >= ?
			AND b.trip_date <= ?
		GROUP BY
			t.vehicle_id
	`, bun.In(vehicleIDs), models.PaymentStatusPaid, models.BookingStatusCancelled, from, to).Scan(ctx, &rows)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return rows, nil
}

// ExpenseData represents raw expense totals for one vehicle
type ExpenseData struct {
	VehicleID int64   `bun:"vehicle_id"`
	Expenses  float64 `bun:"expenses"`
}

// GetExpensesByVehicle sums vehicle expenses dated between from and to inclusive
func (d *DB) GetExpensesByVehicle(ctx context.Context, vehicleIDs []int64, from, to string) ([]ExpenseData, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var rows []ExpenseData
	err := d.Bun.NewSelect().
		Model((*models.VehicleExpense)(nil)).
		Column("vehicle_id").
		ColumnExpr("SUM(amount) AS expenses").
		Where("vehicle_id IN (?)", bun.In(vehicleIDs)).
		Where("expense_date >= ?", from).
		Where("expense_date <= ?", to).
		Group("vehicle_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, database.Classify(err, "vehicle expense")
	}
	return rows, nil
}

// GetVehicle retrieves one vehicle by id
func (d *DB) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var v models.Vehicle
	err := d.Bun.NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "vehicle")
	}
	return &v, nil
}

// SetVehicleInvestor stores the owner of a vehicle; an empty investorID
// clears it
func (d *DB) SetVehicleInvestor(ctx context.Context, vehicleID int64, investorID string) error {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	q := d.Bun.NewUpdate().Model((*models.Vehicle)(nil)).Where("id = ?", vehicleID)
	if investorID == "" {
		q = q.Set("investor_id = NULL")
	} else {
		q = q.Set("investor_id = ?", investorID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return database.Classify(err, "vehicle")
	}
	return database.RequireAffected(res, "vehicle")
}
