package db

import (
	"context"
	"time"

	"dgc-transports/internal/database"
	"dgc-transports/internal/models"

	"github.com/uptrace/bun"
)

// DB is the trip template and trip instance store. Bun is either the pool
// or a transaction.
type DB struct {
	Bun     bun.IDB
	Timeout time.Duration
}

func New(idb bun.IDB, timeout time.Duration) *DB {
	return &DB{Bun: idb, Timeout: timeout}
}

// WithTx returns a copy bound to tx.
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx, Timeout: d.Timeout}
}

// ---------------- TEMPLATES ----------------

func (d *DB) GetTemplate(ctx context.Context, id int64) (*models.TripTemplate, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var t models.TripTemplate
	err := d.Bun.NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "trip template")
	}
	return &t, nil
}

// ListActiveTemplates returns active templates whose window contains date.
func (d *DB) ListActiveTemplates(ctx context.Context, date string) ([]models.TripTemplate, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var templates []models.TripTemplate
	err := d.Bun.NewSelect().
		Model(&templates).
		Where("status = ?", models.TemplateStatusActive).
		Where("start_date <= ?", date).
		Where("end_date >= ?", date).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "trip template")
	}
	return templates, nil
}

// FindTemplatesByRoute returns active templates on the route whose window
// contains date. vehicleTypeID 0 matches any type.
func (d *DB) FindTemplatesByRoute(ctx context.Context, pickupCityID, dropoffCityID, vehicleTypeID int64, date string) ([]models.TripTemplate, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var templates []models.TripTemplate
	q := d.Bun.NewSelect().
		Model(&templates).
		Where("pickup_city_id = ?", pickupCityID).
		Where("dropoff_city_id = ?", dropoffCityID).
		Where("status = ?", models.TemplateStatusActive).
		Where("start_date <= ?", date).
		Where("end_date >= ?", date)
	if vehicleTypeID != 0 {
		q = q.Where("vehicle_type_id = ?", vehicleTypeID)
	}
	if err := q.Order("id ASC").Scan(ctx); err != nil {
		return nil, database.Classify(err, "trip template")
	}
	return templates, nil
}

func (d *DB) CreateTemplate(ctx context.Context, t *models.TripTemplate) error {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	_, err := d.Bun.NewInsert().Model(t).Exec(ctx)
	return database.Classify(err, "trip template")
}

func (d *DB) SetTemplateStatus(ctx context.Context, id int64, status models.TemplateStatus) error {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Bun.NewUpdate().
		Model((*models.TripTemplate)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return database.Classify(err, "trip template")
	}
	return database.RequireAffected(res, "trip template")
}

// GetTemplateDetails resolves the names shown on tickets for template id.
func (d *DB) GetTemplateDetails(ctx context.Context, id int64) (*models.TemplateDetails, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var details models.TemplateDetails
	err := d.Bun.NewSelect().
		TableExpr("trip_templates AS t").
		ColumnExpr("t.id AS template_id").
		ColumnExpr("pc.name AS pickup_city").
		ColumnExpr("dc.name AS dropoff_city").
		ColumnExpr("ts.departure_time").
		ColumnExpr("v.plate_number").
		ColumnExpr("vt.name AS vehicle_type").
		Join("JOIN cities AS pc ON pc.id = t.pickup_city_id").
		Join("JOIN cities AS dc ON dc.id = t.dropoff_city_id").
		Join("JOIN time_slots AS ts ON ts.id = t.time_slot_id").
		Join("JOIN vehicles AS v ON v.id = t.vehicle_id").
		Join("JOIN vehicle_types AS vt ON vt.id = t.vehicle_type_id").
		Where("t.id = ?", id).
		Limit(1).
		Scan(ctx, &details)
	if err != nil {
		return nil, database.Classify(err, "trip template")
	}
	return &details, nil
}

// ---------------- REFERENCE DATA ----------------

func (d *DB) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var v models.Vehicle
	if err := d.Bun.NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, database.Classify(err, "vehicle")
	}
	return &v, nil
}

func (d *DB) CityExists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	ok, err := d.Bun.NewSelect().Model((*models.City)(nil)).Where("id = ?", id).Exists(ctx)
	return ok, database.Classify(err, "city")
}

func (d *DB) VehicleTypesByID(ctx context.Context, ids []int64) (map[int64]models.VehicleType, error) {
	out := make(map[int64]models.VehicleType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var types []models.VehicleType
	if err := d.Bun.NewSelect().Model(&types).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, database.Classify(err, "vehicle type")
	}
	for _, vt := range types {
		out[vt.ID] = vt
	}
	return out, nil
}

func (d *DB) TimeSlotsByID(ctx context.Context, ids []int64) (map[int64]models.TimeSlot, error) {
	out := make(map[int64]models.TimeSlot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var slots []models.TimeSlot
	if err := d.Bun.NewSelect().Model(&slots).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, database.Classify(err, "time slot")
	}
	for _, s := range slots {
		out[s.ID] = s
	}
	return out, nil
}

type paidCount struct {
	TemplateID int64 `bun:"template_id"`
	Seats      int   `bun:"seats"`
}

// CountPaidSeats returns the number of seat-holding bookings per template on date.
func (d *DB) CountPaidSeats(ctx context.Context, templateIDs []int64, date string) (map[int64]int, error) {
	out := make(map[int64]int, len(templateIDs))
	if len(templateIDs) == 0 {
		return out, nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var rows []paidCount
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Column("template_id").
		ColumnExpr("COUNT(*) AS seats").
		Where("template_id IN (?)", bun.In(templateIDs)).
		Where("trip_date = ?", date).
		Where("payment_status = ?", models.PaymentStatusPaid).
		Where("status <> ?", models.BookingStatusCancelled).
		Group("template_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	for _, r := range rows {
		out[r.TemplateID] = r.Seats
	}
	return out, nil
}

// ---------------- INSTANCES ----------------

func (d *DB) InstanceExists(ctx context.Context, templateID int64, date string, vehicleID int64) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	ok, err := d.Bun.NewSelect().
		Model((*models.TripInstance)(nil)).
		Where("template_id = ?", templateID).
		Where("trip_date = ?", date).
		Where("vehicle_id = ?", vehicleID).
		Exists(ctx)
	return ok, database.Classify(err, "trip instance")
}

// CreateInstance inserts inst unless (template, date, vehicle) already exists.
// It reports whether a row was written.
func (d *DB) CreateInstance(ctx context.Context, inst *models.TripInstance) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Bun.NewInsert().
		Model(inst).
		On("CONFLICT (template_id, trip_date, vehicle_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, database.Classify(err, "trip instance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, database.Classify(err, "trip instance")
	}
	return n > 0, nil
}

// GetInstance returns the active instance of templateID on date.
func (d *DB) GetInstance(ctx context.Context, templateID int64, date string) (*models.TripInstance, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var inst models.TripInstance
	err := d.Bun.NewSelect().
		Model(&inst).
		Where("template_id = ?", templateID).
		Where("trip_date = ?", date).
		Where("status = ?", models.InstanceStatusActive).
		Order("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "trip instance")
	}
	return &inst, nil
}

func (d *DB) ListInstances(ctx context.Context, date string) ([]models.TripInstance, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var instances []models.TripInstance
	err := d.Bun.NewSelect().Model(&instances).Where("trip_date = ?", date).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "trip instance")
	}
	return instances, nil
}

// AdjustInstanceBooked moves the denormalized seat counter by delta, never below zero.
// A trip that was never materialized has no counter and is left alone.
func (d *DB) AdjustInstanceBooked(ctx context.Context, templateID int64, date string, delta int) error {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	_, err := d.Bun.NewUpdate().
		Model((*models.TripInstance)(nil)).
		Set("booked_seats = CASE WHEN booked_seats + ? < 0 THEN 0 ELSE booked_seats + ? END", delta, delta).
		Where("template_id = ?", templateID).
		Where("trip_date = ?", date).
		Where("status = ?", models.InstanceStatusActive).
		Exec(ctx)
	return database.Classify(err, "trip instance")
}
