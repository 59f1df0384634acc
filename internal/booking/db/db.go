package db

import (
	"context"
	"database/sql"
	"time"

	"dgc-transports/internal/database"
	"dgc-transports/internal/models"

	"github.com/uptrace/bun"
)

// openStatuses are the states of a reservation that has not been paid yet.
var openStatuses = []models.BookingStatus{models.BookingStatusPending, models.BookingStatusPendingPayment}

type DB struct {
	Bun     bun.IDB
	Timeout time.Duration
}

func New(idb bun.IDB, timeout time.Duration) *DB {
	return &DB{Bun: idb, Timeout: timeout}
}

func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx, Timeout: d.Timeout}
}

// RunInTx runs fn in a transaction; fn must use the *DB it is handed.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, d.WithTx(tx))
	})
}

// ---------------- BOOKINGS ----------------

// CreateBookings inserts all bookings of one reservation. IDs are filled in.
func (d *DB) CreateBookings(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	_, err := d.Bun.NewInsert().Model(&bookings).Exec(ctx)
	return database.Classify(err, "booking")
}

func (d *DB) PNRExists(ctx context.Context, pnr string) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	ok, err := d.Bun.NewSelect().Model((*models.Booking)(nil)).Where("pnr = ?", pnr).Exists(ctx)
	return ok, database.Classify(err, "booking")
}

func (d *DB) GetByPNR(ctx context.Context, pnr string) (*models.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var b models.Booking
	err := d.Bun.NewSelect().Model(&b).Where("pnr = ?", pnr).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return &b, nil
}

// ListByHoldToken returns the bookings of one reservation ordered by seat.
func (d *DB) ListByHoldToken(ctx context.Context, token string) ([]models.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("hold_token = ?", token).
		Order("seat_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return bookings, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		OrderExpr("trip_date DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return bookings, nil
}

// ListOpenOnSeat returns unpaid, open bookings for one seat of a trip.
func (d *DB) ListOpenOnSeat(ctx context.Context, templateID int64, tripDate string, seat int) ([]models.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("template_id = ?", templateID).
		Where("trip_date = ?", tripDate).
		Where("seat_number = ?", seat).
		Where("payment_status = ?", models.PaymentStatusUnpaid).
		Where("status IN (?)", bun.In(openStatuses)).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return bookings, nil
}

// ListStaleUnpaid returns open, unpaid bookings created before cutoff.
func (d *DB) ListStaleUnpaid(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("payment_status = ?", models.PaymentStatusUnpaid).
		Where("status IN (?)", bun.In(openStatuses)).
		Where("created_at < ?", cutoff.UTC()).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return bookings, nil
}

// ---------------- TRANSITIONS ----------------

// MarkPaid confirms every open booking of a reservation. A paid booking
// already holding one of the seats surfaces as a conflict on "seat".
func (d *DB) MarkPaid(ctx context.Context, holdToken, reference string, at time.Time) (int64, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", models.PaymentStatusPaid).
		Set("status = ?", models.BookingStatusConfirmed).
		Set("payment_reference = ?", reference).
		Set("updated_at = ?", at.UTC()).
		Where("hold_token = ?", holdToken).
		Where("payment_status = ?", models.PaymentStatusUnpaid).
		Where("status IN (?)", bun.In(openStatuses)).
		Exec(ctx)
	if err != nil {
		return 0, database.Classify(err, "seat")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Classify(err, "booking")
	}
	return n, nil
}

// ---------------- PAYMENTS ----------------

// ClaimPayment records that claim.Reference paid for claim.HoldToken. A
// reference claimed before surfaces as a conflict on "payment".
func (d *DB) ClaimPayment(ctx context.Context, claim *models.PaymentClaim) error {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	_, err := d.Bun.NewInsert().Model(claim).Exec(ctx)
	return database.Classify(err, "payment")
}

// GetPaymentClaim returns the claim on reference, or NotFound when the
// reference has not paid for anything yet.
func (d *DB) GetPaymentClaim(ctx context.Context, reference string) (*models.PaymentClaim, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var claim models.PaymentClaim
	err := d.Bun.NewSelect().Model(&claim).Where("reference = ?", reference).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "payment")
	}
	return &claim, nil
}

// Transition moves booking id from one of from to to. It reports false when
// the booking was not in an allowed state.
func (d *DB) Transition(ctx context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, at time.Time) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	switch to {
	case models.BookingStatusBoarded:
		q = q.Set("boarded_at = ?", at.UTC()).Where("payment_status = ?", models.PaymentStatusPaid)
	case models.BookingStatusArrived:
		q = q.Set("arrived_at = ?", at.UTC())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, database.Classify(err, "booking")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, database.Classify(err, "booking")
	}
	return n > 0, nil
}

// Cancel marks booking id cancelled if it has not been boarded yet. Unpaid
// bookings also get payment_status cancelled; paid ones keep their payment
// record for refunds.
func (d *DB) Cancel(ctx context.Context, id int64, at time.Time) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingStatusCancelled).
		Set("payment_status = CASE WHEN payment_status = ? THEN ? ELSE payment_status END",
			models.PaymentStatusUnpaid, models.PaymentStatusCancelled).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.BookingStatus{
			models.BookingStatusPending,
			models.BookingStatusPendingPayment,
			models.BookingStatusConfirmed,
		})).
		Exec(ctx)
	if err != nil {
		return false, database.Classify(err, "booking")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, database.Classify(err, "booking")
	}
	return n > 0, nil
}

// CancelUnpaid cancels the listed bookings that are still open and unpaid,
// returning how many changed.
func (d *DB) CancelUnpaid(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingStatusCancelled).
		Set("payment_status = ?", models.PaymentStatusCancelled).
		Set("updated_at = ?", at.UTC()).
		Where("id IN (?)", bun.In(ids)).
		Where("payment_status = ?", models.PaymentStatusUnpaid).
		Where("status IN (?)", bun.In(openStatuses)).
		Exec(ctx)
	if err != nil {
		return 0, database.Classify(err, "booking")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Classify(err, "booking")
	}
	return n, nil
}

// PaidSeatsAmong returns which of seats are already held by paid bookings
// under a different reservation.
func (d *DB) PaidSeatsAmong(ctx context.Context, templateID int64, tripDate string, seats []int, holdToken string) ([]int, error) {
	ctx, cancel := database.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var taken []int
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Column("seat_number").
		Where("template_id = ?", templateID).
		Where("trip_date = ?", tripDate).
		Where("seat_number IN (?)", bun.In(seats)).
		Where("payment_status = ?", models.PaymentStatusPaid).
		Where("status <> ?", models.BookingStatusCancelled).
		Where("(hold_token IS NULL OR hold_token <> ?)", holdToken).
		Order("seat_number ASC").
		Scan(ctx, &taken)
	if err != nil {
		return nil, database.Classify(err, "booking")
	}
	return taken, nil
}
