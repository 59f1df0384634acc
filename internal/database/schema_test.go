package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func insertBooking(ctx context.Context, db *bun.DB, b models.Booking) error {
	_, err := db.NewInsert().Model(&b).Exec(ctx)
	return err
}

func TestPaidSeatUniqueIndex(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	base := models.Booking{
		UserID:        "user-1",
		TemplateID:    1,
		TripDate:      "2024-06-10",
		SeatNumber:    5,
		PassengerName: "Ana",
		Price:         100,
	}

	paid := base
	paid.PNR = "PNR00001"
	paid.Status = models.BookingStatusConfirmed
	paid.PaymentStatus = models.PaymentStatusPaid
	require.NoError(t, insertBooking(ctx, db, paid))

	pending := base
	pending.PNR = "PNR00002"
	pending.Status = models.BookingStatusPendingPayment
	pending.PaymentStatus = models.PaymentStatusUnpaid
	require.NoError(t, insertBooking(ctx, db, pending), "unpaid bookings never block a seat")

	cancelled := base
	cancelled.PNR = "PNR00003"
	cancelled.Status = models.BookingStatusCancelled
	cancelled.PaymentStatus = models.PaymentStatusPaid
	require.NoError(t, insertBooking(ctx, db, cancelled), "cancelled bookings never block a seat")

	otherDate := base
	otherDate.PNR = "PNR00004"
	otherDate.TripDate = "2024-06-11"
	otherDate.Status = models.BookingStatusConfirmed
	otherDate.PaymentStatus = models.PaymentStatusPaid
	require.NoError(t, insertBooking(ctx, db, otherDate))

	duplicate := base
	duplicate.PNR = "PNR00005"
	duplicate.Status = models.BookingStatusConfirmed
	duplicate.PaymentStatus = models.PaymentStatusPaid
	err = insertBooking(ctx, db, duplicate)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	classified := Classify(err, "seat")
	assert.True(t, domain.IsConflict(classified))
}

func TestTripInstanceUniqueConstraint(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	inst := models.TripInstance{TemplateID: 1, TripDate: "2024-06-10", VehicleID: 3, Status: models.InstanceStatusActive}
	_, err = db.NewInsert().Model(&inst).Exec(ctx)
	require.NoError(t, err)

	again := models.TripInstance{TemplateID: 1, TripDate: "2024-06-10", VehicleID: 3, Status: models.InstanceStatusActive}
	_, err = db.NewInsert().Model(&again).Exec(ctx)
	assert.True(t, IsUniqueViolation(err))
}

func TestRecurrenceDaysRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	tmpl := models.TripTemplate{
		PickupCityID: 1, DropoffCityID: 2, VehicleID: 1, VehicleTypeID: 1, TimeSlotID: 1,
		Price: 10, Status: models.TemplateStatusActive,
		StartDate: "2024-01-01", EndDate: "2024-12-31",
		RecurrenceType: models.RecurrenceWeek, RecurrenceDays: []string{"Monday", "Friday"},
	}
	_, err = db.NewInsert().Model(&tmpl).Exec(ctx)
	require.NoError(t, err)

	var got models.TripTemplate
	require.NoError(t, db.NewSelect().Model(&got).Where("id = ?", tmpl.ID).Scan(ctx))
	assert.Equal(t, []string{"Monday", "Friday"}, got.RecurrenceDays)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil, "booking"))
	assert.True(t, domain.IsNotFound(Classify(sql.ErrNoRows, "booking")))
	assert.True(t, domain.IsUnavailable(Classify(errors.New("dial tcp: refused"), "booking")))
	assert.ErrorIs(t, Classify(context.Canceled, "booking"), context.Canceled)
}

func TestPing(t *testing.T) {
	sqldb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqldb.Close()

	mock.ExpectPing()
	assert.NoError(t, Ping(context.Background(), sqldb))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, Ping(context.Background(), sqldb))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSQLite(t *testing.T) {
	assert.True(t, IsSQLite("file:dgc.db?cache=shared"))
	assert.True(t, IsSQLite("sqlite:/tmp/dgc.db"))
	assert.False(t, IsSQLite("postgres://user@localhost/dgc"))
}
