// Package testutil seeds in-memory databases for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"dgc-transports/internal/database"
	"dgc-transports/internal/models"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var plateSeq atomic.Int64

// Fleet is a minimal route: two cities, one vehicle type, one vehicle and a slot.
type Fleet struct {
	Pickup      models.City
	Dropoff     models.City
	VehicleType models.VehicleType
	Vehicle     models.Vehicle
	Slot        models.TimeSlot
}

func NewDB(t testing.TB) *bun.DB {
	t.Helper()
	db, err := database.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func SeedFleet(t testing.TB, db *bun.DB, capacity int) Fleet {
	t.Helper()
	ctx := context.Background()
	n := plateSeq.Add(1)

	f := Fleet{
		Pickup:      models.City{Name: fmt.Sprintf("Padang-%d", n)},
		Dropoff:     models.City{Name: fmt.Sprintf("Bukittinggi-%d", n)},
		VehicleType: models.VehicleType{Name: "Hiace", Capacity: capacity},
		Slot:        models.TimeSlot{Label: "Morning", DepartureTime: "08:00"},
	}
	for _, m := range []interface{}{&f.Pickup, &f.Dropoff, &f.VehicleType, &f.Slot} {
		_, err := db.NewInsert().Model(m).Exec(ctx)
		require.NoError(t, err)
	}

	f.Vehicle = models.Vehicle{PlateNumber: fmt.Sprintf("BA %04d XY", n), VehicleTypeID: f.VehicleType.ID}
	_, err := db.NewInsert().Model(&f.Vehicle).Exec(ctx)
	require.NoError(t, err)
	return f
}

// Template builds an active daily template on the fleet's route.
func (f Fleet) Template(start, end string) models.TripTemplate {
	return models.TripTemplate{
		PickupCityID:   f.Pickup.ID,
		DropoffCityID:  f.Dropoff.ID,
		VehicleID:      f.Vehicle.ID,
		VehicleTypeID:  f.VehicleType.ID,
		TimeSlotID:     f.Slot.ID,
		Price:          150000,
		Status:         models.TemplateStatusActive,
		StartDate:      start,
		EndDate:        end,
		RecurrenceType: models.RecurrenceDay,
	}
}

func InsertTemplate(t testing.TB, db *bun.DB, tmpl models.TripTemplate) models.TripTemplate {
	t.Helper()
	_, err := db.NewInsert().Model(&tmpl).Exec(context.Background())
	require.NoError(t, err)
	return tmpl
}

var pnrSeq atomic.Int64

// InsertBooking stores a booking for seat with the given statuses.
func InsertBooking(t testing.TB, db *bun.DB, templateID int64, tripDate string, seat int, status models.BookingStatus, payment models.PaymentStatus) models.Booking {
	t.Helper()
	b := models.Booking{
		PNR:           fmt.Sprintf("TST%05d", pnrSeq.Add(1)),
		UserID:        "user-1",
		TemplateID:    templateID,
		TripDate:      tripDate,
		SeatNumber:    seat,
		PassengerName: "Passenger",
		Price:         150000,
		Status:        status,
		PaymentStatus: payment,
	}
	_, err := db.NewInsert().Model(&b).Exec(context.Background())
	require.NoError(t, err)
	return b
}

// InsertPaid stores confirmed, paid bookings for each seat.
func InsertPaid(t testing.TB, db *bun.DB, templateID int64, tripDate string, seats ...int) {
	t.Helper()
	for _, s := range seats {
		InsertBooking(t, db, templateID, tripDate, s, models.BookingStatusConfirmed, models.PaymentStatusPaid)
	}
}
