package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TemplateStatus string

const (
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusInactive TemplateStatus = "inactive"
)

type RecurrenceType string

const (
	RecurrenceDay   RecurrenceType = "day"
	RecurrenceWeek  RecurrenceType = "week"
	RecurrenceMonth RecurrenceType = "month"
	RecurrenceYear  RecurrenceType = "year"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurrenceDay, RecurrenceWeek, RecurrenceMonth, RecurrenceYear:
		return true
	}
	return false
}

// TripTemplate is a recurring offering on one route. StartDate and EndDate
// are civil dates (YYYY-MM-DD), both inclusive.
type TripTemplate struct {
	bun.BaseModel `bun:"table:trip_templates"`

	ID             int64          `bun:"id,pk,autoincrement" json:"id"`
	PickupCityID   int64          `bun:"pickup_city_id,notnull" json:"pickup_city_id"`
	DropoffCityID  int64          `bun:"dropoff_city_id,notnull" json:"dropoff_city_id"`
	VehicleID      int64          `bun:"vehicle_id,notnull" json:"vehicle_id"`
	VehicleTypeID  int64          `bun:"vehicle_type_id,notnull" json:"vehicle_type_id"`
	TimeSlotID     int64          `bun:"time_slot_id,notnull" json:"time_slot_id"`
	Price          float64        `bun:"price,notnull" json:"price"`
	Status         TemplateStatus `bun:"status,notnull" json:"status"`
	StartDate      string         `bun:"start_date,type:varchar(10),notnull" json:"start_date"`
	EndDate        string         `bun:"end_date,type:varchar(10),notnull" json:"end_date"`
	RecurrenceType RecurrenceType `bun:"recurrence_type,notnull" json:"recurrence_type"`
	RecurrenceDays []string       `bun:"recurrence_days,type:text" json:"recurrence_days,omitempty"`
	CreatedAt      time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// TripInstance is a template materialized for one date and vehicle.
type TripInstance struct {
	bun.BaseModel `bun:"table:trip_instances"`

	ID          int64          `bun:"id,pk,autoincrement" json:"id"`
	TemplateID  int64          `bun:"template_id,notnull,unique:uq_instance_template_date_vehicle" json:"template_id"`
	TripDate    string         `bun:"trip_date,type:varchar(10),notnull,unique:uq_instance_template_date_vehicle" json:"trip_date"`
	VehicleID   int64          `bun:"vehicle_id,notnull,unique:uq_instance_template_date_vehicle" json:"vehicle_id"`
	Status      InstanceStatus `bun:"status,notnull" json:"status"`
	BookedSeats int            `bun:"booked_seats,notnull,default:0" json:"booked_seats"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Availability is the seat picture of a (template, date) trip.
type Availability struct {
	TemplateID  int64  `json:"template_id"`
	TripDate    string `json:"trip_date"`
	Capacity    int    `json:"total_capacity"`
	BookedSeats []int  `json:"booked_seats"`
	Available   int    `json:"available_seats"`
}

// TripSearchResult is one bookable trip returned by the search endpoint.
type TripSearchResult struct {
	TemplateID     int64          `json:"template_id"`
	TripDate       string         `json:"trip_date"`
	PickupCityID   int64          `json:"pickup_city_id"`
	DropoffCityID  int64          `json:"dropoff_city_id"`
	VehicleID      int64          `json:"vehicle_id"`
	VehicleTypeID  int64          `json:"vehicle_type_id"`
	TimeSlotID     int64          `json:"time_slot_id"`
	DepartureTime  string         `json:"departure_time"`
	Price          float64        `json:"price"`
	RecurrenceType RecurrenceType `json:"recurrence_type"`
	Capacity       int            `json:"total_capacity"`
	BookedCount    int            `json:"booked_count"`
	Available      int            `json:"available_seats"`
}

// TemplateDetails carries the display names of a template's route and vehicle.
type TemplateDetails struct {
	TemplateID    int64  `bun:"template_id" json:"template_id"`
	PickupCity    string `bun:"pickup_city" json:"pickup_city"`
	DropoffCity   string `bun:"dropoff_city" json:"dropoff_city"`
	DepartureTime string `bun:"departure_time" json:"departure_time"`
	PlateNumber   string `bun:"plate_number" json:"plate_number"`
	VehicleType   string `bun:"vehicle_type" json:"vehicle_type"`
}
