package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending        BookingStatus = "pending"
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusBoarded        BookingStatus = "boarded"
	BookingStatusArrived        BookingStatus = "arrived"
	BookingStatusCancelled      BookingStatus = "cancelled"
)

// ParseBookingStatus normalizes stored or client-supplied status text.
// Legacy spellings of boarded ("has boarded", "has_boarded") are accepted.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return BookingStatusPending, true
	case "pending_payment", "pending payment":
		return BookingStatusPendingPayment, true
	case "confirmed":
		return BookingStatusConfirmed, true
	case "boarded", "has boarded", "has_boarded":
		return BookingStatusBoarded, true
	case "arrived":
		return BookingStatusArrived, true
	case "cancelled", "canceled":
		return BookingStatusCancelled, true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Booking holds exactly one seat for one passenger on one trip.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID               int64         `bun:"id,pk,autoincrement" json:"id"`
	PNR              string        `bun:"pnr,notnull,unique" json:"pnr"`
	UserID           string        `bun:"user_id,notnull" json:"user_id"`
	TemplateID       int64         `bun:"template_id,notnull" json:"template_id"`
	TripInstanceID   int64         `bun:"trip_instance_id,nullzero" json:"trip_instance_id,omitempty"`
	TripDate         string        `bun:"trip_date,type:varchar(10),notnull" json:"trip_date"`
	SeatNumber       int           `bun:"seat_number,notnull" json:"seat_number"`
	PassengerName    string        `bun:"passenger_name,notnull" json:"passenger_name"`
	PassengerPhone   string        `bun:"passenger_phone" json:"passenger_phone,omitempty"`
	Price            float64       `bun:"price,notnull" json:"price"`
	Status           BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus    PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentReference string        `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	HoldToken        string        `bun:"hold_token,nullzero" json:"-"`
	CreatedAt        time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	BoardedAt        time.Time     `bun:"boarded_at,nullzero" json:"boarded_at,omitempty"`
	ArrivedAt        time.Time     `bun:"arrived_at,nullzero" json:"arrived_at,omitempty"`
}

// HoldsSeat reports whether the booking blocks its seat for other passengers.
func (b Booking) HoldsSeat() bool {
	return b.PaymentStatus == PaymentStatusPaid && b.Status != BookingStatusCancelled
}

type PassengerRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	SeatNumber int    `json:"seat_number" validate:"required,min=1"`
}

type ReserveRequest struct {
	TemplateID int64              `json:"template_id" validate:"required,min=1"`
	TripDate   string             `json:"trip_date" validate:"required,tripdate"`
	Passengers []PassengerRequest `json:"passengers" validate:"required,min=1,max=20,dive"`
}

type ReserveResponse struct {
	HoldToken string    `json:"hold_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Total     float64   `json:"total"`
	Bookings  []Booking `json:"bookings"`
}

type ConfirmPaymentRequest struct {
	HoldToken string `json:"hold_token" validate:"required"`
	Reference string `json:"reference" validate:"required,max=128"`
}

// PaymentClaim ties a settled payment reference to the one reservation it
// paid for. A reference is claimed at most once.
type PaymentClaim struct {
	bun.BaseModel `bun:"table:payment_claims"`

	Reference string    `bun:"reference,pk" json:"reference"`
	HoldToken string    `bun:"hold_token,notnull" json:"hold_token"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Amount    float64   `bun:"amount,notnull" json:"amount"`
	ClaimedAt time.Time `bun:"claimed_at,notnull,default:current_timestamp" json:"claimed_at"`
}
