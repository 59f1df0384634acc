package models

import (
	"time"

	"github.com/uptrace/bun"
)

type City struct {
	bun.BaseModel `bun:"table:cities"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull,unique" json:"name"`
}

type TimeSlot struct {
	bun.BaseModel `bun:"table:time_slots"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	Label         string `bun:"label,notnull" json:"label"`
	DepartureTime string `bun:"departure_time,type:varchar(5),notnull" json:"departure_time"`
}

type VehicleType struct {
	bun.BaseModel `bun:"table:vehicle_types"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Name     string `bun:"name,notnull" json:"name"`
	Capacity int    `bun:"capacity,notnull" json:"capacity"`
}

// Vehicle is owned by at most one investor; InvestorID is empty when unassigned.
type Vehicle struct {
	bun.BaseModel `bun:"table:vehicles"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	PlateNumber   string `bun:"plate_number,notnull,unique" json:"plate_number"`
	VehicleTypeID int64  `bun:"vehicle_type_id,notnull" json:"vehicle_type_id"`
	InvestorID    string `bun:"investor_id,nullzero" json:"investor_id,omitempty"`
}

type VehicleExpense struct {
	bun.BaseModel `bun:"table:vehicle_expenses"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	VehicleID   int64     `bun:"vehicle_id,notnull" json:"vehicle_id"`
	Amount      float64   `bun:"amount,notnull" json:"amount"`
	Description string    `bun:"description" json:"description"`
	ExpenseDate string    `bun:"expense_date,type:varchar(10),notnull" json:"expense_date"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
