// Package reports aggregates paid bookings and expenses into investor
// reports and manages vehicle ownership.
package reports

import (
	"context"
	"fmt"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/recurrence"

	"github.com/uptrace/bun"
)

// VehicleReport contains the totals for one vehicle
type VehicleReport struct {
	VehicleID   int64   `json:"vehicle_id"`
	PlateNumber string  `json:"plate_number"`
	SeatsSold   int     `json:"seats_sold"`
	Revenue     float64 `json:"revenue"`
	Expenses    float64 `json:"expenses"`
	Net         float64 `json:"net"`
}

// InvestorReport represents aggregated figures for every vehicle an
// investor owns over a date range
type InvestorReport struct {
	InvestorID    string          `json:"investor_id"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Vehicles      []VehicleReport `json:"vehicles"`
	TotalSeats    int             `json:"total_seats"`
	TotalRevenue  float64         `json:"total_revenue"`
	TotalExpenses float64         `json:"total_expenses"`
	TotalNet      float64         `json:"total_net"`
}

// Service handles reporting operations
type Service struct {
	db     *bun.DB
	store  *DB
	logger *logger.Logger
}

// NewService creates a new reports service
func NewService(db *bun.DB, store *DB, log *logger.Logger) *Service {
	return &Service{db: db, store: store, logger: log}
}

// InvestorReport builds the revenue and expense report of investorID's
// vehicles for trips dated between from and to inclusive.
func (s *Service) InvestorReport(ctx context.Context, investorID, from, to string) (*InvestorReport, error) {
	if investorID == "" {
		return nil, domain.Validation("investor_id", "required")
	}
	start, err := recurrence.ParseDate(from)
	if err != nil {
		return nil, domain.Validation("from", err.Error())
	}
	end, err := recurrence.ParseDate(to)
	if err != nil {
		return nil, domain.Validation("to", err.Error())
	}
	if end.Before(start) {
		return nil, domain.Validation("to", "must not be before from")
	}

	vehicles, err := s.store.VehiclesByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}
	report := &InvestorReport{InvestorID: investorID, From: from, To: to, Vehicles: []VehicleReport{}}
	if len(vehicles) == 0 {
		return report, nil
	}

	ids := make([]int64, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	revenue, err := s.store.GetRevenueByVehicle(ctx, ids, from, to)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.GetExpensesByVehicle(ctx, ids, from, to)
	if err != nil {
		return nil, err
	}

	byVehicle := make(map[int64]*VehicleReport, len(vehicles))
	for _, v := range vehicles {
		report.Vehicles = append(report.Vehicles, VehicleReport{VehicleID: v.ID, PlateNumber: v.PlateNumber})
	}
	for i := range report.Vehicles {
		byVehicle[report.Vehicles[i].VehicleID] = &report.Vehicles[i]
	}
	for _, r := range revenue {
		if vr, ok := byVehicle[r.VehicleID]; ok {
			vr.Revenue = r.Revenue
			vr.SeatsSold = r.Seats
		}
	}
	for _, e := range expenses {
		if vr, ok := byVehicle[e.VehicleID]; ok {
			vr.Expenses = e.Expenses
		}
	}

	for i := range report.Vehicles {
		vr := &report.Vehicles[i]
		vr.Net = vr.Revenue - vr.Expenses
		report.TotalSeats += vr.SeatsSold
		report.TotalRevenue += vr.Revenue
		report.TotalExpenses += vr.Expenses
	}
	report.TotalNet = report.TotalRevenue - report.TotalExpenses
	return report, nil
}

// AssignInvestor makes investorID the owner of vehicleID. A vehicle owned
// by someone else must be unassigned first.
func (s *Service) AssignInvestor(ctx context.Context, vehicleID int64, investorID string) error {
	if investorID == "" {
		return domain.Validation("investor_id", "required")
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := s.store.WithTx(tx)
		v, err := store.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if v.InvestorID == investorID {
			return nil
		}
		if v.InvestorID != "" {
			return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("already owned by %s", v.InvestorID)}
		}
		return store.SetVehicleInvestor(ctx, vehicleID, investorID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("INVESTOR", fmt.Sprintf("vehicle %d assigned to %s", vehicleID, investorID))
	return nil
}

// UnassignInvestor clears the owner of vehicleID.
func (s *Service) UnassignInvestor(ctx context.Context, vehicleID int64) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := s.store.WithTx(tx)
		if _, err := store.GetVehicle(ctx, vehicleID); err != nil {
			return err
		}
		return store.SetVehicleInvestor(ctx, vehicleID, "")
	})
	if err != nil {
		return err
	}
	s.logger.Info("INVESTOR", fmt.Sprintf("vehicle %d unassigned", vehicleID))
	return nil
}
