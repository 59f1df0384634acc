// Package api serves the booking platform over HTTP.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"dgc-transports/internal/auth"
	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/materialize"
	"dgc-transports/internal/metrics"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
	"dgc-transports/internal/reports"
	"dgc-transports/internal/trips"
	"dgc-transports/internal/utils"
)

type TripService interface {
	SearchTrips(ctx context.Context, req trips.SearchRequest) ([]models.TripSearchResult, error)
	GetTemplate(ctx context.Context, id int64) (*models.TripTemplate, error)
	CreateTemplate(ctx context.Context, t models.TripTemplate) (*models.TripTemplate, error)
	SetTemplateStatus(ctx context.Context, id int64, status models.TemplateStatus) error
}

type AvailabilityService interface {
	GetAvailability(ctx context.Context, templateID int64, tripDate string) (models.Availability, error)
}

type BookingService interface {
	Reserve(ctx context.Context, p auth.Principal, req models.ReserveRequest) (*models.ReserveResponse, error)
	ConfirmPayment(ctx context.Context, p auth.Principal, req models.ConfirmPaymentRequest) ([]models.Booking, error)
	Cancel(ctx context.Context, p auth.Principal, pnr string) (*models.Booking, error)
	Board(ctx context.Context, pnr string) (*models.Booking, error)
	Arrive(ctx context.Context, pnr string) (*models.Booking, error)
	GetByPNR(ctx context.Context, p auth.Principal, pnr string) (*models.Booking, error)
	ListMine(ctx context.Context, p auth.Principal) ([]models.Booking, error)
}

type TicketService interface {
	BoardingPass(ctx context.Context, p auth.Principal, pnr string) ([]byte, string, error)
	QRCode(ctx context.Context, p auth.Principal, pnr string) ([]byte, error)
	CheckIn(ctx context.Context, staff auth.Principal, code string) (*models.Booking, error)
}

type ReportService interface {
	InvestorReport(ctx context.Context, investorID, from, to string) (*reports.InvestorReport, error)
	AssignInvestor(ctx context.Context, vehicleID int64, investorID string) error
	UnassignInvestor(ctx context.Context, vehicleID int64) error
}

// Materializer runs the materialization job on demand for admins.
type Materializer interface {
	Run(ctx context.Context, date recurrence.Date) (materialize.Summary, error)
}

type Handler struct {
	Trips        TripService
	Seats        AvailabilityService
	Bookings     BookingService
	Tickets      TicketService
	Reports      ReportService
	Materializer Materializer
	DB           *sql.DB
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

func (h *Handler) respond(w http.ResponseWriter, status int, message string, data interface{}) {
	utils.WriteJSON(w, status, utils.SuccessResponse(message, data))
}

// fail writes the client-facing form of err. Infrastructure and unexpected
// errors are logged in full and answered generically.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := utils.ErrorFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		h.Logger.Error("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	case body.Code == domain.CodeSeatConflict:
		h.Metrics.SeatConflict()
		h.Logger.Warn("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	default:
		h.Logger.Debug("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}
	utils.WriteJSON(w, status, body)
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
