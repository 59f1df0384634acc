package tickets

import (
	"context"
	"fmt"
	"time"

	"dgc-transports/internal/auth"
	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
	"dgc-transports/internal/tickets/pass"
	"dgc-transports/internal/tickets/qr"
)

// BookingLayer is the slice of the booking service tickets rely on.
type BookingLayer interface {
	GetByPNR(ctx context.Context, p auth.Principal, pnr string) (*models.Booking, error)
	Board(ctx context.Context, pnr string) (*models.Booking, error)
}

type TripDetails interface {
	GetTemplateDetails(ctx context.Context, id int64) (*models.TemplateDetails, error)
}

type TicketService struct {
	Bookings BookingLayer
	Trips    TripDetails
	QR       *qr.Generator
	Location *time.Location
	Logger   *logger.Logger
	Clock    func() time.Time
}

func NewTicketService(bookings BookingLayer, trips TripDetails, gen *qr.Generator, loc *time.Location, log *logger.Logger) *TicketService {
	return &TicketService{Bookings: bookings, Trips: trips, QR: gen, Location: loc, Logger: log, Clock: time.Now}
}

func (s *TicketService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// ticketable loads a booking that may carry a boarding pass.
func (s *TicketService) ticketable(ctx context.Context, p auth.Principal, pnr string) (*models.Booking, error) {
	b, err := s.Bookings.GetByPNR(ctx, p, pnr)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != models.PaymentStatusPaid || b.Status == models.BookingStatusCancelled {
		return nil, domain.ConflictError{Resource: "booking", Msg: "boarding passes are issued for paid bookings only"}
	}
	return b, nil
}

// QRCode returns the encrypted QR PNG for a paid booking.
func (s *TicketService) QRCode(ctx context.Context, p auth.Principal, pnr string) ([]byte, error) {
	b, err := s.ticketable(ctx, p, pnr)
	if err != nil {
		return nil, err
	}
	img, err := s.QR.GenerateEncryptedQR(qr.PayloadFor(*b, s.now()))
	if err != nil {
		return nil, domain.Internal("generate qr", err)
	}
	return img, nil
}

// BoardingPass renders the PDF pass for a paid booking and returns it with
// its download filename.
func (s *TicketService) BoardingPass(ctx context.Context, p auth.Principal, pnr string) ([]byte, string, error) {
	b, err := s.ticketable(ctx, p, pnr)
	if err != nil {
		return nil, "", err
	}
	trip, err := s.Trips.GetTemplateDetails(ctx, b.TemplateID)
	if err != nil {
		return nil, "", err
	}
	img, err := s.QR.GenerateEncryptedQR(qr.PayloadFor(*b, s.now()))
	if err != nil {
		return nil, "", domain.Internal("generate qr", err)
	}
	doc, err := pass.RenderBoardingPass(pass.Details{Booking: *b, Trip: *trip}, img)
	if err != nil {
		return nil, "", domain.Internal("render boarding pass", err)
	}
	s.Logger.LogBooking("PASS", b.PNR, fmt.Sprintf("boarding pass issued to %s", p.UserID))
	return doc, pass.Filename(b.PNR), nil
}

// CheckIn boards the passenger named by a scanned QR code. The code must
// match the stored booking and the trip must depart today.
func (s *TicketService) CheckIn(ctx context.Context, staff auth.Principal, code string) (*models.Booking, error) {
	payload, err := s.QR.DecryptQRData(code)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", fmt.Sprintf("scan by %s: %v", staff.UserID, err))
		return nil, err
	}

	b, err := s.Bookings.GetByPNR(ctx, staff, payload.PNR)
	if err != nil {
		return nil, err
	}
	if !payload.Matches(*b) {
		s.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("pnr %s scanned by %s", payload.PNR, staff.UserID))
		return nil, domain.Validation("qr", "code does not match the booking")
	}

	today := recurrence.DateOf(s.now(), s.Location).String()
	if b.TripDate != today {
		return nil, domain.Validation("qr", fmt.Sprintf("ticket is for %s, today is %s", b.TripDate, today))
	}

	boarded, err := s.Bookings.Board(ctx, b.PNR)
	if err != nil {
		return nil, err
	}
	s.Logger.LogBooking("CHECKIN", b.PNR, fmt.Sprintf("seat %d checked in by %s", b.SeatNumber, staff.UserID))
	return boarded, nil
}
