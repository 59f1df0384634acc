package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dgc-transports/internal/auth"
	bookingdb "dgc-transports/internal/booking/db"
	seatlock "dgc-transports/internal/booking/redis"
	"dgc-transports/internal/config"
	"dgc-transports/internal/domain"
	"dgc-transports/internal/kafka"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/models"
	"dgc-transports/internal/payment"
	"dgc-transports/internal/recurrence"
	"dgc-transports/internal/seats"
	tripdb "dgc-transports/internal/trips/db"
	"dgc-transports/internal/utils"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/uptrace/bun"
)

const pnrAttempts = 5

type SeatLock interface {
	HoldSeats(ctx context.Context, templateID int64, tripDate string, seats []int, token string) (bool, error)
	ReleaseSeats(ctx context.Context, templateID int64, tripDate string, seats []int, token string) error
	HeldByOthers(ctx context.Context, templateID int64, tripDate string, seats []int, token string) ([]int, error)
	Holder(ctx context.Context, templateID int64, tripDate string, seat int) (string, error)
}

var _ SeatLock = (*seatlock.SeatLock)(nil)

type TripResolver interface {
	ResolveTemplateOn(ctx context.Context, id int64, tripDate string) (*models.TripTemplate, recurrence.Date, error)
}

type AvailabilityReader interface {
	GetAvailability(ctx context.Context, templateID int64, tripDate string) (models.Availability, error)
}

// Event is the payload of every booking.* topic.
type Event struct {
	HoldToken  string               `json:"hold_token,omitempty"`
	UserID     string               `json:"user_id"`
	TemplateID int64                `json:"template_id"`
	TripDate   string               `json:"trip_date"`
	PNRs       []string             `json:"pnrs"`
	Seats      []int                `json:"seats"`
	Status     models.BookingStatus `json:"status"`
	Total      float64              `json:"total,omitempty"`
}

type Service struct {
	DB        *bookingdb.DB
	Instances *tripdb.DB
	Trips     TripResolver
	Seats     AvailabilityReader
	Lock      SeatLock
	Payments  payment.Verifier
	Events    kafka.Publisher
	Topics    config.TopicConfig
	HoldTTL   time.Duration
	Location  *time.Location
	Logger    *logger.Logger
	Clock     func() time.Time
}

func NewService(
	bookings *bookingdb.DB,
	instances *tripdb.DB,
	trips TripResolver,
	avail AvailabilityReader,
	lock SeatLock,
	payments payment.Verifier,
	events kafka.Publisher,
	topics config.TopicConfig,
	cfg config.BookingConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		DB:        bookings,
		Instances: instances,
		Trips:     trips,
		Seats:     avail,
		Lock:      lock,
		Payments:  payments,
		Events:    events,
		Topics:    topics,
		HoldTTL:   cfg.SeatHoldTTL,
		Location:  cfg.Location(),
		Logger:    log,
		Clock:     time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

// ---------------- RESERVE ----------------

// Reserve holds the requested seats and records one unpaid booking per
// passenger. Seats stay held until payment is confirmed or the hold expires.
func (s *Service) Reserve(ctx context.Context, p auth.Principal, req models.ReserveRequest) (*models.ReserveResponse, error) {
	if p.UserID == "" {
		return nil, domain.Validation("user", "an authenticated user is required")
	}
	if len(req.Passengers) == 0 {
		return nil, domain.Validation("passengers", "at least one passenger is required")
	}

	requested := make([]int, 0, len(req.Passengers))
	seen := make(map[int]bool, len(req.Passengers))
	for _, pass := range req.Passengers {
		if pass.SeatNumber <= 0 {
			return nil, domain.Validation("seat_number", "must be positive")
		}
		if strings.TrimSpace(pass.Name) == "" {
			return nil, domain.Validation("name", "passenger name is required")
		}
		if seen[pass.SeatNumber] {
			return nil, domain.Validation("seat_number", fmt.Sprintf("seat %d requested twice", pass.SeatNumber))
		}
		seen[pass.SeatNumber] = true
		requested = append(requested, pass.SeatNumber)
	}

	tmpl, date, err := s.Trips.ResolveTemplateOn(ctx, req.TemplateID, req.TripDate)
	if err != nil {
		return nil, err
	}
	if date.Before(recurrence.Today(s.Location)) {
		return nil, domain.Validation("trip_date", "trip has already departed")
	}
	tripDate := date.String()

	avail, err := s.Seats.GetAvailability(ctx, tmpl.ID, tripDate)
	if err != nil {
		return nil, err
	}
	for _, seat := range requested {
		if seat > avail.Capacity {
			return nil, domain.Validation("seat_number", fmt.Sprintf("seat %d does not exist (capacity %d)", seat, avail.Capacity))
		}
	}
	if taken := seats.Intersect(requested, avail.BookedSeats); len(taken) > 0 {
		s.Logger.LogTrip("RESERVE", tmpl.ID, tripDate, fmt.Sprintf("seats %v already paid", taken))
		return nil, domain.SeatConflict(taken)
	}

	token := utils.GenerateHoldToken()
	ok, err := s.Lock.HoldSeats(ctx, tmpl.ID, tripDate, requested, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		held, err := s.Lock.HeldByOthers(ctx, tmpl.ID, tripDate, requested, token)
		if err != nil || len(held) == 0 {
			held = requested
		}
		s.Logger.LogTrip("RESERVE", tmpl.ID, tripDate, fmt.Sprintf("seats %v held by another reservation", held))
		return nil, domain.SeatConflict(held)
	}

	bookings, err := s.buildBookings(ctx, p.UserID, tmpl, tripDate, token, req.Passengers)
	if err == nil {
		err = s.DB.CreateBookings(ctx, bookings)
	}
	if err != nil {
		if rerr := s.Lock.ReleaseSeats(context.WithoutCancel(ctx), tmpl.ID, tripDate, requested, token); rerr != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("release of hold %s failed: %v", token, rerr))
		}
		return nil, err
	}

	resp := &models.ReserveResponse{
		HoldToken: token,
		ExpiresAt: s.now().Add(s.HoldTTL),
		Total:     tmpl.Price * float64(len(bookings)),
		Bookings:  bookings,
	}
	for _, b := range bookings {
		s.Logger.LogBooking("RESERVE", b.PNR, fmt.Sprintf("template %d on %s seat %d", b.TemplateID, b.TripDate, b.SeatNumber))
	}
	s.publish(ctx, s.Topics.BookingCreated, token, eventFor(bookings))
	return resp, nil
}

func (s *Service) buildBookings(ctx context.Context, userID string, tmpl *models.TripTemplate, tripDate, token string, passengers []models.PassengerRequest) ([]models.Booking, error) {
	var instanceID int64
	if s.Instances != nil {
		inst, err := s.Instances.GetInstance(ctx, tmpl.ID, tripDate)
		switch {
		case err == nil:
			instanceID = inst.ID
		case !domain.IsNotFound(err):
			return nil, err
		}
	}

	now := s.now()
	used := make(map[string]bool, len(passengers))
	bookings := make([]models.Booking, 0, len(passengers))
	for _, pass := range passengers {
		pnr, err := s.newPNR(ctx, used)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, models.Booking{
			PNR:            pnr,
			UserID:         userID,
			TemplateID:     tmpl.ID,
			TripInstanceID: instanceID,
			TripDate:       tripDate,
			SeatNumber:     pass.SeatNumber,
			PassengerName:  strings.TrimSpace(pass.Name),
			PassengerPhone: strings.TrimSpace(pass.Phone),
			Price:          tmpl.Price,
			Status:         models.BookingStatusPendingPayment,
			PaymentStatus:  models.PaymentStatusUnpaid,
			HoldToken:      token,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return bookings, nil
}

func (s *Service) newPNR(ctx context.Context, used map[string]bool) (string, error) {
	for i := 0; i < pnrAttempts; i++ {
		pnr, err := utils.GeneratePNR()
		if err != nil {
			return "", domain.Internal("generate pnr", err)
		}
		if used[pnr] {
			continue
		}
		exists, err := s.DB.PNRExists(ctx, pnr)
		if err != nil {
			return "", err
		}
		if !exists {
			used[pnr] = true
			return pnr, nil
		}
	}
	return "", domain.Internal("no free pnr", nil)
}

// ---------------- PAYMENT ----------------

// ConfirmPayment settles a reservation after the payment oracle accepts
// reference. Repeating a successful confirmation returns the same bookings.
func (s *Service) ConfirmPayment(ctx context.Context, p auth.Principal, req models.ConfirmPaymentRequest) ([]models.Booking, error) {
	if strings.TrimSpace(req.HoldToken) == "" {
		return nil, domain.Validation("hold_token", "is required")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, domain.Validation("reference", "is required")
	}

	bookings, err := s.DB.ListByHoldToken(ctx, req.HoldToken)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 || !p.CanAccess(bookings[0].UserID) {
		return nil, domain.NotFound("reservation", nil)
	}
	return s.confirm(ctx, bookings, req.HoldToken, strings.TrimSpace(req.Reference))
}

// HandlePaymentSucceeded confirms a reservation from a payment event.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, msg kafkago.Message) error {
	evt, err := kafka.DecodePaymentSucceeded(msg.Value)
	if err != nil {
		return domain.Validation("payment_event", err.Error())
	}
	bookings, err := s.DB.ListByHoldToken(ctx, evt.HoldToken)
	if err != nil {
		return err
	}
	if len(bookings) == 0 {
		return domain.NotFound("reservation", nil)
	}
	if evt.UserID != "" && evt.UserID != bookings[0].UserID {
		s.Logger.LogSecurity("PAYMENT_MISMATCH", fmt.Sprintf("hold %s belongs to %s, event names %s", evt.HoldToken, bookings[0].UserID, evt.UserID))
		return domain.Validation("user_id", "payment event does not match the reservation owner")
	}
	_, err = s.confirm(ctx, bookings, evt.HoldToken, evt.Reference)
	return err
}

func (s *Service) confirm(ctx context.Context, bookings []models.Booking, token, reference string) ([]models.Booking, error) {
	open, paidSame := 0, 0
	seatNumbers := make([]int, 0, len(bookings))
	for _, b := range bookings {
		seatNumbers = append(seatNumbers, b.SeatNumber)
		switch {
		case b.PaymentStatus == models.PaymentStatusUnpaid && isOpen(b.Status):
			open++
		case b.PaymentStatus == models.PaymentStatusPaid && b.PaymentReference == reference:
			paidSame++
		}
	}
	if paidSame == len(bookings) {
		return bookings, nil
	}
	if err := s.checkReferenceUnclaimed(ctx, token, reference); err != nil {
		return nil, err
	}
	if open != len(bookings) {
		return nil, s.lapsed(ctx, token, reference)
	}

	paid, err := s.Payments.Verify(ctx, reference)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("verify %s for hold %s: %v", reference, token, err))
		return nil, err
	}
	if !paid {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("reference %s for hold %s was not settled", reference, token))
		return nil, domain.Validation("reference", "payment was not completed")
	}

	first := bookings[0]
	claim := &models.PaymentClaim{
		Reference: reference,
		HoldToken: token,
		UserID:    first.UserID,
		Amount:    eventFor(bookings).Total,
		ClaimedAt: s.now(),
	}
	err = s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := s.DB.WithTx(tx)
		if err := store.ClaimPayment(ctx, claim); err != nil {
			return err
		}
		n, err := store.MarkPaid(ctx, token, reference, s.now())
		if err != nil {
			return err
		}
		if n != int64(len(bookings)) {
			return domain.ConflictError{Resource: "reservation", Msg: "changed while confirming"}
		}
		if s.Instances == nil {
			return nil
		}
		return s.Instances.WithTx(tx).AdjustInstanceBooked(ctx, first.TemplateID, first.TripDate, int(n))
	})
	if err != nil {
		if c, ok := domain.AsConflict(err); ok && c.Resource == "seat" {
			taken, lerr := s.DB.PaidSeatsAmong(ctx, first.TemplateID, first.TripDate, seatNumbers, token)
			if lerr != nil || len(taken) == 0 {
				taken = seatNumbers
			}
			s.Logger.Error("PAYMENT", fmt.Sprintf("hold %s paid with %s but seats %v were taken; refund required", token, reference, taken))
			return nil, domain.SeatConflict(taken)
		}
		if c, ok := domain.AsConflict(err); ok && c.Resource == "payment" {
			s.Logger.LogSecurity("PAYMENT_REUSE", fmt.Sprintf("reference %s claimed concurrently, rejected for hold %s", reference, token))
			return nil, domain.ConflictError{Resource: "payment", Msg: "reference already used for another reservation", Err: err}
		}
		return nil, err
	}

	if err := s.Lock.ReleaseSeats(ctx, first.TemplateID, first.TripDate, seatNumbers, token); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("release of hold %s after payment failed: %v", token, err))
	}

	confirmed, err := s.DB.ListByHoldToken(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, b := range confirmed {
		s.Logger.LogBooking("CONFIRM", b.PNR, fmt.Sprintf("paid with %s", reference))
	}
	s.publish(ctx, s.Topics.BookingConfirmed, token, eventFor(confirmed))
	return confirmed, nil
}

// checkReferenceUnclaimed rejects a reference that already paid for a
// different reservation.
func (s *Service) checkReferenceUnclaimed(ctx context.Context, token, reference string) error {
	claim, err := s.DB.GetPaymentClaim(ctx, reference)
	switch {
	case domain.IsNotFound(err):
		return nil
	case err != nil:
		return err
	case claim.HoldToken == token:
		return nil
	}
	s.Logger.LogSecurity("PAYMENT_REUSE", fmt.Sprintf("reference %s already paid for hold %s, rejected for hold %s", reference, claim.HoldToken, token))
	return domain.ConflictError{Resource: "payment", Msg: "reference already used for another reservation"}
}

// lapsed answers a confirmation for a reservation that stopped awaiting
// payment. A reference that did settle is logged for refund.
func (s *Service) lapsed(ctx context.Context, token, reference string) error {
	conflict := domain.ConflictError{Resource: "reservation", Msg: "no longer awaiting payment"}
	if s.Payments == nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("hold %s is no longer awaiting payment, reference %s was not verified; check for refund", token, reference))
		return conflict
	}

	paid, err := s.Payments.Verify(ctx, reference)
	switch {
	case err != nil:
		s.Logger.Error("PAYMENT", fmt.Sprintf("hold %s is no longer awaiting payment, reference %s could not be verified: %v; check for refund", token, reference, err))
	case paid:
		s.Logger.Error("PAYMENT", fmt.Sprintf("hold %s paid with %s after the reservation lapsed; refund required", token, reference))
	default:
		s.Logger.Warn("PAYMENT", fmt.Sprintf("hold %s is no longer awaiting payment, reference %s was not settled", token, reference))
	}
	return conflict
}

// ---------------- LIFECYCLE ----------------

// Cancel cancels a booking that has not been boarded. Customers may cancel
// only their own bookings.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, pnr string) (*models.Booking, error) {
	b, err := s.GetByPNR(ctx, p, pnr)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, domain.ConflictError{Resource: "booking", Msg: "already cancelled"}
	}
	if b.Status == models.BookingStatusBoarded || b.Status == models.BookingStatusArrived {
		return nil, domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("cannot cancel a %s booking", b.Status)}
	}

	err = s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.WithTx(tx).Cancel(ctx, b.ID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ConflictError{Resource: "booking", Msg: "changed while cancelling"}
		}
		if b.HoldsSeat() && s.Instances != nil {
			return s.Instances.WithTx(tx).AdjustInstanceBooked(ctx, b.TemplateID, b.TripDate, -1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if b.PaymentStatus == models.PaymentStatusUnpaid && b.HoldToken != "" {
		if err := s.Lock.ReleaseSeats(ctx, b.TemplateID, b.TripDate, []int{b.SeatNumber}, b.HoldToken); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("release of seat %d for %s failed: %v", b.SeatNumber, b.PNR, err))
		}
	}

	updated, err := s.DB.GetByPNR(ctx, b.PNR)
	if err != nil {
		return nil, err
	}
	s.Logger.LogBooking("CANCEL", b.PNR, fmt.Sprintf("by %s (%s)", p.UserID, p.Role))
	s.publish(ctx, s.Topics.BookingCancelled, b.PNR, eventFor([]models.Booking{*updated}))
	return updated, nil
}

// Board checks a paid, confirmed passenger onto the vehicle.
func (s *Service) Board(ctx context.Context, pnr string) (*models.Booking, error) {
	b, err := s.DB.GetByPNR(ctx, normalizePNR(pnr))
	if err != nil {
		return nil, err
	}
	switch {
	case b.Status == models.BookingStatusBoarded:
		return nil, domain.ConflictError{Resource: "booking", Msg: "passenger already boarded"}
	case b.PaymentStatus != models.PaymentStatusPaid:
		return nil, domain.ConflictError{Resource: "booking", Msg: "booking is not paid"}
	case b.Status != models.BookingStatusConfirmed:
		return nil, domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("cannot board a %s booking", b.Status)}
	}
	return s.transition(ctx, b, []models.BookingStatus{models.BookingStatusConfirmed}, models.BookingStatusBoarded, s.Topics.BookingBoarded)
}

// Arrive marks a boarded passenger as delivered.
func (s *Service) Arrive(ctx context.Context, pnr string) (*models.Booking, error) {
	b, err := s.DB.GetByPNR(ctx, normalizePNR(pnr))
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusBoarded {
		return nil, domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("cannot mark a %s booking as arrived", b.Status)}
	}
	return s.transition(ctx, b, []models.BookingStatus{models.BookingStatusBoarded}, models.BookingStatusArrived, "")
}

func (s *Service) transition(ctx context.Context, b *models.Booking, from []models.BookingStatus, to models.BookingStatus, topic string) (*models.Booking, error) {
	ok, err := s.DB.Transition(ctx, b.ID, from, to, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ConflictError{Resource: "booking", Msg: "changed concurrently"}
	}
	updated, err := s.DB.GetByPNR(ctx, b.PNR)
	if err != nil {
		return nil, err
	}
	s.Logger.LogBooking(strings.ToUpper(string(to)), b.PNR, fmt.Sprintf("template %d on %s seat %d", b.TemplateID, b.TripDate, b.SeatNumber))
	if topic != "" {
		s.publish(ctx, topic, b.PNR, eventFor([]models.Booking{*updated}))
	}
	return updated, nil
}

// GetByPNR returns a booking its owner or staff may see. Other callers get
// not-found so PNRs of other users cannot be guessed.
func (s *Service) GetByPNR(ctx context.Context, p auth.Principal, pnr string) (*models.Booking, error) {
	pnr = normalizePNR(pnr)
	if pnr == "" {
		return nil, domain.Validation("pnr", "is required")
	}
	b, err := s.DB.GetByPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(b.UserID) {
		return nil, domain.NotFound("booking", nil)
	}
	return b, nil
}

func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]models.Booking, error) {
	if p.UserID == "" {
		return nil, domain.Validation("user", "an authenticated user is required")
	}
	return s.DB.ListByUser(ctx, p.UserID)
}

// ---------------- TIMEOUTS ----------------

// ExpireStale cancels unpaid bookings older than olderThan and returns how
// many were cancelled.
func (s *Service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.DB.ListStaleUnpaid(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return s.cancelUnpaid(ctx, stale, "EXPIRE")
}

// OnHoldExpired cancels the unpaid bookings behind a lapsed seat hold. A
// booking whose seat is held again under its own token is left alone.
func (s *Service) OnHoldExpired(ctx context.Context, templateID int64, tripDate string, seat int) error {
	open, err := s.DB.ListOpenOnSeat(ctx, templateID, tripDate, seat)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}
	holder, err := s.Lock.Holder(ctx, templateID, tripDate, seat)
	if err != nil {
		return err
	}

	var lapsed []models.Booking
	for _, b := range open {
		if holder != "" && holder == b.HoldToken {
			continue
		}
		lapsed = append(lapsed, b)
	}
	if len(lapsed) == 0 {
		return nil
	}
	_, err = s.cancelUnpaid(ctx, lapsed, "HOLD_EXPIRED")
	return err
}

// OnHoldKeyExpired adapts OnHoldExpired to Redis expiry notifications.
func (s *Service) OnHoldKeyExpired(ctx context.Context, key string) {
	templateID, tripDate, seat, ok := seatlock.ParseHoldKey(key)
	if !ok {
		s.Logger.Warn("BOOKING", fmt.Sprintf("ignoring malformed hold key %q", key))
		return
	}
	if err := s.OnHoldExpired(ctx, templateID, tripDate, seat); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("expire hold %s: %v", key, err))
	}
}

func (s *Service) cancelUnpaid(ctx context.Context, bookings []models.Booking, action string) (int, error) {
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	n, err := s.DB.CancelUnpaid(ctx, ids, s.now())
	if err != nil {
		return 0, err
	}

	byHold := make(map[string][]models.Booking)
	for _, b := range bookings {
		s.Logger.LogBooking(action, b.PNR, fmt.Sprintf("seat %d on %s released", b.SeatNumber, b.TripDate))
		byHold[b.HoldToken] = append(byHold[b.HoldToken], b)
	}
	for token, group := range byHold {
		evt := eventFor(group)
		evt.Status = models.BookingStatusCancelled
		if token != "" {
			if err := s.Lock.ReleaseSeats(ctx, group[0].TemplateID, group[0].TripDate, evt.Seats, token); err != nil {
				s.Logger.Warn("BOOKING", fmt.Sprintf("release of hold %s failed: %v", token, err))
			}
		}
		s.publish(ctx, s.Topics.BookingCancelled, token, evt)
	}
	return int(n), nil
}

// ---------------- HELPERS ----------------

func (s *Service) publish(ctx context.Context, topic, key string, evt Event) {
	if s.Events == nil || topic == "" {
		return
	}
	if err := s.Events.Publish(ctx, topic, key, evt); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s for %s: %v", topic, key, err))
	}
}

func eventFor(bookings []models.Booking) Event {
	if len(bookings) == 0 {
		return Event{}
	}
	first := bookings[0]
	evt := Event{
		HoldToken:  first.HoldToken,
		UserID:     first.UserID,
		TemplateID: first.TemplateID,
		TripDate:   first.TripDate,
		Status:     first.Status,
	}
	for _, b := range bookings {
		evt.PNRs = append(evt.PNRs, b.PNR)
		evt.Seats = append(evt.Seats, b.SeatNumber)
		evt.Total += b.Price
	}
	return evt
}

func isOpen(status models.BookingStatus) bool {
	return status == models.BookingStatusPending || status == models.BookingStatusPendingPayment
}

func normalizePNR(pnr string) string {
	return strings.ToUpper(strings.TrimSpace(pnr))
}
