package booking_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dgc-transports/internal/auth"
	"dgc-transports/internal/booking"
	bookingdb "dgc-transports/internal/booking/db"
	seatlock "dgc-transports/internal/booking/redis"
	"dgc-transports/internal/config"
	"dgc-transports/internal/domain"
	"dgc-transports/internal/kafka"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
	"dgc-transports/internal/seats"
	"dgc-transports/internal/testutil"
	"dgc-transports/internal/trips"
	tripdb "dgc-transports/internal/trips/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var topics = config.TopicConfig{
	BookingCreated:   "dgc.booking.created",
	BookingConfirmed: "dgc.booking.confirmed",
	BookingCancelled: "dgc.booking.cancelled",
	BookingBoarded:   "dgc.booking.boarded",
	TripMaterialized: "dgc.trip.materialized",
	PaymentSucceeded: "dgc.payment.succeeded",
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic, _ string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

type harness struct {
	svc      *booking.Service
	db       *bun.DB
	lock     *seatlock.SeatLock
	mr       *miniredis.Miniredis
	fleet    testutil.Fleet
	tmpl     models.TripTemplate
	date     string
	verifier *MockVerifier
	events   *recordingPublisher
	calc     *seats.Calculator
}

var (
	alice = auth.Principal{UserID: "alice", Role: auth.RoleCustomer}
	bob   = auth.Principal{UserID: "bob", Role: auth.RoleCustomer}
	staff = auth.Principal{UserID: "conductor-1", Role: auth.RoleStaff}
)

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	fleet := testutil.SeedFleet(t, db, capacity)
	tmpl := testutil.InsertTemplate(t, db, fleet.Template("2020-01-01", "2099-12-31"))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	log := logger.Discard()
	lock := seatlock.NewSeatLock(client, 5*time.Minute, log)
	instances := tripdb.New(db, 0)
	calc := seats.NewCalculator(seats.NewBunStore(db, 0), log)
	verifier := &MockVerifier{}
	events := &recordingPublisher{}

	svc := booking.NewService(
		bookingdb.New(db, 0),
		instances,
		trips.NewService(instances, log),
		calc,
		lock,
		verifier,
		events,
		topics,
		config.BookingConfig{SeatHoldTTL: 5 * time.Minute, TimeZone: "UTC"},
		log,
	)

	return &harness{
		svc:      svc,
		db:       db,
		lock:     lock,
		mr:       mr,
		fleet:    fleet,
		tmpl:     tmpl,
		date:     recurrence.Today(time.UTC).AddDays(7).String(),
		verifier: verifier,
		events:   events,
		calc:     calc,
	}
}

func (h *harness) request(seatNumbers ...int) models.ReserveRequest {
	req := models.ReserveRequest{TemplateID: h.tmpl.ID, TripDate: h.date}
	for _, s := range seatNumbers {
		req.Passengers = append(req.Passengers, models.PassengerRequest{
			Name:       fmt.Sprintf("Passenger %d", s),
			Phone:      "0812000000",
			SeatNumber: s,
		})
	}
	return req
}

func (h *harness) reserve(t *testing.T, p auth.Principal, seatNumbers ...int) *models.ReserveResponse {
	t.Helper()
	resp, err := h.svc.Reserve(context.Background(), p, h.request(seatNumbers...))
	require.NoError(t, err)
	return resp
}

func (h *harness) pay(t *testing.T, p auth.Principal, token, ref string) []models.Booking {
	t.Helper()
	h.verifier.On("Verify", mock.Anything, ref).Return(true, nil).Once()
	confirmed, err := h.svc.ConfirmPayment(context.Background(), p, models.ConfirmPaymentRequest{HoldToken: token, Reference: ref})
	require.NoError(t, err)
	return confirmed
}

func TestReserveThenConfirm(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	_, err := tripdb.New(h.db, 0).CreateInstance(ctx, &models.TripInstance{
		TemplateID: h.tmpl.ID, TripDate: h.date, VehicleID: h.fleet.Vehicle.ID, Status: models.InstanceStatusActive,
	})
	require.NoError(t, err)

	resp := h.reserve(t, alice, 1, 2)
	require.Len(t, resp.Bookings, 2)
	assert.Equal(t, 300000.0, resp.Total)
	assert.NotEqual(t, resp.Bookings[0].PNR, resp.Bookings[1].PNR)
	for _, b := range resp.Bookings {
		assert.Equal(t, models.BookingStatusPendingPayment, b.Status)
		assert.Equal(t, models.PaymentStatusUnpaid, b.PaymentStatus)
		assert.NotZero(t, b.TripInstanceID)
	}

	avail, err := h.calc.GetAvailability(ctx, h.tmpl.ID, h.date)
	require.NoError(t, err)
	assert.Equal(t, 14, avail.Available, "unpaid bookings do not occupy seats")

	confirmed := h.pay(t, alice, resp.HoldToken, "ref-1")
	require.Len(t, confirmed, 2)
	for _, b := range confirmed {
		assert.Equal(t, models.BookingStatusConfirmed, b.Status)
		assert.Equal(t, models.PaymentStatusPaid, b.PaymentStatus)
		assert.Equal(t, "ref-1", b.PaymentReference)
	}

	avail, err = h.calc.GetAvailability(ctx, h.tmpl.ID, h.date)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, avail.BookedSeats)
	assert.Equal(t, 12, avail.Available)

	inst, err := tripdb.New(h.db, 0).GetInstance(ctx, h.tmpl.ID, h.date)
	require.NoError(t, err)
	assert.Equal(t, 2, inst.BookedSeats)

	holder, err := h.lock.Holder(ctx, h.tmpl.ID, h.date, 1)
	require.NoError(t, err)
	assert.Empty(t, holder, "hold is released once paid")

	assert.Equal(t, []string{topics.BookingCreated, topics.BookingConfirmed}, h.events.Topics())
}

func TestConfirmIsIdempotent(t *testing.T) {
	h := newHarness(t, 14)
	resp := h.reserve(t, alice, 3)
	h.pay(t, alice, resp.HoldToken, "ref-1")

	again, err := h.svc.ConfirmPayment(context.Background(), alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-1"})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, models.PaymentStatusPaid, again[0].PaymentStatus)
	h.verifier.AssertNumberOfCalls(t, "Verify", 1)

	h.verifier.On("Verify", mock.Anything, "ref-2").Return(false, nil).Once()
	_, err = h.svc.ConfirmPayment(context.Background(), alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-2"})
	assert.True(t, domain.IsConflict(err))
}

func TestConfirmRejectsReusedReference(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	first := h.reserve(t, alice, 1)
	h.pay(t, alice, first.HoldToken, "ref-1")

	second := h.reserve(t, alice, 2, 3, 4, 5)
	_, err := h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: second.HoldToken, Reference: "ref-1"})
	require.Error(t, err)
	conflict, ok := domain.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "payment", conflict.Resource)
	assert.Equal(t, domain.CodeConflict, conflict.Code())
	h.verifier.AssertNumberOfCalls(t, "Verify", 1)

	for _, b := range second.Bookings {
		got, err := h.svc.GetByPNR(ctx, alice, b.PNR)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusUnpaid, got.PaymentStatus)
		assert.Empty(t, got.PaymentReference)
	}

	avail, err := h.calc.GetAvailability(ctx, h.tmpl.ID, h.date)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, avail.BookedSeats)

	again, err := h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: first.HoldToken, Reference: "ref-1"})
	require.NoError(t, err, "the reservation that owns the reference still confirms idempotently")
	require.Len(t, again, 1)

	h.pay(t, alice, second.HoldToken, "ref-2")
}

func TestConfirmClaimsReferenceWithPayment(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	resp := h.reserve(t, bob, 8, 9)
	h.pay(t, bob, resp.HoldToken, "ref-claimed")

	claim, err := bookingdb.New(h.db, 0).GetPaymentClaim(ctx, "ref-claimed")
	require.NoError(t, err)
	assert.Equal(t, resp.HoldToken, claim.HoldToken)
	assert.Equal(t, bob.UserID, claim.UserID)
	assert.Equal(t, 300000.0, claim.Amount)
}

func TestConfirmAfterLapseLogsRefund(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()
	var logs bytes.Buffer
	h.svc.Logger = logger.NewWriterLogger(&logs)

	resp := h.reserve(t, alice, 7)
	n, err := h.svc.ExpireStale(ctx, -time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	h.verifier.On("Verify", mock.Anything, "ref-late").Return(true, nil).Once()
	_, err = h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-late"})
	require.Error(t, err)
	conflict, ok := domain.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "reservation", conflict.Resource)

	h.verifier.AssertNumberOfCalls(t, "Verify", 1)
	assert.Contains(t, logs.String(), "ref-late")
	assert.Contains(t, logs.String(), resp.HoldToken)
	assert.Contains(t, logs.String(), "refund required")

	got, err := h.svc.GetByPNR(ctx, alice, resp.Bookings[0].PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)

	h.verifier.On("Verify", mock.Anything, "ref-never").Return(false, nil).Once()
	_, err = h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-never"})
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, 1, strings.Count(logs.String(), "refund required"), "an unsettled reference needs no refund")
}

func TestReserveTakenSeatConflicts(t *testing.T) {
	h := newHarness(t, 14)
	testutil.InsertPaid(t, h.db, h.tmpl.ID, h.date, 2, 5, 9)

	avail, err := h.calc.GetAvailability(context.Background(), h.tmpl.ID, h.date)
	require.NoError(t, err)
	assert.Equal(t, 11, avail.Available)
	assert.Equal(t, []int{2, 5, 9}, avail.BookedSeats)

	_, err = h.svc.Reserve(context.Background(), alice, h.request(4, 5))
	require.Error(t, err)
	conflict, ok := domain.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeSeatConflict, conflict.Code())
	assert.Equal(t, []int{5}, conflict.Seats)
}

func TestConcurrentReservationsForOneSeat(t *testing.T) {
	h := newHarness(t, 14)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := auth.Principal{UserID: fmt.Sprintf("user-%d", i), Role: auth.RoleCustomer}
			_, err := h.svc.Reserve(context.Background(), p, h.request(5))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domain.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)
}

func TestConfirmDetectsPaidCollision(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	stale := models.Booking{
		PNR: "STALE1", UserID: alice.UserID, TemplateID: h.tmpl.ID, TripDate: h.date, SeatNumber: 5,
		PassengerName: "Late Payer", Price: 150000,
		Status: models.BookingStatusPendingPayment, PaymentStatus: models.PaymentStatusUnpaid,
		HoldToken: "expired-hold",
	}
	_, err := h.db.NewInsert().Model(&stale).Exec(ctx)
	require.NoError(t, err)
	testutil.InsertPaid(t, h.db, h.tmpl.ID, h.date, 5)

	h.verifier.On("Verify", mock.Anything, "ref-late").Return(true, nil).Once()
	_, err = h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: "expired-hold", Reference: "ref-late"})
	require.Error(t, err)
	conflict, ok := domain.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeSeatConflict, conflict.Code())
	assert.Equal(t, []int{5}, conflict.Seats)

	b, err := bookingdb.New(h.db, 0).GetByPNR(ctx, "STALE1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusUnpaid, b.PaymentStatus, "the failed confirmation is rolled back")
}

func TestConfirmPaymentOracle(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()
	resp := h.reserve(t, alice, 1)

	h.verifier.On("Verify", mock.Anything, "ref-unpaid").Return(false, nil).Once()
	_, err := h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-unpaid"})
	assert.True(t, domain.IsValidation(err))

	h.verifier.On("Verify", mock.Anything, "ref-down").Return(false, domain.Unavailable("payment gateway", errors.New("timeout"))).Once()
	_, err = h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-down"})
	assert.True(t, domain.IsUnavailable(err))

	_, err = h.svc.ConfirmPayment(ctx, bob, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken, Reference: "ref-1"})
	assert.True(t, domain.IsNotFound(err), "other customers cannot see the reservation")

	_, err = h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: "missing", Reference: "ref-1"})
	assert.True(t, domain.IsNotFound(err))

	_, err = h.svc.ConfirmPayment(ctx, alice, models.ConfirmPaymentRequest{HoldToken: resp.HoldToken})
	assert.True(t, domain.IsValidation(err))
}

func TestReserveValidation(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	cases := []struct {
		name string
		req  models.ReserveRequest
	}{
		{"bad date", func() models.ReserveRequest { r := h.request(1); r.TripDate = "2024-02-30"; return r }()},
		{"past date", func() models.ReserveRequest { r := h.request(1); r.TripDate = "2021-03-01"; return r }()},
		{"seat beyond capacity", h.request(15)},
		{"duplicate seat", h.request(3, 3)},
		{"no passengers", models.ReserveRequest{TemplateID: h.tmpl.ID, TripDate: h.date}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Reserve(ctx, alice, tc.req)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}

	_, err := h.svc.Reserve(ctx, auth.Principal{}, h.request(1))
	assert.True(t, domain.IsValidation(err))

	req := h.request(1)
	req.TemplateID = 9999
	_, err = h.svc.Reserve(ctx, alice, req)
	assert.True(t, domain.IsNotFound(err))
}

func TestReserveOnInactiveTemplate(t *testing.T) {
	h := newHarness(t, 14)
	require.NoError(t, tripdb.New(h.db, 0).SetTemplateStatus(context.Background(), h.tmpl.ID, models.TemplateStatusInactive))

	_, err := h.svc.Reserve(context.Background(), alice, h.request(1))
	assert.True(t, domain.IsValidation(err))
}

func TestCancel(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	paid := h.pay(t, alice, h.reserve(t, alice, 1).HoldToken, "ref-1")[0]
	unpaid := h.reserve(t, alice, 2).Bookings[0]

	_, err := h.svc.Cancel(ctx, bob, paid.PNR)
	assert.True(t, domain.IsNotFound(err))

	cancelled, err := h.svc.Cancel(ctx, alice, paid.PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentStatusPaid, cancelled.PaymentStatus, "refund bookkeeping keeps the payment")

	cancelled, err = h.svc.Cancel(ctx, staff, unpaid.PNR)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, cancelled.PaymentStatus)

	holder, err := h.lock.Holder(ctx, h.tmpl.ID, h.date, 2)
	require.NoError(t, err)
	assert.Empty(t, holder)

	_, err = h.svc.Cancel(ctx, alice, paid.PNR)
	assert.True(t, domain.IsConflict(err))

	avail, err := h.calc.GetAvailability(ctx, h.tmpl.ID, h.date)
	require.NoError(t, err)
	assert.Equal(t, 14, avail.Available)

	again := h.reserve(t, bob, 1)
	assert.Len(t, again.Bookings, 1, "a cancelled seat can be sold again")
}

func TestBoardAndArrive(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	unpaid := h.reserve(t, alice, 1).Bookings[0]
	_, err := h.svc.Board(ctx, unpaid.PNR)
	assert.True(t, domain.IsConflict(err))

	paid := h.pay(t, alice, h.reserve(t, alice, 2).HoldToken, "ref-2")[0]

	_, err = h.svc.Arrive(ctx, paid.PNR)
	assert.True(t, domain.IsConflict(err), "must board before arriving")

	boarded, err := h.svc.Board(ctx, paid.PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusBoarded, boarded.Status)
	assert.False(t, boarded.BoardedAt.IsZero())

	_, err = h.svc.Board(ctx, paid.PNR)
	assert.True(t, domain.IsConflict(err))

	_, err = h.svc.Cancel(ctx, alice, paid.PNR)
	assert.True(t, domain.IsConflict(err))

	arrived, err := h.svc.Arrive(ctx, paid.PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusArrived, arrived.Status)

	_, err = h.svc.Board(ctx, "NOPE99")
	assert.True(t, domain.IsNotFound(err))

	assert.Contains(t, h.events.Topics(), topics.BookingBoarded)
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	resp := h.reserve(t, alice, 1, 2)
	paid := h.pay(t, bob, h.reserve(t, bob, 3).HoldToken, "ref-3")

	n, err := h.svc.ExpireStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh reservations are kept")

	h.svc.Clock = func() time.Time { return time.Now().Add(10 * time.Minute) }
	n, err = h.svc.ExpireStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, b := range resp.Bookings {
		got, err := h.svc.GetByPNR(ctx, alice, b.PNR)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, got.Status)
		assert.Equal(t, models.PaymentStatusCancelled, got.PaymentStatus)
	}
	got, err := h.svc.GetByPNR(ctx, bob, paid[0].PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, got.Status)
}

func TestOnHoldExpired(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()

	first := h.reserve(t, alice, 4)
	h.mr.FastForward(6 * time.Minute)

	second := h.reserve(t, bob, 4)

	h.svc.OnHoldKeyExpired(ctx, seatlock.HoldKey(h.tmpl.ID, h.date, 4))

	got, err := h.svc.GetByPNR(ctx, alice, first.Bookings[0].PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)

	got, err = h.svc.GetByPNR(ctx, bob, second.Bookings[0].PNR)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPendingPayment, got.Status, "the newer hold is untouched")

	h.svc.OnHoldKeyExpired(ctx, "seat_hold:garbage")
}

func TestHandlePaymentSucceeded(t *testing.T) {
	h := newHarness(t, 14)
	ctx := context.Background()
	resp := h.reserve(t, alice, 6)

	env, err := kafka.NewEnvelope(topics.PaymentSucceeded, kafka.PaymentSucceeded{
		HoldToken: resp.HoldToken, Reference: "ref-async", UserID: alice.UserID,
	})
	require.NoError(t, err)
	value, err := json.Marshal(env)
	require.NoError(t, err)

	h.verifier.On("Verify", mock.Anything, "ref-async").Return(true, nil).Once()
	require.NoError(t, h.svc.HandlePaymentSucceeded(ctx, kafkago.Message{Value: value}))

	got, err := h.svc.GetByPNR(ctx, alice, resp.Bookings[0].PNR)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)

	err = h.svc.HandlePaymentSucceeded(ctx, kafkago.Message{Value: []byte("not json")})
	assert.True(t, domain.IsValidation(err))
}

func TestListMine(t *testing.T) {
	h := newHarness(t, 14)
	h.reserve(t, alice, 1, 2)
	h.reserve(t, bob, 3)

	mine, err := h.svc.ListMine(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
