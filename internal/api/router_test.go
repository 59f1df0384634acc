package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dgc-transports/internal/api"
	"dgc-transports/internal/auth"
	"dgc-transports/internal/booking"
	bookingdb "dgc-transports/internal/booking/db"
	seatlock "dgc-transports/internal/booking/redis"
	"dgc-transports/internal/config"
	"dgc-transports/internal/kafka"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/metrics"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
	"dgc-transports/internal/reports"
	"dgc-transports/internal/seats"
	"dgc-transports/internal/testutil"
	"dgc-transports/internal/tickets"
	"dgc-transports/internal/tickets/qr"
	"dgc-transports/internal/trips"
	tripdb "dgc-transports/internal/trips/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// paidReferences approves every reference starting with "paid-".
type paidReferences struct{}

func (paidReferences) Verify(_ context.Context, reference string) (bool, error) {
	return strings.HasPrefix(reference, "paid-"), nil
}

type server struct {
	http   http.Handler
	db     *bun.DB
	fleet  testutil.Fleet
	tmpl   models.TripTemplate
	date   string
	tokens *auth.HMACVerifier
	qr     *qr.Generator
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewDB(t)
	fleet := testutil.SeedFleet(t, db, 4)
	tmpl := testutil.InsertTemplate(t, db, fleet.Template("2020-01-01", "2099-12-31"))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	log := logger.Discard()
	instances := tripdb.New(db, time.Second)
	tripSvc := trips.NewService(instances, log)
	calc := seats.NewCalculator(seats.NewBunStore(db, time.Second), log)
	bookingSvc := booking.NewService(
		bookingdb.New(db, time.Second),
		instances,
		tripSvc,
		calc,
		seatlock.NewSeatLock(client, 5*time.Minute, log),
		paidReferences{},
		kafka.NoopPublisher{},
		config.TopicConfig{},
		config.BookingConfig{SeatHoldTTL: 5 * time.Minute, TimeZone: "UTC"},
		log,
	)
	gen := qr.NewGenerator("qr-secret")

	h := &api.Handler{
		Trips:    tripSvc,
		Seats:    calc,
		Bookings: bookingSvc,
		Tickets:  tickets.NewTicketService(bookingSvc, instances, gen, time.UTC, log),
		Reports:  reports.NewService(db, reports.NewDB(db, time.Second), log),
		Metrics:  metrics.New("test"),
		Logger:   log,
	}
	tokens := auth.NewHMACVerifier("jwt-secret")
	router := api.NewRouter(h, tokens, config.ServerConfig{
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Second,
	})

	return &server{
		http:   router,
		db:     db,
		fleet:  fleet,
		tmpl:   tmpl,
		date:   recurrence.Today(time.UTC).AddDays(3).String(),
		tokens: tokens,
		qr:     gen,
	}
}

func (s *server) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := s.tokens.Sign(auth.Principal{UserID: userID, Role: role}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Seats   []int           `json:"seats"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAvailabilityEndpoint(t *testing.T) {
	s := newServer(t)
	testutil.InsertPaid(t, s.db, s.tmpl.ID, "2024-06-10", 1, 3)
	testutil.InsertBooking(t, s.db, s.tmpl.ID, "2024-06-10", 2, models.BookingStatusPendingPayment, models.PaymentStatusUnpaid)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/trips/availability?template_id=%d&trip_date=2024-06-10", s.tmpl.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got api.AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, []int{1, 3}, got.BookedSeats)
	assert.Equal(t, 4, got.TotalCapacity)
	assert.Equal(t, 2, got.Available)

	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"missing template", "trip_date=2024-06-10", http.StatusBadRequest},
		{"non numeric template", "template_id=abc&trip_date=2024-06-10", http.StatusBadRequest},
		{"bad date", fmt.Sprintf("template_id=%d&trip_date=2024-02-30", s.tmpl.ID), http.StatusBadRequest},
		{"bad format", fmt.Sprintf("template_id=%d&trip_date=10-06-2024", s.tmpl.ID), http.StatusBadRequest},
		{"unknown template", "template_id=9999&trip_date=2024-06-10", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/trips/availability?"+tc.query, "", nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestSearchEndpoint(t *testing.T) {
	s := newServer(t)
	testutil.InsertPaid(t, s.db, s.tmpl.ID, s.date, 2)

	path := fmt.Sprintf("/api/v1/trips/search?pickup_city_id=%d&dropoff_city_id=%d&trip_date=%s", s.fleet.Pickup.ID, s.fleet.Dropoff.ID, s.date)
	rec := s.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []models.TripSearchResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].BookedCount)
	assert.Equal(t, 3, results[0].Available)

	same := fmt.Sprintf("/api/v1/trips/search?pickup_city_id=%d&dropoff_city_id=%d&trip_date=%s", s.fleet.Pickup.ID, s.fleet.Pickup.ID, s.date)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, same, "", nil).Code)

	missing := fmt.Sprintf("/api/v1/trips/search?pickup_city_id=%d&trip_date=%s", s.fleet.Pickup.ID, s.date)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, missing, "", nil).Code)
}

func TestBookingFlow(t *testing.T) {
	s := newServer(t)
	alice := s.token(t, "alice", auth.RoleCustomer)
	bob := s.token(t, "bob", auth.RoleCustomer)

	reserve := map[string]interface{}{
		"template_id": s.tmpl.ID,
		"trip_date":   s.date,
		"passengers":  []map[string]interface{}{{"name": "Alice", "seat_number": 2}},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/bookings/", alice, reserve)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var held models.ReserveResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &held))
	require.Len(t, held.Bookings, 1)
	pnr := held.Bookings[0].PNR

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/", bob, reserve)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "seat_conflict", env.Code)
	assert.Equal(t, []int{2}, env.Seats)

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/confirm", alice, map[string]string{"hold_token": held.HoldToken, "reference": "declined-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/confirm", alice, map[string]string{"hold_token": held.HoldToken, "reference": "paid-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/trips/availability?template_id=%d&trip_date=%s", s.tmpl.ID, s.date), "", nil)
	assert.Contains(t, rec.Body.String(), `"booked_seats":[2]`)

	rec = s.do(t, http.MethodGet, "/api/v1/bookings/"+pnr, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other customers cannot see the booking")

	rec = s.do(t, http.MethodGet, "/api/v1/bookings/mine", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), pnr)

	rec = s.do(t, http.MethodGet, "/api/v1/bookings/"+pnr+"/boarding-pass", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "BOARDING_PASS_"+pnr+".pdf")

	rec = s.do(t, http.MethodGet, "/api/v1/bookings/"+pnr+"/qr", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/"+pnr+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	metricsBody := s.do(t, http.MethodGet, "/metrics", "", nil).Body.String()
	assert.Contains(t, metricsBody, `dgc_seat_conflicts_total{service="test"} 1`)
}

func TestRoleGates(t *testing.T) {
	s := newServer(t)
	customer := s.token(t, "carol", auth.RoleCustomer)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/bookings/mine", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/bookings/mine", "not-a-jwt", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/v1/checkin", customer, map[string]string{"encrypted_qr": "x"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/v1/bookings/ABCDEF/board", customer, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/templates/%d/status", s.tmpl.ID), customer, map[string]string{"status": "inactive"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/reports/investor?from=2024-01-01&to=2024-12-31", customer, nil).Code)
}

func TestCheckInEndpoint(t *testing.T) {
	s := newServer(t)
	staff := s.token(t, "conductor", auth.RoleStaff)
	today := recurrence.Today(time.UTC).String()

	b := testutil.InsertBooking(t, s.db, s.tmpl.ID, today, 3, models.BookingStatusConfirmed, models.PaymentStatusPaid)
	code, err := s.qr.Encrypt(qr.PayloadFor(b, time.Now()))
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/v1/checkin", staff, map[string]string{"encrypted_qr": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"boarded"`)

	rec = s.do(t, http.MethodPost, "/api/v1/checkin", staff, map[string]string{"encrypted_qr": code})
	assert.Equal(t, http.StatusConflict, rec.Code, "a pass boards once")

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/"+b.PNR+"/arrive", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"arrived"`)

	rec = s.do(t, http.MethodPost, "/api/v1/checkin", staff, map[string]string{"encrypted_qr": "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t)
	admin := s.token(t, "root", auth.RoleAdmin)
	investor := s.token(t, "inv-9", auth.RoleInvestor)

	vehiclePath := fmt.Sprintf("/api/v1/vehicles/%d/investor", s.fleet.Vehicle.ID)
	rec := s.do(t, http.MethodPut, vehiclePath, admin, map[string]string{"investor_id": "inv-9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPut, vehiclePath, admin, map[string]string{"investor_id": "inv-10"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	testutil.InsertPaid(t, s.db, s.tmpl.ID, "2024-06-10", 1, 2)
	rec = s.do(t, http.MethodGet, "/api/v1/reports/investor?from=2024-06-01&to=2024-06-30", investor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report reports.InvestorReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
	assert.Equal(t, 2, report.TotalSeats)

	rec = s.do(t, http.MethodGet, "/api/v1/reports/investor?investor_id=someone-else&from=2024-06-01&to=2024-06-30", investor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reports/investor?investor_id=inv-9&from=2024-06-01&to=2024-06-30", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, vehiclePath, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/templates/%d/status", s.tmpl.ID), admin, map[string]string{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/templates/%d/status", s.tmpl.ID), admin, map[string]string{"status": "inactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/templates/%d", s.tmpl.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"inactive"`)

	tmpl := map[string]interface{}{
		"pickup_city_id":  s.fleet.Pickup.ID,
		"dropoff_city_id": s.fleet.Dropoff.ID,
		"vehicle_id":      s.fleet.Vehicle.ID,
		"time_slot_id":    s.fleet.Slot.ID,
		"price":           90000,
		"start_date":      "2024-01-01",
		"end_date":        "2024-12-31",
		"recurrence_type": "week",
		"recurrence_days": []string{"Friday"},
	}
	rec = s.do(t, http.MethodPost, "/api/v1/templates", admin, tmpl)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tmpl["recurrence_days"] = []string{}
	rec = s.do(t, http.MethodPost, "/api/v1/templates", admin, tmpl)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
