package api

import (
	"net/http"

	"dgc-transports/internal/models"

	"github.com/go-chi/chi/v5"
)

// Reserve holds seats and creates pending bookings for the caller.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req models.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.Bookings.Reserve(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "seats reserved, awaiting payment", resp)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	bookings, err := h.Bookings.ConfirmPayment(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "payment confirmed", bookings)
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListMine(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	h.respond(w, http.StatusOK, "bookings found", bookings)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetByPNR(r.Context(), principal(r), chi.URLParam(r, "pnr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "booking found", b)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Cancel(r.Context(), principal(r), chi.URLParam(r, "pnr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "booking cancelled", b)
}

func (h *Handler) BoardBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Board(r.Context(), chi.URLParam(r, "pnr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "passenger boarded", b)
}

func (h *Handler) ArriveBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Arrive(r.Context(), chi.URLParam(r, "pnr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "passenger arrived", b)
}
