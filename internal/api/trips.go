package api

import (
	"net/http"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/models"
	"dgc-transports/internal/trips"
	"dgc-transports/internal/utils"

	"github.com/go-chi/chi/v5"
)

// AvailabilityResponse is the flat seat-availability payload.
type AvailabilityResponse struct {
	Success       bool   `json:"success"`
	TemplateID    int64  `json:"template_id"`
	TripDate      string `json:"trip_date"`
	BookedSeats   []int  `json:"booked_seats"`
	TotalCapacity int    `json:"total_capacity"`
	Available     int    `json:"available_seats"`
}

// SearchTrips handles GET /trips/search?pickup_city_id=&dropoff_city_id=&vehicle_type_id=&trip_date=
func (h *Handler) SearchTrips(w http.ResponseWriter, r *http.Request) {
	var req trips.SearchRequest
	var err error
	if req.PickupCityID, err = queryInt(r, "pickup_city_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.DropoffCityID, err = queryInt(r, "dropoff_city_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.VehicleTypeID, err = queryInt(r, "vehicle_type_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	req.TripDate = r.URL.Query().Get("trip_date")
	if err := validateStruct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	results, err := h.Trips.SearchTrips(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "trips found", results)
}

// GetAvailability handles GET /trips/availability?template_id=&trip_date=
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	templateID, err := queryInt(r, "template_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if templateID <= 0 {
		h.fail(w, r, domain.Validation("template_id", "must be a positive integer"))
		return
	}

	avail, err := h.Seats.GetAvailability(r.Context(), templateID, r.URL.Query().Get("trip_date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeAvailability(w, avail)
}

func writeAvailability(w http.ResponseWriter, a models.Availability) {
	utils.WriteJSON(w, http.StatusOK, AvailabilityResponse{
		Success:       true,
		TemplateID:    a.TemplateID,
		TripDate:      a.TripDate,
		BookedSeats:   a.BookedSeats,
		TotalCapacity: a.Capacity,
		Available:     a.Available,
	})
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "templateId"), "template_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.Trips.GetTemplate(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "template found", t)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.TripTemplate
	if err := decodeJSON(w, r, &t); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.Trips.CreateTemplate(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "template created", created)
}

type templateStatusRequest struct {
	Status models.TemplateStatus `json:"status" validate:"required,oneof=active inactive"`
}

// SetTemplateStatus soft-enables or disables a template.
func (h *Handler) SetTemplateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "templateId"), "template_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req templateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Trips.SetTemplateStatus(r.Context(), id, req.Status); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "template "+string(req.Status), nil)
}
