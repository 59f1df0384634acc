package api

import (
	"net/http"

	"dgc-transports/internal/auth"
	"dgc-transports/internal/domain"
	"dgc-transports/internal/recurrence"

	"github.com/go-chi/chi/v5"
)

// InvestorReport handles GET /reports/investor?from=&to=. Investors see
// their own vehicles; admins pass investor_id.
func (h *Handler) InvestorReport(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	q := r.URL.Query()

	investorID := p.UserID
	if p.IsAdmin() {
		investorID = q.Get("investor_id")
	} else if other := q.Get("investor_id"); other != "" && other != p.UserID {
		h.fail(w, r, domain.NotFound("investor", nil))
		return
	}

	report, err := h.Reports.InvestorReport(r.Context(), investorID, q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "investor report", report)
}

type assignInvestorRequest struct {
	InvestorID string `json:"investor_id" validate:"required,max=64"`
}

func (h *Handler) AssignInvestor(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := pathID(chi.URLParam(r, "vehicleId"), "vehicle_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req assignInvestorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Reports.AssignInvestor(r.Context(), vehicleID, req.InvestorID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "investor assigned", map[string]interface{}{"vehicle_id": vehicleID, "investor_id": req.InvestorID})
}

func (h *Handler) UnassignInvestor(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := pathID(chi.URLParam(r, "vehicleId"), "vehicle_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Reports.UnassignInvestor(r.Context(), vehicleID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "investor unassigned", map[string]interface{}{"vehicle_id": vehicleID})
}

type materializeRequest struct {
	Date string `json:"date" validate:"required,tripdate"`
}

// Materialize runs the materialization job for one date on demand.
func (h *Handler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req materializeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := recurrence.ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.Materializer.Run(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.LogSecurity("MATERIALIZE", "manual run for "+req.Date+" by "+auth.UserID(r.Context()))
	h.respond(w, http.StatusOK, "materialization finished", summary)
}
