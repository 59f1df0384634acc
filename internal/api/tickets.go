package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// BoardingPass streams the PDF boarding pass of a paid booking.
func (h *Handler) BoardingPass(w http.ResponseWriter, r *http.Request) {
	doc, filename, err := h.Tickets.BoardingPass(r.Context(), principal(r), chi.URLParam(r, "pnr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	img, err := h.Tickets.QRCode(r.Context(), principal(r), chi.URLParam(r, "pnr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

type checkInRequest struct {
	EncryptedQR string `json:"encrypted_qr" validate:"required"`
}

// CheckIn boards the passenger whose boarding pass was scanned.
// Expected POST body: {"encrypted_qr": "..."}
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Tickets.CheckIn(r.Context(), principal(r), req.EncryptedQR)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "check-in successful", b)
}
