package api

import (
	"net/http"
	"time"

	"dgc-transports/internal/database"
	"dgc-transports/internal/utils"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// HealthDB reports whether the database answers a ping.
func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	if err := database.Ping(r.Context(), h.DB); err != nil {
		h.Logger.Error("DATABASE", "health check ping failed: "+err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
