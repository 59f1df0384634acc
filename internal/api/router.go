package api

import (
	"net/http"
	"time"

	"dgc-transports/internal/auth"
	"dgc-transports/internal/config"
	"dgc-transports/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires every route. Public: health, metrics, trip search and
// availability. Everything under /api/v1 beyond those needs a bearer token.
func NewRouter(h *Handler, verifier auth.Verifier, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(requestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/health/db", h.HealthDB)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/trips/search", h.SearchTrips)
		r.Get("/trips/availability", h.GetAvailability)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, h.Logger))

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", h.Reserve)
				r.Post("/confirm", h.ConfirmPayment)
				r.Get("/mine", h.ListMyBookings)
				r.Get("/{pnr}", h.GetBooking)
				r.Post("/{pnr}/cancel", h.CancelBooking)
				r.Get("/{pnr}/boarding-pass", h.BoardingPass)
				r.Get("/{pnr}/qr", h.TicketQR)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(auth.RoleStaff))
					r.Post("/{pnr}/board", h.BoardBooking)
					r.Post("/{pnr}/arrive", h.ArriveBooking)
				})
			})

			r.With(auth.RequireRole(auth.RoleStaff)).Post("/checkin", h.CheckIn)

			r.With(auth.RequireRole(auth.RoleInvestor)).Get("/reports/investor", h.InvestorReport)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/templates", h.CreateTemplate)
				r.Get("/templates/{templateId}", h.GetTemplate)
				r.Put("/templates/{templateId}/status", h.SetTemplateStatus)
				r.Put("/vehicles/{vehicleId}/investor", h.AssignInvestor)
				r.Delete("/vehicles/{vehicleId}/investor", h.UnassignInvestor)
				if h.Materializer != nil {
					r.Post("/materialize", h.Materialize)
				}
			})
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
