// Package httpapi exposes the token economy over HTTP for the student
// web client and the admin dashboard.
package httpapi

import (
	"net/http"
	"time"

	"github.com/abhisek/wordmaster/internal/attempt"
	"github.com/abhisek/wordmaster/internal/config"
	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/settlement"
	"github.com/abhisek/wordmaster/internal/students"
	"github.com/abhisek/wordmaster/internal/testrequest"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Services are the domain services behind the API.
type Services struct {
	Students    *students.Service
	Ledger      *ledger.Ledger
	Requests    *testrequest.Service
	Settlements *settlement.Engine
	Attempts    *attempt.Service
}

// Handler serves the student and admin JSON API.
type Handler struct {
	svc Services
	log zerolog.Logger
}

// NewHandler creates a handler over the given services.
func NewHandler(svc Services, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "httpapi").Logger()}
}

// Router builds the chi router with middleware and every route mounted.
func (h *Handler) Router(cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(newCORS(cfg.CORS))
	r.Use(requestLogger(h.log))
	r.Use(recovery(h.log))
	if cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/students/login", h.login)
		r.Route("/students/{studentID}", func(r chi.Router) {
			r.Get("/", h.overview)
			r.Post("/test-requests", h.requestTest)
			r.Get("/test-requests/active", h.activeRequest)
			r.Post("/settlements", h.requestSettlement)
			r.Get("/settlements", h.studentSettlements)
			r.Get("/ledger", h.ledgerHistory)
			r.Post("/study-order", h.studyOrder)
		})
		r.Post("/attempts", h.completeAttempt)
		r.Post("/test-requests/{requestID}/abandon", h.abandonAttempt)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/summary", h.summary)
			r.Get("/students", h.listStudents)
			r.Post("/students", h.createStudent)
			r.Put("/students/{studentID}/balance", h.setBalance)
			r.Get("/test-requests", h.listTestRequests)
			r.Post("/test-requests/{requestID}/approve", h.approve)
			r.Post("/test-requests/{requestID}/reject", h.reject)
			r.Get("/settlements", h.listSettlements)
			r.Post("/settlements/{settlementID}/complete", h.completeSettlement)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
