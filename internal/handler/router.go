package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/wa-mentor/backend/internal/handler/dashboard"
	"github.com/zhouzirui/wa-mentor/backend/internal/handler/persona"
	"github.com/zhouzirui/wa-mentor/backend/internal/handler/webhook"
	middlewarePkg "github.com/zhouzirui/wa-mentor/backend/internal/middleware"
	personaModel "github.com/zhouzirui/wa-mentor/backend/internal/model/persona"
)

// Dependencies are the services the HTTP layer is wired to.
type Dependencies struct {
	Responder webhook.Responder
	Sessions  dashboard.SessionSource
	Index     dashboard.IndexStatus
	Personas  personaModel.Store
	PersonaID string
	Probe     webhook.Probe
	Logger    logrus.FieldLogger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	webhook.New(deps.Responder, deps.Probe, deps.Logger).RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		dashboard.New(deps.Sessions, deps.Index, deps.Logger).RegisterRoutes(api)
		persona.New(deps.Personas, deps.PersonaID).RegisterRoutes(api)
	})

	return r
}
