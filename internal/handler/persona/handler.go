package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/wa-mentor/backend/internal/model/persona"
	"github.com/zhouzirui/wa-mentor/backend/pkg/utils"
)

// Handler exposes the persona catalog.
type Handler struct {
	personas persona.Store
	activeID string
}

// New creates the persona handler; activeID names the persona replying to
// inbound messages.
func New(personas persona.Store, activeID string) *Handler {
	return &Handler{
		personas: personas,
		activeID: activeID,
	}
}

// RegisterRoutes mounts the persona routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/persona", h.handleActivePersona)
}

type personaView struct {
	persona.Persona
	Active bool `json:"active"`
}

func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	items := h.personas.List()
	views := make([]personaView, 0, len(items))
	for _, item := range items {
		views = append(views, personaView{Persona: item, Active: item.ID == h.activeID})
	}
	utils.RespondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleActivePersona(w http.ResponseWriter, r *http.Request) {
	p, ok := h.personas.FindByID(h.activeID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "active persona not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, personaView{Persona: p, Active: true})
}
