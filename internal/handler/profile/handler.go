package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/pkg/utils"
)

// Handler serves the profile catalogue.
type Handler struct {
	profiles profile.Store
}

func New(profiles profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.handleListProfiles)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}
