package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonieats/assistant/internal/handler/chat"
	"github.com/jonieats/assistant/internal/handler/profile"
	"github.com/jonieats/assistant/internal/handler/speech"
	"github.com/jonieats/assistant/internal/handler/stream"
	middlewarePkg "github.com/jonieats/assistant/internal/middleware"
	profileModel "github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/internal/observability"
	chatService "github.com/jonieats/assistant/internal/service/chat"
	"github.com/jonieats/assistant/pkg/utils"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Profiles profileModel.Store
	Chat     *chatService.Service
	// Speech is nil when no speech provider is configured.
	Speech         speech.SpeechService
	SpeechLanguage string
	Metrics        *observability.Metrics
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		profile.New(deps.Profiles).RegisterRoutes(api)
		chat.New(deps.Chat).RegisterRoutes(api)
		stream.New(deps.Chat).RegisterRoutes(api)
		speech.New(deps.Speech, deps.Chat, deps.SpeechLanguage).RegisterRoutes(api)
	})

	return r
}
