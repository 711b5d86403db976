package stream

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	chatHandler "github.com/jonieats/assistant/internal/handler/chat"
	chatService "github.com/jonieats/assistant/internal/service/chat"
	"github.com/jonieats/assistant/pkg/utils"
)

// Handler streams assistant replies via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
}

func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// StreamResponse represents a streaming response chunk.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	// Unknown sessions get a plain 404 before the event stream opens.
	p, err := h.chatSvc.Profile(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, chatHandler.ErrorStatus(err), err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	send := func(resp StreamResponse) error {
		resp.SessionID = sessionID
		return utils.SendSSEChunk(w, flusher, resp)
	}

	_ = send(StreamResponse{Event: "start", Content: p.Name})

	result, err := h.chatSvc.StreamReply(r.Context(), sessionID, message, func(delta string) error {
		if delta == "" {
			return nil
		}
		return send(StreamResponse{Event: "delta", Content: delta})
	})
	if err != nil {
		log.WithField("session", sessionID).WithError(err).Warn("[stream] turn failed")
		_ = send(StreamResponse{Event: "error", Error: err.Error()})
		return
	}

	_ = send(StreamResponse{Event: "message", Content: result.Reply})
	_ = send(StreamResponse{Event: "end", Finished: true})

	log.WithFields(log.Fields{"session": sessionID, "profile": p.ID}).Debug("[stream] completed response")
}
