package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	chatService "github.com/jonieats/assistant/internal/service/chat"
	"github.com/jonieats/assistant/pkg/utils"
)

// Handler exposes session lifecycle and conversation turns over HTTP.
type Handler struct {
	chatSvc *chatService.Service
}

func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Delete("/session/{sessionID}", h.handleEndSession)
	r.Get("/session/{sessionID}/history", h.handleHistory)
	r.Delete("/session/{sessionID}/history", h.handleClearHistory)
	r.Post("/chat/{sessionID}", h.handleChat)
}

// ErrorStatus maps chat service errors to HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrEmptyInput),
		errors.Is(err, chatService.ErrProfileRequired),
		errors.Is(err, chatService.ErrProfileNotFound):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrCompletionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProfileID string `json:"profileId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.ProfileID)
	if err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := h.chatSvc.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, turns)
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.ClearHistory(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.Reply(r.Context(), sessionID, payload.Message)
	if err != nil {
		status := ErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.WithField("session", sessionID).WithError(err).Error("[chat] turn failed")
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}
