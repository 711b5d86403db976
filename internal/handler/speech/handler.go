package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	chatHandler "github.com/jonieats/assistant/internal/handler/chat"
	"github.com/jonieats/assistant/internal/model/speech"
	chatservice "github.com/jonieats/assistant/internal/service/chat"
	"github.com/jonieats/assistant/internal/service/voice"
	"github.com/jonieats/assistant/pkg/utils"
)

const defaultLanguage = "en-US"

// SpeechService abstracts the speech backend so it can be faked in tests.
type SpeechService interface {
	voice.Transcriber
	voice.Synthesizer
	TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler serves speech recognition, synthesis and spoken conversation
// turns. Every route answers 503 when no speech backend is configured.
type Handler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
	pipeline  *voice.Pipeline
	language  string
}

// New builds the handler. speechSvc may be nil.
func New(speechSvc SpeechService, chatSvc *chatservice.Service, language string) *Handler {
	if strings.TrimSpace(language) == "" {
		language = defaultLanguage
	}
	h := &Handler{speechSvc: speechSvc, chatSvc: chatSvc, language: language}
	if speechSvc != nil && chatSvc != nil {
		h.pipeline = voice.NewPipeline(speechSvc, speechSvc, chatSvc)
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)

		ws := NewWebSocketHandler(h.speechSvc, h.chatSvc, h.language)
		speechRouter.Get("/ws/{sessionID}", h.requireSpeech(ws.handleWebSocket))
	})
	r.Post("/voice/{sessionID}", h.requireSpeech(h.handleVoiceTurn))
}

func (h *Handler) available() bool {
	return h.speechSvc != nil
}

func (h *Handler) requireSpeech(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.available() || h.chatSvc == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "speech service not configured")
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !h.available() {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service not configured")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = "default"
	}

	format := r.FormValue("format")
	if format == "" {
		format = inferAudioFormat(header.Filename)
	}

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  h.languageOr(r.FormValue("language")),
	})
	if err != nil {
		log.WithError(err).Warn("[speech] ASR error")
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if !h.available() {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service not configured")
		return
	}

	var req speech.TTSRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}
	req.Language = h.languageOr(req.Language)

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		log.WithError(err).Warn("[speech] TTS error")
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	if len(resp.AudioData) == 0 {
		utils.RespondJSON(w, http.StatusOK, resp)
		return
	}

	format := resp.Format
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		log.WithError(err).Warn("[speech] failed to write audio response")
	}
}

type voiceTurnRequest struct {
	Audio    string `json:"audio"` // base64
	Format   string `json:"format"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

type voiceTurnResponse struct {
	*voice.Exchange
	Audio string `json:"audio"` // base64
}

func (h *Handler) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req voiceTurnRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil || len(audio) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio must be non-empty base64")
		return
	}
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, chatHandler.ErrorStatus(err), err.Error())
		return
	}

	format := req.Format
	if format == "" {
		format = "wav"
	}

	exchange, err := h.pipeline.Process(r.Context(), sessionID, audio, format, req.Voice, h.languageOr(req.Language))
	if err != nil {
		utils.RespondError(w, voiceErrorStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, voiceTurnResponse{
		Exchange: exchange,
		Audio:    base64.StdEncoding.EncodeToString(exchange.Audio),
	})
}

func voiceErrorStatus(err error) int {
	if errors.Is(err, voice.ErrNoSpeech) {
		return http.StatusUnprocessableEntity
	}
	if status := chatHandler.ErrorStatus(err); status != http.StatusInternalServerError {
		return status
	}
	// Remaining failures come from the speech provider.
	log.WithError(err).Warn("[voice] turn failed")
	return http.StatusBadGateway
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if !h.available() {
		status = "unconfigured"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}

func (h *Handler) languageOr(language string) string {
	if strings.TrimSpace(language) == "" {
		return h.language
	}
	return language
}

// inferAudioFormat guesses the container format from a file name.
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg", ".pcm":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}
