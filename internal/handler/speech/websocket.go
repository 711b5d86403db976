package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	chatservice "github.com/jonieats/assistant/internal/service/chat"
	"github.com/jonieats/assistant/internal/service/voice"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler runs a realtime voice conversation over one socket.
type WebSocketHandler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
	language  string
	upgrader  websocket.Upgrader
}

func NewWebSocketHandler(speechSvc SpeechService, chatSvc *chatservice.Service, language string) *WebSocketHandler {
	return &WebSocketHandler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		language:  language,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage carries one chunk of caller audio.
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	Language   string `json:"language"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage carries a typed user utterance.
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage adjusts the connection settings.
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	ASREnabled *bool  `json:"asrEnabled,omitempty"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
	StreamMode *bool  `json:"streamMode,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	profileID   string
	language    string
	voice       string
	asrEnabled  bool
	ttsEnabled  bool
	streamMode  bool
	audioFormat string
	buffer      bytes.Buffer
}

func newConnectionState(sessionID, profileID, language string) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		profileID:  profileID,
		language:   language,
		asrEnabled: true,
		ttsEnabled: true,
		streamMode: true,
	}
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	p, err := h.chatSvc.Profile(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	state := newConnectionState(sessionID, p.ID, h.language)
	entry := log.WithField("session", sessionID)
	entry.Info("[websocket] new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// WriteControl may run concurrently with WriteJSON.
	go h.pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{
		"type":     "connected",
		"profile":  p.ID,
		"greeting": p.Greeting,
		"language": state.language,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.WithError(err).Warn("[websocket] read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	if !state.asrEnabled {
		h.sendInfo(conn, state.sessionID, map[string]any{"type": "asr", "enabled": false})
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal || !state.streamMode {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	audio := bytes.Clone(state.buffer.Bytes())
	state.buffer.Reset()
	if len(audio) == 0 {
		return
	}

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}

	log.WithFields(log.Fields{"session": state.sessionID, "format": format, "bytes": len(audio)}).Debug("[websocket] processing ASR audio")

	asr, err := h.speechSvc.TranscribeBuffer(ctx, state.sessionID, audio, format, state.language)
	if err != nil {
		h.sendError(conn, fmt.Sprintf("ASR failed: %v", err))
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":       "asr",
		"text":       asr.Text,
		"confidence": asr.Confidence,
		"isFinal":    true,
	})

	transcript := strings.TrimSpace(asr.Text)
	if transcript == "" {
		return
	}
	if err := h.processUserText(ctx, conn, state, transcript); err != nil {
		h.sendError(conn, err.Error())
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if text.Text == "" {
		return
	}

	if err := h.processUserText(ctx, conn, state, text.Text); err != nil {
		h.sendError(conn, err.Error())
	}
}

func (h *WebSocketHandler) processUserText(ctx context.Context, conn *websocket.Conn, state *connectionState, userText string) error {
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "user",
		"text": userText,
	})

	onDelta := func(delta string) error {
		if delta != "" && state.streamMode {
			h.sendInfo(conn, state.sessionID, map[string]any{"type": "ai_delta", "text": delta})
		}
		return nil
	}

	result, err := h.chatSvc.StreamReply(ctx, state.sessionID, userText, onDelta)
	if err != nil {
		return err
	}

	reply := voice.CleanReply(result.Reply)
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "ai",
		"text":    reply,
		"isFinal": true,
	})

	if state.ttsEnabled && reply != "" {
		h.sendTTS(ctx, conn, state, reply)
	}
	return nil
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *websocket.Conn, state *connectionState, text string) {
	tts, err := h.speechSvc.SynthesizeToBuffer(ctx, state.sessionID, text, state.voice, state.language)
	if err != nil {
		log.WithField("session", state.sessionID).WithError(err).Warn("[websocket] TTS failed")
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "tts",
			"error": "synthesis failed",
		})
		return
	}
	if len(tts.AudioData) == 0 {
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":      "tts",
		"audioData": base64.StdEncoding.EncodeToString(tts.AudioData),
		"format":    tts.Format,
		"isFinal":   true,
	})
}

func (h *WebSocketHandler) handleConfigMessage(conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	applyConfig(state, cfg)

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":       "config",
		"profile":    state.profileID,
		"language":   state.language,
		"voice":      state.voice,
		"asr":        state.asrEnabled,
		"tts":        state.ttsEnabled,
		"streamMode": state.streamMode,
	})
}

func applyConfig(state *connectionState, cfg ConfigMessage) {
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != "" {
		state.voice = cfg.Voice
	}
	if cfg.ASREnabled != nil {
		state.asrEnabled = *cfg.ASREnabled
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled
	}
	if cfg.StreamMode != nil {
		state.streamMode = *cfg.StreamMode
	}
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.WithError(err).Debug("[websocket] write info failed")
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.WithError(err).Debug("[websocket] write error failed")
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
