package speech

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func boolPtr(v bool) *bool { return &v }

func TestApplyConfigUpdatesState(t *testing.T) {
	state := newConnectionState("session", "voice", "en-US")

	applyConfig(state, ConfigMessage{
		Language:   "en-GB",
		Voice:      "new-voice",
		ASREnabled: boolPtr(false),
		TTSEnabled: boolPtr(true),
		StreamMode: boolPtr(false),
	})

	if state.language != "en-GB" {
		t.Fatalf("expected language en-GB, got %s", state.language)
	}
	if state.voice != "new-voice" {
		t.Fatalf("expected voice new-voice, got %s", state.voice)
	}
	if state.asrEnabled {
		t.Fatalf("expected ASR disabled")
	}
	if !state.ttsEnabled {
		t.Fatalf("expected TTS enabled")
	}
	if state.streamMode {
		t.Fatalf("expected stream mode disabled")
	}
}

func TestWebSocketTextTurn(t *testing.T) {
	chatSvc, sessionID := newChatService(t)
	fakeSvc := &fakeSpeechService{}
	srv := httptest.NewServer(newRouter(New(fakeSvc, chatSvc, "")))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/speech/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() map[string]any {
		t.Helper()
		var msg outgoingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read err: %v", err)
		}
		data, _ := msg.Data.(map[string]any)
		return data
	}

	if got := read(); got["type"] != "connected" || got["profile"] != "voice" {
		t.Fatalf("unexpected greeting frame %+v", got)
	}

	if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "hello"}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	var kinds []string
	for len(kinds) == 0 || kinds[len(kinds)-1] != "tts" {
		data := read()
		kinds = append(kinds, data["type"].(string))
		if data["type"] == "ai" && data["text"] != "Sure, hello" {
			t.Fatalf("unexpected reply %+v", data)
		}
	}
	if got := strings.Join(kinds, ","); got != "user,ai_delta,ai,tts" {
		t.Fatalf("unexpected frame sequence %s", got)
	}
}

func TestWebSocketBlankTranscriptSkipsTurn(t *testing.T) {
	chatSvc, sessionID := newChatService(t)
	fakeSvc := &fakeSpeechService{transcript: "  \n\t "}
	srv := httptest.NewServer(newRouter(New(fakeSvc, chatSvc, "")))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/speech/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() map[string]any {
		t.Helper()
		var msg outgoingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read err: %v", err)
		}
		data, _ := msg.Data.(map[string]any)
		return data
	}
	read() // connected

	audio := map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("hiss"), "isFinal": true}}
	if err := conn.WriteJSON(audio); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if got := read(); got["type"] != "asr" {
		t.Fatalf("expected asr frame, got %+v", got)
	}

	if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "hello"}}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if got := read(); got["type"] != "user" || got["text"] != "hello" {
		t.Fatalf("blank transcript started a turn: %+v", got)
	}
}
