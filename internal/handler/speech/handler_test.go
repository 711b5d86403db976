package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/jonieats/assistant/internal/model/profile"
	speechmodel "github.com/jonieats/assistant/internal/model/speech"
	"github.com/jonieats/assistant/internal/retrieval"
	"github.com/jonieats/assistant/internal/service/ai"
	chatservice "github.com/jonieats/assistant/internal/service/chat"
)

type fakeSpeechService struct {
	transcript    string
	asrErr        error
	transcribed   []byte
	asrLanguage   string
	synthText     string
	synthVoice    string
	synthLanguage string
}

func (f *fakeSpeechService) TranscribeAudio(_ context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	data, _ := io.ReadAll(req.AudioData)
	return f.TranscribeBuffer(context.Background(), req.SessionID, data, req.Format, req.Language)
}

func (f *fakeSpeechService) SynthesizeSpeech(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return f.SynthesizeToBuffer(context.Background(), req.SessionID, req.Text, req.Voice, req.Language)
}

func (f *fakeSpeechService) TranscribeBuffer(_ context.Context, sessionID string, audio []byte, _, language string) (*speechmodel.ASRResponse, error) {
	f.transcribed = audio
	f.asrLanguage = language
	if f.asrErr != nil {
		return nil, f.asrErr
	}
	return &speechmodel.ASRResponse{SessionID: sessionID, Text: f.transcript, Confidence: 0.9}, nil
}

func (f *fakeSpeechService) SynthesizeToBuffer(_ context.Context, sessionID, text, voice, language string) (*speechmodel.TTSResponse, error) {
	f.synthText = text
	f.synthVoice = voice
	f.synthLanguage = language
	return &speechmodel.TTSResponse{SessionID: sessionID, AudioData: []byte("audio"), Format: "mp3"}, nil
}

type markdownCompleter struct{}

func (markdownCompleter) Complete(_ context.Context, messages []*schema.Message, _ ai.Options) (string, error) {
	return "**Sure**, " + messages[len(messages)-1].Content, nil
}

func (c markdownCompleter) Stream(ctx context.Context, messages []*schema.Message, opts ai.Options, onDelta func(string) error) (string, error) {
	reply, _ := c.Complete(ctx, messages, opts)
	return reply, onDelta(reply)
}

func newChatService(t *testing.T) (*chatservice.Service, string) {
	t.Helper()
	store := profile.NewMemoryStore(profile.Seed(retrieval.Corpus{}, 3))
	chatSvc := chatservice.NewService(markdownCompleter{}, store, chatservice.Options{})
	session, err := chatSvc.CreateSession(context.Background(), profile.Voice)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	return chatSvc, session.ID
}

func newRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestTranscribeMultipart(t *testing.T) {
	fakeSvc := &fakeSpeechService{transcript: "a latte please"}
	r := newRouter(New(fakeSvc, nil, ""))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "sample.wav")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("pcm-bytes")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if string(fakeSvc.transcribed) != "pcm-bytes" {
		t.Fatalf("unexpected audio forwarded: %q", fakeSvc.transcribed)
	}
	if fakeSvc.asrLanguage != "en-US" {
		t.Fatalf("expected default language en-US, got %s", fakeSvc.asrLanguage)
	}

	var resp speechmodel.ASRResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "a latte please" {
		t.Fatalf("unexpected transcript %q", resp.Text)
	}
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	r := newRouter(New(fakeSvc, nil, "en-GB"))

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewReader([]byte(`{"text":"hello","voice":"en_male"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mp3" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if rr.Body.String() != "audio" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if fakeSvc.synthVoice != "en_male" || fakeSvc.synthLanguage != "en-GB" {
		t.Fatalf("unexpected voice/language %s/%s", fakeSvc.synthVoice, fakeSvc.synthLanguage)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewReader([]byte(`{"text":"  "}`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank text: expected 400, got %d", rr.Code)
	}
}

func TestVoiceTurn(t *testing.T) {
	chatSvc, sessionID := newChatService(t)
	fakeSvc := &fakeSpeechService{transcript: "what are your hours"}
	r := newRouter(New(fakeSvc, chatSvc, ""))

	payload, _ := json.Marshal(map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte("clip"))})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/voice/"+sessionID, bytes.NewReader(payload)))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		SessionID  string `json:"sessionId"`
		Transcript string `json:"transcript"`
		Reply      string `json:"reply"`
		Audio      string `json:"audio"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Transcript != "what are your hours" || resp.Reply != "Sure, what are your hours" {
		t.Fatalf("unexpected exchange %+v", resp)
	}
	if resp.Audio != base64.StdEncoding.EncodeToString([]byte("audio")) {
		t.Fatalf("unexpected audio %q", resp.Audio)
	}
	if fakeSvc.synthText != "Sure, what are your hours" {
		t.Fatalf("expected cleaned reply to be synthesized, got %q", fakeSvc.synthText)
	}

	turns, _ := chatSvc.History(context.Background(), sessionID)
	if len(turns) != 2 {
		t.Fatalf("expected the turn to be remembered, got %d turns", len(turns))
	}
}

func TestVoiceTurnErrors(t *testing.T) {
	chatSvc, sessionID := newChatService(t)
	fakeSvc := &fakeSpeechService{}
	r := newRouter(New(fakeSvc, chatSvc, ""))
	clip, _ := json.Marshal(map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte("clip"))})

	cases := []struct {
		name       string
		path       string
		body       []byte
		transcript string
		asrErr     error
		want       int
	}{
		{name: "silence", path: "/voice/" + sessionID, body: clip, want: http.StatusUnprocessableEntity},
		{name: "blank transcript", path: "/voice/" + sessionID, body: clip, transcript: " \t\n ", want: http.StatusUnprocessableEntity},
		{name: "bad audio", path: "/voice/" + sessionID, body: []byte(`{"audio":"%%%"}`), want: http.StatusBadRequest},
		{name: "unknown session", path: "/voice/missing", body: clip, want: http.StatusNotFound},
		{name: "asr failure", path: "/voice/" + sessionID, body: clip, asrErr: errors.New("down"), want: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fakeSvc.transcript = tc.transcript
			fakeSvc.asrErr = tc.asrErr
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, bytes.NewReader(tc.body)))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestUnconfiguredSpeechReturns503(t *testing.T) {
	chatSvc, sessionID := newChatService(t)
	r := newRouter(New(nil, chatSvc, ""))

	for _, path := range []string{"/speech/transcribe", "/speech/synthesize", "/voice/" + sessionID} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/speech/ws/"+sessionID, nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("websocket: expected 503, got %d", rr.Code)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{"a.MP3": "mp3", "b.ogg": "ogg", "c": "wav", "d.flac": "wav"}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
}
