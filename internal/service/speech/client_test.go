package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonieats/assistant/internal/model/speech"
)

var upgrader = websocket.Upgrader{}

func newSpeechServer(t *testing.T, handle func(r *http.Request, conn *websocket.Conn)) *speech.Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(r, conn)
	}))
	t.Cleanup(srv.Close)

	return &speech.Config{
		AppID:       "app",
		AccessToken: "token",
		BaseURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Timeout:     5,
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := DecodeMessage(bytes.NewReader(data))
	require.NoError(t, err)
	return msg
}

func TestASRTranscribe(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		language string
		headers  http.Header
	)

	cfg := newSpeechServer(t, func(r *http.Request, conn *websocket.Conn) {
		mu.Lock()
		headers = r.Header.Clone()
		mu.Unlock()

		first := readFrame(t, conn)
		body, err := DecompressPayload(first.Payload, first.Header.CompressionMethod)
		require.NoError(t, err)
		var req asrRequest
		require.NoError(t, json.Unmarshal(body, &req))

		var audio []byte
		for {
			frame := readFrame(t, conn)
			chunk, err := DecompressPayload(frame.Payload, frame.Header.CompressionMethod)
			require.NoError(t, err)
			audio = append(audio, chunk...)
			if frame.IsLastPacket() {
				break
			}
		}

		mu.Lock()
		received = audio
		language = req.Audio.Language
		mu.Unlock()

		payload, _ := json.Marshal(map[string]any{
			"result":     map[string]any{"text": " do you have vegan options "},
			"audio_info": map[string]any{"duration": 1200},
		})
		packed, _ := CompressPayload(payload, GzipCompression)
		resp := &Message{
			Header:   NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, GzipCompression),
			Sequence: -3,
			Payload:  packed,
		}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(resp)))
	})

	client := NewASRClient(cfg)
	client.interval = 0

	audio := bytes.Repeat([]byte{1, 2, 3, 4}, asrChunkSize/2)
	resp, err := client.Transcribe(context.Background(), &speech.ASRRequest{
		SessionID: "s-1",
		AudioData: bytes.NewReader(audio),
	})
	require.NoError(t, err)

	assert.Equal(t, "do you have vegan options", resp.Text)
	assert.Equal(t, int64(1200), resp.Duration)
	assert.Equal(t, 0.95, resp.Confidence)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, audio, received)
	assert.Equal(t, "en-US", language)
	assert.Equal(t, "app", headers.Get("X-Api-App-Key"))
	assert.Equal(t, "volc.bigasr.sauc.duration", headers.Get("X-Api-Resource-Id"))
	assert.Equal(t, "s-1", headers.Get("X-Api-Connect-Id"))
}

func TestASRServerError(t *testing.T) {
	cfg := newSpeechServer(t, func(_ *http.Request, conn *websocket.Conn) {
		readFrame(t, conn)
		resp := &Message{
			Header:    NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
			ErrorCode: 45000001,
			Payload:   []byte(`{"error":"invalid audio"}`),
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(resp))
	})

	client := NewASRClient(cfg)
	client.interval = 0
	_, err := client.Transcribe(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader([]byte{1, 2})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid audio")
}

func TestASRRejectsEmptyAudioAndMissingCredentials(t *testing.T) {
	client := NewASRClient(&speech.Config{AppID: "a", AccessToken: "t"})
	_, err := client.Transcribe(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrNoAudio)

	client = NewASRClient(&speech.Config{})
	_, err = client.Transcribe(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader([]byte{1})})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestTTSSynthesizeFallsBackOnResourceMismatch(t *testing.T) {
	var (
		mu        sync.Mutex
		resources []string
	)

	cfg := newSpeechServer(t, func(r *http.Request, conn *websocket.Conn) {
		resource := r.Header.Get("X-Api-Resource-Id")
		mu.Lock()
		resources = append(resources, resource)
		mu.Unlock()

		req := readFrame(t, conn)
		var body ttsRequest
		require.NoError(t, json.Unmarshal(req.Payload, &body))

		if resource == ttsSeedResource {
			resp := &Message{
				Header:  NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
				Payload: []byte(`{"error":"resource ID is mismatched with speaker related resource"}`),
			}
			_ = conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(resp))
			return
		}

		for _, chunk := range []string{"ID3", "audio"} {
			frame := &Message{
				Header:  NewHeader(AudioOnlyServerResponse, NoSequenceNumber, NoSerialization, NoCompression),
				Payload: []byte(chunk),
			}
			_ = conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(frame))
		}
		done := &Message{
			Header:    NewHeader(FullServerResponse, WithEvent, JSONSerialization, NoCompression),
			EventType: EventTypeSessionFinished,
			SessionID: body.User.UID,
			Payload:   []byte(`{"reqid":"r-1","addition":{"duration":"850"}}`),
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(done))
	})

	client := NewTTSClient(cfg)
	resp, err := client.Synthesize(context.Background(), &speech.TTSRequest{SessionID: "s-2", Text: "We open at 8am."})
	require.NoError(t, err)

	assert.Equal(t, "ID3audio", string(resp.AudioData))
	assert.Equal(t, "mp3", resp.Format)
	assert.Equal(t, "r-1", resp.RequestID)
	assert.Equal(t, int64(850), resp.Duration)
	assert.Equal(t, "s-2", resp.SessionID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{ttsSeedResource, ttsDefaultResource}, resources)
}

func TestTTSRejectsEmptyText(t *testing.T) {
	client := NewTTSClient(&speech.Config{AppID: "a", AccessToken: "t"})
	_, err := client.Synthesize(context.Background(), &speech.TTSRequest{Text: "  "})
	assert.Error(t, err)
}

func TestResolveResourceCandidates(t *testing.T) {
	tests := []struct {
		voice string
		want  []string
	}{
		{voice: "", want: []string{ttsDefaultResource, ttsSeedResource}},
		{voice: "S_clone_speaker", want: []string{ttsMegaResource}},
		{voice: "en_female_amy_jupiter_bigtts", want: []string{ttsSeedResource, ttsDefaultResource}},
		{voice: "en_male_classic", want: []string{ttsDefaultResource, ttsSeedResource}},
	}

	for _, tt := range tests {
		if got := resolveResourceCandidates(tt.voice); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("resolveResourceCandidates(%q) = %v, want %v", tt.voice, got, tt.want)
		}
	}
}

func TestResolveSpeakerCandidates(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		fallback string
		want     []string
	}{
		{name: "request and fallback", request: "en_voice", fallback: DefaultVoice, want: []string{"en_voice", DefaultVoice}},
		{name: "request empty", request: "", fallback: DefaultVoice, want: []string{DefaultVoice}},
		{name: "duplicates ignored", request: "EN_voice", fallback: "en_voice", want: []string{"EN_voice"}},
		{name: "alias", request: "joni-eats", fallback: DefaultVoice, want: []string{DefaultVoice}},
	}

	for _, tt := range tests {
		if got := resolveSpeakerCandidates(tt.request, tt.fallback); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
