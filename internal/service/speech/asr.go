package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/model/speech"
)

const (
	asrPath = "/api/v3/sauc/bigmodel_nostream"

	// 200ms of 16kHz 16-bit mono PCM.
	asrChunkSize     = 6400
	asrChunkInterval = 200 * time.Millisecond
)

// ASRClient transcribes audio over the Volcengine streaming ASR socket.
type ASRClient struct {
	config   *speech.Config
	dialer   *websocket.Dialer
	interval time.Duration
}

func NewASRClient(cfg *speech.Config) *ASRClient {
	return &ASRClient{config: cfg, dialer: newDialer(cfg), interval: asrChunkInterval}
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

// Transcribe sends one utterance and waits for the final transcript.
func (c *ASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, stop, err := dial(ctx, c.dialer, endpoint(c.config, asrPath), appID, token, resourceID, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer stop()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	body, err = CompressPayload(body, GzipCompression)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, NewFullClientRequest(body, GzipCompression)); err != nil {
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.sendAudio(ctx, conn, audio)
	}()

	resp, err := c.receive(conn, req.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case sErr := <-sendErr:
			if sErr != nil {
				log.Debugf("[asr] audio upload stopped early: %v", sErr)
			}
		default:
		}
		return nil, err
	}
	return resp, nil
}

func (c *ASRClient) buildRequest(req *speech.ASRRequest) *asrRequest {
	r := &asrRequest{}
	r.User.UID = req.SessionID

	r.Audio.Format = firstNonEmpty(req.Format, "wav")
	r.Audio.Language = firstNonEmpty(req.Language, c.config.ASRLanguage, "en-US")
	r.Audio.Codec = "raw"
	r.Audio.Rate = 16000
	r.Audio.Bits = 16
	r.Audio.Channel = 1

	r.Request.ModelName = firstNonEmpty(c.config.ASRModel, "bigmodel")
	r.Request.EnableITN = true
	r.Request.EnablePunc = true
	r.Request.ShowUtterances = true
	r.Request.ResultType = "full"
	r.Request.EndWindowSize = 800
	return r
}

// sendAudio streams the audio in paced chunks. Sequence 1 belongs to the
// full client request.
func (c *ASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	seq := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := CompressPayload(audio[start:end], GzipCompression)
		if err != nil {
			return err
		}
		if err := writeFrame(conn, NewAudioOnlyRequest(chunk, seq, last, GzipCompression)); err != nil {
			return err
		}
		seq++

		if last || c.interval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
	return nil
}

func (c *ASRClient) receive(conn *websocket.Conn, sessionID string) (*speech.ASRResponse, error) {
	var (
		text     string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			return nil, fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}

			var server asrServerMessage
			if err := json.Unmarshal(payload, &server); err != nil {
				log.Warnf("[asr] failed to unmarshal response: %v", err)
				continue
			}
			if server.Code != 0 && server.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", server.Code, server.Message)
			}

			if candidate := server.Result.Text; candidate != "" {
				text = candidate
			} else if len(server.Result.Utterances) > 0 {
				text = joinUtterances(server.Result.Utterances)
			}
			if server.AudioInfo.Duration > 0 {
				duration = server.AudioInfo.Duration
			}

			if msg.IsLastPacket() || server.Sequence < 0 {
				confidence := 0.0
				if strings.TrimSpace(text) != "" {
					confidence = 0.95
				}
				return &speech.ASRResponse{
					SessionID:  sessionID,
					Text:       strings.TrimSpace(text),
					Confidence: confidence,
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
