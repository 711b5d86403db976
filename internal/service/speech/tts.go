package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/model/speech"
)

const (
	ttsPath = "/api/v3/tts/unidirectional/stream"

	ttsDefaultResource = "volc.service_type.10029"
	ttsMegaResource    = "volc.megatts.default"
	ttsSeedResource    = "seed-tts-2.0"

	// DefaultVoice is used when neither the request nor the config names one.
	DefaultVoice = "en_female_amy_jupiter_bigtts"
)

// TTSClient synthesizes speech over the Volcengine unidirectional TTS socket.
type TTSClient struct {
	config *speech.Config
	dialer *websocket.Dialer
}

func NewTTSClient(cfg *speech.Config) *TTSClient {
	return &TTSClient{config: cfg, dialer: newDialer(cfg)}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition"`
}

// Synthesize renders text to audio, trying each speaker and resource id
// combination until the service accepts one.
func (c *TTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	// wav is not offered by the unidirectional endpoint.
	format := strings.TrimSpace(req.Format)
	if format == "" || format == "wav" {
		format = "mp3"
	}

	speakers := resolveSpeakerCandidates(req.Voice, firstNonEmpty(c.config.TTSVoice, DefaultVoice))
	var lastMismatch error

	for _, speaker := range speakers {
		for _, resourceID := range resolveResourceCandidates(speaker) {
			resp, err := c.synthesizeWith(ctx, req, appID, token, speaker, resourceID, format)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			log.Debugf("[tts] voice %s rejected resource %s", speaker, resourceID)
			lastMismatch = err
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("no usable TTS speaker among %v", speakers)
}

func (c *TTSClient) synthesizeWith(ctx context.Context, req *speech.TTSRequest, appID, token, speaker, resourceID, format string) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()

	conn, stop, err := dial(ctx, c.dialer, endpoint(c.config, ttsPath), appID, token, resourceID, connectID)
	if err != nil {
		return nil, err
	}
	defer stop()

	sessionID := firstNonEmpty(req.SessionID, connectID)
	body, err := json.Marshal(c.buildRequest(req, sessionID, speaker, format))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	if err := writeFrame(conn, NewFullClientRequest(body, NoCompression)); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			return nil, fmt.Errorf("TTS error %d: %s", msg.ErrorCode, string(payload))

		case AudioOnlyServerResponse:
			chunk, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress audio chunk: %w", err)
			}
			audio.Write(chunk)

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
			}

			var server ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &server); err != nil {
					log.Warnf("[tts] failed to unmarshal response: %v", err)
				} else {
					if server.Code != 0 && server.Code != 3000 {
						return nil, fmt.Errorf("TTS API error %d: %s", server.Code, server.Message)
					}
					if server.ReqID != "" {
						reqID = server.ReqID
					}
					if ms, err := strconv.ParseInt(server.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if server.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(server.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := msg.Header.MessageFlags&WithEvent == WithEvent && msg.EventType == EventTypeSessionFinished
			if finished || msg.IsLastPacket() || server.Sequence < 0 {
				if audio.Len() == 0 {
					return nil, fmt.Errorf("TTS audio is empty")
				}
				return &speech.TTSResponse{
					SessionID: sessionID,
					AudioData: audio.Bytes(),
					Duration:  duration,
					Format:    format,
					RequestID: firstNonEmpty(reqID, connectID),
					CreatedAt: time.Now(),
				}, nil
			}
		}
	}
}

func (c *TTSClient) buildRequest(req *speech.TTSRequest, uid, speaker, format string) *ttsRequest {
	r := &ttsRequest{}
	r.User.UID = uid
	r.ReqParams.Speaker = speaker
	r.ReqParams.Text = req.Text
	r.ReqParams.AudioParams.Format = format
	r.ReqParams.AudioParams.SampleRate = 24000

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		r.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		r.ReqParams.AudioParams.VolumeRatio = volume
	}

	r.ReqParams.Language = firstNonEmpty(req.Language, c.config.TTSLanguage)
	// Replies are plain text; let the service strip any stray markdown.
	r.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return r
}

var voiceAliases = map[string]string{
	"joni-eats":  DefaultVoice,
	"en_default": DefaultVoice,
	"en_male":    "en_male_glen_emo_v2_mars_bigtts",
	"en_female":  "en_female_skye_emo_v2_mars_bigtts",
}

// resolveSpeakerCandidates expands aliases and returns the requested voice
// followed by the fallback, without duplicates.
func resolveSpeakerCandidates(requested, fallback string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := voiceAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		out = append(out, s)
	}

	add(requested)
	add(fallback)
	return out
}

// resolveResourceCandidates orders resource ids by how likely they are to
// serve the voice. Cloned voices only live on the mega resource.
func resolveResourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsMegaResource}
	}

	lower := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "jupiter", "mars", "venus", "uranus"} {
		if strings.Contains(lower, hint) {
			return []string{ttsSeedResource, ttsDefaultResource}
		}
	}
	return []string{ttsDefaultResource, ttsSeedResource}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
