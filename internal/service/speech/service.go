package speech

import (
	"bytes"
	"context"

	"github.com/jonieats/assistant/internal/model/speech"
)

// Service is the speech facade used by handlers and the voice assistant.
type Service struct {
	config *speech.Config
	asr    *ASRClient
	tts    *TTSClient
}

func NewService(cfg *speech.Config) *Service {
	return &Service{
		config: cfg,
		asr:    NewASRClient(cfg),
		tts:    NewTTSClient(cfg),
	}
}

// TranscribeAudio converts speech to text.
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	return s.asr.Transcribe(ctx, req)
}

// SynthesizeSpeech converts text to speech.
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	return s.tts.Synthesize(ctx, req)
}

// TranscribeBuffer transcribes an in-memory clip.
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speech.ASRResponse, error) {
	return s.TranscribeAudio(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audio),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer synthesizes text into an in-memory clip.
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Language:  language,
	})
}
