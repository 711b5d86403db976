package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonieats/assistant/internal/retrieval"
)

// Exchange is the result of one audio-in, audio-out turn.
type Exchange struct {
	SessionID   string          `json:"sessionId"`
	Transcript  string          `json:"transcript"`
	Reply       string          `json:"reply"`
	Audio       []byte          `json:"-"`
	AudioFormat string          `json:"audioFormat"`
	Confidence  float64         `json:"asrConfidence"`
	Hits        []retrieval.Hit `json:"hits,omitempty"`
	ProcessTime int64           `json:"processTime"` // milliseconds
}

// Pipeline chains recognition, the conversational turn and synthesis.
type Pipeline struct {
	transcriber Transcriber
	synthesizer Synthesizer
	responder   Responder
}

func NewPipeline(transcriber Transcriber, synthesizer Synthesizer, responder Responder) *Pipeline {
	return &Pipeline{transcriber: transcriber, synthesizer: synthesizer, responder: responder}
}

// Process runs one turn. A blank transcript yields ErrNoSpeech and leaves
// the session untouched.
func (p *Pipeline) Process(ctx context.Context, sessionID string, audio []byte, format, voice, language string) (*Exchange, error) {
	started := time.Now()

	asr, err := p.transcriber.TranscribeBuffer(ctx, sessionID, audio, format, language)
	if err != nil {
		return nil, fmt.Errorf("ASR failed: %w", err)
	}
	transcript := strings.TrimSpace(asr.Text)
	if transcript == "" {
		return nil, ErrNoSpeech
	}

	result, err := p.responder.Reply(ctx, sessionID, transcript)
	if err != nil {
		return nil, err
	}
	reply := CleanReply(result.Reply)

	tts, err := p.synthesizer.SynthesizeToBuffer(ctx, sessionID, reply, voice, language)
	if err != nil {
		return nil, fmt.Errorf("TTS failed: %w", err)
	}

	return &Exchange{
		SessionID:   sessionID,
		Transcript:  transcript,
		Reply:       reply,
		Audio:       tts.AudioData,
		AudioFormat: tts.Format,
		Confidence:  asr.Confidence,
		Hits:        result.Hits,
		ProcessTime: time.Since(started).Milliseconds(),
	}, nil
}
