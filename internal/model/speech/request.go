package speech

import "io"

// ASRRequest asks for a transcript of one utterance.
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // wav, pcm, mp3
	Language  string    `json:"language"` // en-US, zh-CN
}

// TTSRequest asks for speech audio for a piece of text.
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float32 `json:"speed"`  // 0.5-2.0
	Volume    float32 `json:"volume"` // 0.0-1.0
	Format    string  `json:"format"`
	Language  string  `json:"language"`
}
