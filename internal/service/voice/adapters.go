package voice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jonieats/assistant/internal/model/speech"
)

// Transcriber turns an audio clip into text.
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speech.ASRResponse, error)
}

// Synthesizer turns text into an audio clip.
type Synthesizer interface {
	SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error)
}

var audioExtensions = map[string]string{
	".wav": "wav",
	".pcm": "pcm",
	".mp3": "mp3",
	".ogg": "ogg",
}

// SpeechListener plays back recorded utterances from a directory, one file
// per turn in lexical order, through speech recognition.
type SpeechListener struct {
	transcriber Transcriber
	sessionID   string
	language    string
	files       []string
	next        int
}

func NewSpeechListener(transcriber Transcriber, sessionID, dir, language string) (*SpeechListener, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read audio dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(files)

	return &SpeechListener{transcriber: transcriber, sessionID: sessionID, language: language, files: files}, nil
}

// Listen returns io.EOF once every file has been consumed. Unreadable or
// silent clips report ErrNoSpeech.
func (l *SpeechListener) Listen(ctx context.Context) (string, error) {
	if l.next >= len(l.files) {
		return "", io.EOF
	}
	path := l.files[l.next]
	l.next++

	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSpeech, err)
	}

	format := audioExtensions[strings.ToLower(filepath.Ext(path))]
	resp, err := l.transcriber.TranscribeBuffer(ctx, l.sessionID, audio, format, l.language)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrNoSpeech, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// SpeechSpeaker synthesizes each utterance to a numbered file in outDir and
// optionally hands it to a player command.
type SpeechSpeaker struct {
	synthesizer Synthesizer
	sessionID   string
	voice       string
	language    string
	outDir      string
	player      string
	echo        io.Writer
	count       int
}

func NewSpeechSpeaker(synthesizer Synthesizer, sessionID, voice, language, outDir, player string, echo io.Writer) *SpeechSpeaker {
	return &SpeechSpeaker{
		synthesizer: synthesizer,
		sessionID:   sessionID,
		voice:       voice,
		language:    language,
		outDir:      outDir,
		player:      player,
		echo:        echo,
	}
}

func (s *SpeechSpeaker) Speak(ctx context.Context, text string) error {
	if s.echo != nil {
		fmt.Fprintf(s.echo, "Assistant: %s\n", text)
	}

	resp, err := s.synthesizer.SynthesizeToBuffer(ctx, s.sessionID, text, s.voice, s.language)
	if err != nil {
		return fmt.Errorf("synthesize reply: %w", err)
	}

	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return err
	}
	s.count++
	path := filepath.Join(s.outDir, fmt.Sprintf("reply-%03d.%s", s.count, resp.Format))
	if err := os.WriteFile(path, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("write reply audio: %w", err)
	}

	if s.player == "" {
		return nil
	}
	if err := exec.CommandContext(ctx, s.player, path).Run(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("play reply audio: %w", err)
	}
	return nil
}

// LineListener reads typed utterances, one per line.
type LineListener struct {
	scanner *bufio.Scanner
	prompt  io.Writer
}

func NewLineListener(in io.Reader, prompt io.Writer) *LineListener {
	return &LineListener{scanner: bufio.NewScanner(in), prompt: prompt}
}

// Listen treats blank lines as silence.
func (l *LineListener) Listen(_ context.Context) (string, error) {
	if l.prompt != nil {
		fmt.Fprint(l.prompt, "You: ")
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}

	text := strings.TrimSpace(l.scanner.Text())
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// PrintSpeaker writes utterances to a terminal.
type PrintSpeaker struct {
	out io.Writer
}

func NewPrintSpeaker(out io.Writer) *PrintSpeaker {
	return &PrintSpeaker{out: out}
}

func (p *PrintSpeaker) Speak(_ context.Context, text string) error {
	_, err := fmt.Fprintf(p.out, "Assistant: %s\n", text)
	return err
}
