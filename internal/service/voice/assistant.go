// Package voice runs the spoken assistant loop on top of the chat service.
package voice

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/model/profile"
	chatservice "github.com/jonieats/assistant/internal/service/chat"
)

// ErrNoSpeech means the listener heard nothing it could turn into text.
var ErrNoSpeech = errors.New("no speech recognized")

const (
	DefaultMaxListenFailures = 3

	troubleHearingMessage = "I'm having trouble hearing you. Please call back when you have a better connection. Thank you!"
	fallbackMessage       = "I apologize, but I'm having a technical issue. Could you please repeat your request?"
	interruptMessage      = "Goodbye!"
)

// Listener captures one user utterance.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Speaker delivers one assistant utterance.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Responder produces the assistant reply for a session.
type Responder interface {
	Reply(ctx context.Context, sessionID, text string) (chatservice.Result, error)
}

// Assistant drives a spoken conversation for one session.
type Assistant struct {
	responder   Responder
	sessionID   string
	listener    Listener
	speaker     Speaker
	greeting    string
	farewell    string
	endPhrases  [][]string
	maxFailures int
}

func NewAssistant(responder Responder, sessionID string, p profile.Profile, listener Listener, speaker Speaker) *Assistant {
	phrases := make([][]string, 0, len(p.EndPhrases))
	for _, phrase := range p.EndPhrases {
		if words := words(phrase); len(words) > 0 {
			phrases = append(phrases, words)
		}
	}

	return &Assistant{
		responder:   responder,
		sessionID:   sessionID,
		listener:    listener,
		speaker:     speaker,
		greeting:    p.Greeting,
		farewell:    p.Farewell,
		endPhrases:  phrases,
		maxFailures: DefaultMaxListenFailures,
	}
}

// Run speaks the greeting and alternates listening and replying until the
// caller says goodbye, the listener fails too often, input runs out or ctx
// is cancelled.
func (a *Assistant) Run(ctx context.Context) error {
	if a.greeting != "" {
		if err := a.speaker.Speak(ctx, a.greeting); err != nil {
			return err
		}
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return a.interrupted(ctx)
		}

		text, err := a.listener.Listen(ctx)
		switch {
		case ctx.Err() != nil:
			return a.interrupted(ctx)
		case errors.Is(err, ErrNoSpeech):
			failures++
			log.WithField("session", a.sessionID).Debugf("[voice] nothing heard (%d/%d)", failures, a.maxFailures)
			if failures >= a.maxFailures {
				return a.speaker.Speak(ctx, troubleHearingMessage)
			}
			continue
		case errors.Is(err, io.EOF):
			return a.sayFarewell(ctx)
		case err != nil:
			return err
		}
		failures = 0

		if a.isEndPhrase(text) {
			return a.sayFarewell(ctx)
		}

		result, err := a.responder.Reply(ctx, a.sessionID, text)
		if errors.Is(err, chatservice.ErrEmptyInput) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return a.interrupted(ctx)
			}
			log.WithField("session", a.sessionID).WithError(err).Warn("[voice] reply failed")
			if err := a.speaker.Speak(ctx, fallbackMessage); err != nil {
				return err
			}
			continue
		}

		if err := a.speaker.Speak(ctx, CleanReply(result.Reply)); err != nil {
			return err
		}
	}
}

func (a *Assistant) sayFarewell(ctx context.Context) error {
	if a.farewell == "" {
		return nil
	}
	return a.speaker.Speak(ctx, a.farewell)
}

func (a *Assistant) interrupted(ctx context.Context) error {
	return a.speaker.Speak(context.WithoutCancel(ctx), interruptMessage)
}

func (a *Assistant) isEndPhrase(text string) bool {
	said := words(text)
	for _, phrase := range a.endPhrases {
		if containsRun(said, phrase) {
			return true
		}
	}
	return false
}

// CleanReply strips markdown emphasis and heading marks that read badly aloud.
func CleanReply(reply string) string {
	reply = strings.NewReplacer("*", "", "#", "").Replace(reply)
	return strings.TrimSpace(reply)
}

func words(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func containsRun(haystack, needle []string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
