package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/memory"
	"github.com/jonieats/assistant/internal/model/chat"
	"github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/internal/observability"
	"github.com/jonieats/assistant/internal/retrieval"
	"github.com/jonieats/assistant/internal/service/ai"
)

var (
	ErrProfileRequired  = errors.New("profile id is required")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrEmptyInput       = errors.New("message is empty")
	ErrCompletionFailed = errors.New("completion failed")
)

// Completer performs a single completion call over an assembled message list.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message, opts ai.Options) (string, error)
	Stream(ctx context.Context, messages []*schema.Message, opts ai.Options, onDelta func(string) error) (string, error)
}

// Retriever returns the knowledge snippets most relevant to a query.
type Retriever interface {
	Search(query string, k int) []retrieval.Hit
}

// Options tunes a Service. The zero value is usable.
type Options struct {
	Retriever        Retriever
	Metrics          *observability.Metrics
	MaxTurnChars     int
	CapacityOverride *int
	// IdleTimeout is the inactivity window after which Sweep drops a
	// session. Zero disables sweeping.
	IdleTimeout time.Duration
}

// Result is the outcome of one successful turn.
type Result struct {
	SessionID string          `json:"sessionId"`
	Reply     string          `json:"reply"`
	Hits      []retrieval.Hit `json:"hits,omitempty"`
}

type conversation struct {
	// mu serializes turns within one session.
	mu      sync.Mutex
	session chat.Session
	profile profile.Profile
	memory  *memory.Memory
}

// Service owns the live sessions and runs conversation turns.
type Service struct {
	completer Completer
	profiles  profile.Store
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*conversation
}

// NewService creates an in-memory session registry.
func NewService(completer Completer, profiles profile.Store, opts Options) *Service {
	return &Service{
		completer: completer,
		profiles:  profiles,
		opts:      opts,
		sessions:  make(map[string]*conversation),
	}
}

// CreateSession provisions an anonymous session bound to a profile.
func (s *Service) CreateSession(_ context.Context, profileID string) (chat.Session, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return chat.Session{}, ErrProfileRequired
	}

	p, ok := s.profiles.FindByID(profileID)
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}

	capacity := p.Capacity
	if s.opts.CapacityOverride != nil {
		capacity = *s.opts.CapacityOverride
	}

	now := time.Now().UTC()
	session := chat.Session{
		ID:             uuid.NewString(),
		ProfileID:      p.ID,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	memOpts := []memory.Option{
		memory.WithEvictHook(func(turn chat.Turn) {
			s.opts.Metrics.ObserveEviction(p.ID)
			log.WithFields(log.Fields{"session": session.ID, "evicted": turn.Role}).Debug("[chat] memory full, evicted oldest turn")
		}),
	}
	if s.opts.MaxTurnChars > 0 {
		memOpts = append(memOpts, memory.WithMaxTurnChars(s.opts.MaxTurnChars))
	}

	conv := &conversation{
		session: session,
		profile: p,
		memory:  memory.New(capacity, memOpts...),
	}

	s.mu.Lock()
	s.sessions[session.ID] = conv
	s.mu.Unlock()

	s.opts.Metrics.SessionOpened()
	log.WithFields(log.Fields{"session": session.ID, "profile": p.ID}).Info("[chat] session created")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return conv.session, nil
}

// Profile returns the profile a session is bound to.
func (s *Service) Profile(_ context.Context, sessionID string) (profile.Profile, error) {
	conv, err := s.lookup(sessionID)
	if err != nil {
		return profile.Profile{}, err
	}
	return conv.profile, nil
}

// EndSession discards a session and its memory.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.opts.Metrics.SessionClosed()
	log.WithField("session", sessionID).Info("[chat] session ended")
	return nil
}

// History returns the retained turns of a session, oldest first.
func (s *Service) History(_ context.Context, sessionID string) ([]chat.Turn, error) {
	conv, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.memory.Turns(), nil
}

// ClearHistory empties a session's memory without ending it.
func (s *Service) ClearHistory(_ context.Context, sessionID string) error {
	conv, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	conv.mu.Lock()
	conv.memory.Clear()
	conv.mu.Unlock()
	s.touch(sessionID)
	return nil
}

// Sweep drops sessions idle for longer than the configured timeout and
// returns how many were removed.
func (s *Service) Sweep(now time.Time) int {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	removed := 0
	for id, conv := range s.sessions {
		if now.Sub(conv.session.LastActivityAt) > s.opts.IdleTimeout {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	for i := 0; i < removed; i++ {
		s.opts.Metrics.SessionClosed()
	}
	if removed > 0 {
		log.Infof("[chat] swept %d idle sessions", removed)
	}
	return removed
}

// Reply runs one conversation turn and returns the assistant reply.
func (s *Service) Reply(ctx context.Context, sessionID, text string) (Result, error) {
	return s.turn(ctx, sessionID, text, nil)
}

// StreamReply is Reply with incremental delivery of the reply text.
func (s *Service) StreamReply(ctx context.Context, sessionID, text string, onDelta func(string) error) (Result, error) {
	return s.turn(ctx, sessionID, text, onDelta)
}

func (s *Service) turn(ctx context.Context, sessionID, text string, onDelta func(string) error) (Result, error) {
	conv, err := s.lookup(sessionID)
	if err != nil {
		return Result{}, err
	}

	query := strings.TrimSpace(text)
	if query == "" {
		return Result{}, ErrEmptyInput
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	p := conv.profile
	var hits []retrieval.Hit
	if p.UseRetrieval && s.opts.Retriever != nil {
		hits = s.opts.Retriever.Search(query, p.TopK)
		s.opts.Metrics.ObserveRetrieval(len(hits))
	}

	// Assemble before recording the turn so the query is sent exactly once.
	messages := conv.memory.Assemble(memory.Request{
		SystemPrompt: p.SystemPrompt,
		Query:        query,
		Snippets:     hits,
		FewShots:     p.FewShots,
		OmitContext:  !p.UseRetrieval,
	})
	conv.memory.AppendUser(query)
	s.touch(sessionID)

	opts := ai.Options{Temperature: p.Temperature, MaxTokens: p.MaxTokens}
	started := time.Now()

	var reply string
	if onDelta != nil {
		reply, err = s.completer.Stream(ctx, messages, opts, onDelta)
	} else {
		reply, err = s.completer.Complete(ctx, messages, opts)
	}
	s.opts.Metrics.ObserveCompletionLatency(p.ID, time.Since(started))

	fields := log.Fields{"session": sessionID, "profile": p.ID}
	if err != nil {
		s.opts.Metrics.ObserveTurn(p.ID, "error")
		log.WithFields(fields).WithError(err).Warn("[chat] completion failed")
		return Result{}, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	conv.memory.AppendAssistant(reply)
	s.touch(sessionID)
	s.opts.Metrics.ObserveTurn(p.ID, "ok")
	log.WithFields(fields).WithField("turns", conv.memory.Len()).Debug("[chat] turn completed")

	return Result{SessionID: sessionID, Reply: reply, Hits: hits}, nil
}

func (s *Service) lookup(sessionID string) (*conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

func (s *Service) touch(sessionID string) {
	s.mu.Lock()
	if conv, ok := s.sessions[sessionID]; ok {
		conv.session.LastActivityAt = time.Now().UTC()
	}
	s.mu.Unlock()
}
