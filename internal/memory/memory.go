// Package memory keeps the bounded window of prior turns for one
// conversation and assembles the message list sent to a stateless
// completion endpoint.
//
// A Memory is not safe for concurrent use; callers serialize access.
package memory

import (
	"github.com/jonieats/assistant/internal/model/chat"
)

const (
	// DefaultCapacity is used when New receives a capacity below one.
	DefaultCapacity = 10
	// DefaultMaxTurnChars caps each history turn rendered by Assemble.
	DefaultMaxTurnChars = 1200
	// DefaultTruncationMarker is appended to history turns that were cut.
	DefaultTruncationMarker = "…"
)

// Memory is a FIFO log of user and assistant turns. Capacity counts raw
// turns, so a capacity of 5 may hold 3 user and 2 assistant turns.
type Memory struct {
	turns        []chat.Turn
	capacity     int
	maxTurnChars int
	marker       string
	onEvict      func(chat.Turn)
}

// Option configures a Memory.
type Option func(*Memory)

// WithMaxTurnChars sets the per-turn rune limit applied by Assemble.
func WithMaxTurnChars(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.maxTurnChars = n
		}
	}
}

// WithTruncationMarker overrides the text appended to truncated turns.
func WithTruncationMarker(marker string) Option {
	return func(m *Memory) {
		m.marker = marker
	}
}

// WithEvictHook registers fn to be called for every evicted turn.
func WithEvictHook(fn func(chat.Turn)) Option {
	return func(m *Memory) {
		m.onEvict = fn
	}
}

// New returns an empty memory holding at most capacity turns.
func New(capacity int, opts ...Option) *Memory {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	m := &Memory{
		turns:        make([]chat.Turn, 0, capacity+1),
		capacity:     capacity,
		maxTurnChars: DefaultMaxTurnChars,
		marker:       DefaultTruncationMarker,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppendUser records a user turn. Blank input must be filtered by the caller.
func (m *Memory) AppendUser(content string) {
	m.append(chat.NewTurn(chat.RoleUser, content))
}

// AppendAssistant records an assistant turn.
func (m *Memory) AppendAssistant(content string) {
	m.append(chat.NewTurn(chat.RoleAssistant, content))
}

func (m *Memory) append(turn chat.Turn) {
	m.turns = append(m.turns, turn)

	over := len(m.turns) - m.capacity
	if over <= 0 {
		return
	}

	if m.onEvict != nil {
		for _, evicted := range m.turns[:over] {
			m.onEvict(evicted)
		}
	}

	n := copy(m.turns, m.turns[over:])
	clear(m.turns[n:])
	m.turns = m.turns[:n]
}

// Clear drops every retained turn.
func (m *Memory) Clear() {
	clear(m.turns)
	m.turns = m.turns[:0]
}

// Turns returns a copy of the retained turns, oldest first.
func (m *Memory) Turns() []chat.Turn {
	return append([]chat.Turn(nil), m.turns...)
}

// Len reports the number of retained turns.
func (m *Memory) Len() int {
	return len(m.turns)
}

// Capacity reports the maximum number of retained turns.
func (m *Memory) Capacity() int {
	return m.capacity
}
