package memory

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/jonieats/assistant/internal/model/chat"
	"github.com/jonieats/assistant/internal/retrieval"
)

const noContext = "(none)"

// Request carries the per-turn inputs of Assemble.
type Request struct {
	SystemPrompt string
	Query        string
	Snippets     []retrieval.Hit
	FewShots     string
	// OmitContext drops the knowledge-base block entirely, for assistants
	// that never retrieve.
	OmitContext bool
}

// Assemble builds the ordered message list for one completion call:
// system prompt, context block, few-shot block, retained history and the
// live query. It does not mutate the memory.
func (m *Memory) Assemble(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(m.turns)+4)

	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}

	if !req.OmitContext {
		msgs = append(msgs, schema.SystemMessage("Context from KB:\n"+renderSnippets(req.Snippets)))
	}

	if shots := strings.TrimSpace(req.FewShots); shots != "" {
		msgs = append(msgs, schema.SystemMessage("Examples:\n"+shots))
	}

	for _, turn := range m.turns {
		content := m.truncate(strings.TrimSpace(turn.Content))
		switch turn.Role {
		case chat.RoleUser:
			msgs = append(msgs, schema.UserMessage(content))
		case chat.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(content, nil))
		}
	}

	return append(msgs, schema.UserMessage(req.Query))
}

func (m *Memory) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= m.maxTurnChars {
		return s
	}
	return string(runes[:m.maxTurnChars]) + m.marker
}

func renderSnippets(hits []retrieval.Hit) string {
	if len(hits) == 0 {
		return noContext
	}

	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, fmt.Sprintf("[Snippet %d]\n%s", hit.Index, hit.Text))
	}
	return strings.Join(parts, "\n\n")
}
