package profile

import (
	"fmt"
	"strings"

	"github.com/jonieats/assistant/internal/retrieval"
)

// Built-in profile identifiers.
const (
	Minimal = "minimal"
	Cafe    = "cafe"
	Voice   = "voice"
)

// Profile describes how an assistant assembles its prompt and how much
// conversation it remembers.
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Greeting     string   `json:"greeting,omitempty"`
	Farewell     string   `json:"farewell,omitempty"`
	Capacity     int      `json:"capacity"`
	UseRetrieval bool     `json:"useRetrieval"`
	TopK         int      `json:"topK,omitempty"`
	Temperature  *float32 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	EndPhrases   []string `json:"-"`
	SystemPrompt string   `json:"-"`
	FewShots     string   `json:"-"`
}

// Seed builds the default profiles from the knowledge corpus. topK is the
// retrieval depth of the cafe assistant.
func Seed(corpus retrieval.Corpus, topK int) []Profile {
	return []Profile{
		{
			ID:          Minimal,
			Name:        "Minimal chatbot",
			Description: "Plain chat that only remembers the last five messages.",
			Capacity:    5,
		},
		{
			ID:           Cafe,
			Name:         "Joni Eats cafe assistant",
			Description:  "Answers menu, dietary, hours and specials questions from the knowledge base.",
			Greeting:     "Hi! Ask me about our menu, hours, dietary options, or specials.",
			Capacity:     10,
			UseRetrieval: true,
			TopK:         topK,
			Temperature:  float32Ptr(0.2),
			SystemPrompt: cafeSystemPrompt,
			FewShots:     corpus.ChatPatterns,
		},
		{
			ID:           Voice,
			Name:         "Joni Eats voice assistant",
			Description:  "Phone-style assistant tuned for short spoken replies.",
			Greeting:     "Hi, Welcome to Joni Eats! How can I help you today?",
			Farewell:     "Thank you for calling Joni Eats! Have a wonderful day!",
			Capacity:     10,
			Temperature:  float32Ptr(0.5),
			MaxTokens:    intPtr(200),
			EndPhrases:   []string{"bye", "goodbye", "end call", "hang up", "that's all", "thanks bye"},
			SystemPrompt: voiceSystemPrompt(corpus),
			FewShots:     corpus.ChatPatterns,
		},
	}
}

const cafeSystemPrompt = "You are Joni Eats' cafe assistant. Be friendly, concise, and factual. " +
	"Use only the provided context snippets as your source of truth. If the answer isn't in the context, say you're not sure and ask a brief follow-up. " +
	"Scope: menu items (with ingredients/allergens when present), dietary suitability (vegan/vegetarian/gluten-free/halal), prices, hours, location, specials, ordering, and events. " +
	"Style: short paragraphs; when listing items, use bullet points (max 5) and prefer the most relevant choices. " +
	"When the user asks for a category (e.g., vegan/vegetarian/gluten-free/halal), scan the context and list matching items explicitly if present. " +
	"Do not deny availability when the context shows relevant items. Do not invent items, ingredients, prices, or policies that aren't in the context. " +
	"Maintain conversation context across messages; do not restart with greetings mid-conversation. If user preferences change (e.g., meat vs vegan), adapt recommendations accordingly. " +
	"If asked for 'most selling' and it's not in context, suggest popular-looking combos or deals without claiming they are the top-selling. " +
	"Avoid medical or legal advice; suggest speaking to staff for severe allergies or guarantees."

func voiceSystemPrompt(corpus retrieval.Corpus) string {
	return fmt.Sprintf(`You are an intelligent, warm, and professional AI voice assistant for Joni Eats restaurant. Your goal is to provide exceptional customer service through natural conversation.

### CORE PERSONALITY TRAITS
- Friendly and approachable, but professional
- Patient and understanding with all customers
- Proactive in offering help and suggestions
- Knowledgeable about all menu items and deals
- Empathetic when handling complaints or issues

### CONVERSATION GUIDELINES
%s

### ADVANCED INSTRUCTIONS
- If a customer seems indecisive, offer 2-3 specific recommendations based on popularity or value
- For complaints, acknowledge the issue, apologize sincerely, and offer concrete solutions
- When taking orders, confirm details clearly and suggest complementary items naturally
- Keep responses concise; this is a voice conversation, so avoid bullet points or complex formatting
- Remember context from earlier in the conversation to provide personalized service

### RESTAURANT KNOWLEDGE BASE
%s

Use the conversation examples as a guide for tone and style, but respond naturally to each customer.`,
		orPlaceholder(corpus.ContextFlow),
		orPlaceholder(corpus.RestaurantKB),
	)
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not provided)"
	}
	return s
}

func float32Ptr(v float32) *float32 { return &v }

func intPtr(v int) *int { return &v }
