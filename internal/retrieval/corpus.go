package retrieval

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	sectionHeader  = regexp.MustCompile(`(?m)^### SECTION: (.+)$`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n+`)
)

// Corpus holds the three named sections of the knowledge file.
type Corpus struct {
	RestaurantKB string
	ChatPatterns string
	ContextFlow  string
}

// ParseCorpus splits raw corpus text on "### SECTION: NAME" headers.
// Unknown sections are ignored; section names are case-insensitive.
func ParseCorpus(raw string) Corpus {
	var corpus Corpus

	headers := sectionHeader.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range headers {
		name := strings.ToUpper(strings.TrimSpace(raw[loc[2]:loc[3]]))
		end := len(raw)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		body := strings.TrimSpace(raw[loc[1]:end])

		switch name {
		case "RESTAURANT_KB":
			corpus.RestaurantKB = body
		case "CHAT_PATTERNS":
			corpus.ChatPatterns = body
		case "CONTEXT_FLOW":
			corpus.ContextFlow = body
		}
	}

	return corpus
}

// LoadCorpus reads and parses the corpus file at path.
func LoadCorpus(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Corpus{}, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return ParseCorpus(string(data)), nil
}

// SplitChunks breaks text into blank-line separated paragraphs. A paragraph
// shorter than minLen is merged into the previous chunk when that chunk is
// itself still short.
func SplitChunks(text string, minLen int) []string {
	var chunks []string
	for _, part := range paragraphBreak.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		switch {
		case len(part) >= minLen:
			chunks = append(chunks, part)
		case len(chunks) > 0 && len(chunks[len(chunks)-1]) < minLen:
			chunks[len(chunks)-1] += "\n" + part
		default:
			chunks = append(chunks, part)
		}
	}
	return chunks
}
