package text

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/v2"
	"github.com/kljensen/snowball"
	log "github.com/sirupsen/logrus"
)

const minTokenLen = 3

// Part-of-speech labels kept by the pipeline.
const (
	POSNoun = "noun"
	POSVerb = "verb"
	POSAdj  = "adj"
)

// Options tunes Preprocess.
type Options struct {
	// Stem switches from dictionary lemmatization to the snowball English stemmer.
	Stem bool
}

type taggedWord struct {
	base string
	pos  string
}

var (
	lemmatizerOnce sync.Once
	lemmatizer     *golem.Lemmatizer
)

// Preprocess runs the classic cleanup pipeline: lowercase, strip digits and
// punctuation, drop stop words, keep only nouns, verbs and adjectives, reduce
// each word to its base form and drop anything shorter than three letters.
func Preprocess(s string, opts Options) []string {
	words := preprocess(s, opts)
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w.base)
	}
	return out
}

// PreprocessWithPOS applies the same filtering as Preprocess and annotates
// each surviving token as "base->noun", "base->verb" or "base->adj".
func PreprocessWithPOS(s string, opts Options) []string {
	words := preprocess(s, opts)
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w.base+"->"+w.pos)
	}
	return out
}

// PreprocessString joins the Preprocess output with single spaces.
func PreprocessString(s string, opts Options) string {
	return strings.Join(Preprocess(s, opts), " ")
}

func preprocess(s string, opts Options) []taggedWord {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || strings.ContainsRune(asciiPunctuation, r) {
			return ' '
		}
		return r
	}, s)

	var words []string
	for _, word := range strings.Fields(s) {
		if !isAlpha(word) || IsStopWord(word) {
			continue
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return nil
	}

	var out []taggedWord
	for _, tok := range tag(words) {
		pos := posLabel(tok.Tag)
		if pos == "" {
			continue
		}

		base := lemma(tok.Text, pos)
		if opts.Stem {
			base = stem(tok.Text)
		}

		if utf8.RuneCountInString(base) < minTokenLen || IsStopWord(base) {
			continue
		}
		out = append(out, taggedWord{base: base, pos: pos})
	}
	return out
}

// tag runs the averaged perceptron tagger over the already filtered words.
// If the tagger fails every word is treated as a noun.
func tag(words []string) []prose.Token {
	doc, err := prose.NewDocument(strings.Join(words, " "),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		log.WithError(err).Warn("pos tagging failed, treating tokens as nouns")
		toks := make([]prose.Token, 0, len(words))
		for _, w := range words {
			toks = append(toks, prose.Token{Text: w, Tag: "NN"})
		}
		return toks
	}
	return doc.Tokens()
}

// posLabel maps Penn Treebank tags onto the kept word classes. Everything
// else (adverbs, pronouns, determiners, ...) yields "".
func posLabel(tag string) string {
	switch {
	case strings.HasPrefix(tag, "NN"):
		return POSNoun
	case strings.HasPrefix(tag, "VB"):
		return POSVerb
	case strings.HasPrefix(tag, "JJ"):
		return POSAdj
	default:
		return ""
	}
}

func getLemmatizer() *golem.Lemmatizer {
	lemmatizerOnce.Do(func() {
		l, err := golem.New(en.New())
		if err != nil {
			log.WithError(err).Error("failed to load english lemma dictionary")
			return
		}
		lemmatizer = l
	})
	return lemmatizer
}

// lemma reduces word to its dictionary form. The dictionary is not split by
// part of speech, so pos picks among ambiguous candidates: verbs prefer an
// inflection change, adjectives keep their surface form when it is itself a
// lemma.
func lemma(word, pos string) string {
	l := getLemmatizer()
	if l == nil {
		return word
	}

	candidates := l.Lemmas(word)
	switch pos {
	case POSVerb:
		for _, c := range candidates {
			if c != word {
				return c
			}
		}
	case POSAdj:
		for _, c := range candidates {
			if c == word {
				return word
			}
		}
	}
	return l.Lemma(word)
}

func isAlpha(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return word != ""
}

func stem(word string) string {
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}
