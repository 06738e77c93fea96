package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultWordCountFloor keeps log10(word count) finite for empty documents.
const DefaultWordCountFloor = 0.01

// letters that do not decompose into a base letter plus a combining mark.
// Only Latin letters are folded; Cyrillic, Greek and other scripts pass
// through unchanged and form non-ASCII tokens.
var foldLetters = map[rune]string{
	'ø': "o", 'ß': "ss", 'æ': "ae", 'œ': "oe", 'đ': "d", 'ł': "l", 'þ': "th", 'ð': "d", 'ı': "i",
}

// Normalizer turns raw description text into stemmed, stop-word-free tokens.
// It is safe for concurrent use once constructed.
type Normalizer struct {
	stopwords map[string]struct{}
	stemmer   Stemmer
}

// NewNormalizer creates a normalizer using the English stop-word set plus
// any extra words supplied (e.g. from a stoplist file).
func NewNormalizer(extraStops []string) *Normalizer {
	stops := make(map[string]struct{}, len(EnglishStopwords)+len(extraStops))
	for _, w := range EnglishStopwords {
		stops[w] = struct{}{}
	}
	for _, w := range extraStops {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			stops[w] = struct{}{}
		}
	}
	return &Normalizer{stopwords: stops, stemmer: StemPorter}
}

// SetStemmer replaces the suffix stripper. Set it before the normalizer is
// shared.
func (n *Normalizer) SetStemmer(s Stemmer) {
	n.stemmer = s
}

// DisableStemming turns off the suffix stripper. Useful for inspecting raw
// vocabularies; the scoring pipeline always stems.
func (n *Normalizer) DisableStemming() {
	n.stemmer = StemNone
}

// Normalize lowercases, strips punctuation, folds accents, tokenizes,
// removes stop words and stems, in that order.
func (n *Normalizer) Normalize(text string) []string {
	if text == "" {
		return nil
	}

	text = strings.ToLower(text)
	text = stripPunctuation(text)
	text = foldAccents(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, stop := n.stopwords[tok]; stop {
			continue
		}
		tok = n.stemmer.Stem(tok)
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// IsStop reports whether a lowercase token is in the stop-word set.
func (n *Normalizer) IsStop(token string) bool {
	_, ok := n.stopwords[token]
	return ok
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// stripPunctuation drops every rune that is neither a word character nor
// whitespace.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldAccents transliterates accented Latin letters to their ASCII base
// letter. It is not a general transliterator: other scripts are kept.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		if rep, ok := foldLetters[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
