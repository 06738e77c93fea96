package textnorm

import (
	"fmt"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
	porterstemmer "github.com/reiver/go-porterstemmer"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

// Stemmer names a suffix-stripping algorithm.
type Stemmer string

const (
	// StemPorter is the original Porter algorithm ("fairly" -> "fairli").
	StemPorter Stemmer = "porter"
	// StemPorter2 is the Snowball English stemmer ("fairly" -> "fair").
	StemPorter2 Stemmer = "porter2"
	// StemNone leaves tokens as they are.
	StemNone Stemmer = "none"
)

// ParseStemmer accepts a configured stemmer name. The empty string selects
// StemPorter.
func ParseStemmer(name string) (Stemmer, error) {
	switch s := Stemmer(name); s {
	case "":
		return StemPorter, nil
	case StemPorter, StemPorter2, StemNone:
		return s, nil
	default:
		return "", fmt.Errorf("unknown stemmer %q: %w", name, internalerr.ErrInvalidInput)
	}
}

// Stem applies the algorithm to one lowercase token. Tokens of one or two
// letters are never stemmed.
func (s Stemmer) Stem(tok string) string {
	if utf8.RuneCountInString(tok) <= 2 {
		return tok
	}
	switch s {
	case StemPorter:
		return porterstemmer.StemString(tok)
	case StemPorter2:
		return english.Stem(tok, false)
	default:
		return tok
	}
}
