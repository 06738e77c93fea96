package tfidf

import (
	"fmt"
	"math"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

// Thresholds bound the document frequency of useful terms, as fractions of
// the corpus size.
type Thresholds struct {
	MinOccur float64
	MaxOccur float64
}

// DefaultThresholds drops terms found in 0.1% of documents or fewer, and
// terms found in 90% of documents or more.
func DefaultThresholds() Thresholds {
	return Thresholds{MinOccur: 0.001, MaxOccur: 0.9}
}

// Admits reports whether a term with document frequency df survives in a
// corpus of n documents. Both bounds are strict.
func (t Thresholds) Admits(df, n int64) bool {
	lo := t.MinOccur * float64(n)
	hi := t.MaxOccur * float64(n)
	d := float64(df)
	return lo < d && d < hi
}

// Filter returns a new index holding only the admitted terms, plus the
// number of terms dropped.
func (ix *Index) Filter(t Thresholds) (*Index, int) {
	kept := NewIndex(ix.N)
	dropped := 0
	for term, entries := range ix.terms {
		if !t.Admits(int64(len(entries)), ix.N) {
			dropped++
			continue
		}
		kept.terms[term] = entries
	}
	return kept, dropped
}

// IDF computes 1 + ln(n/df).
//
// A term in more documents never gets a higher value than one in fewer.
func IDF(n, df int64) float64 {
	if df <= 0 || n <= 0 {
		return 0
	}
	return 1 + math.Log(float64(n)/float64(df))
}

// ComputeIDF returns the IDF of every term in the index. The index should
// already be filtered.
func ComputeIDF(ix *Index) (map[string]float64, error) {
	if ix.N == 0 {
		return nil, internalerr.ErrEmptyCorpus
	}
	if len(ix.terms) == 0 {
		return nil, fmt.Errorf("%d documents: %w: %w", ix.N, internalerr.ErrNoVocabulary, internalerr.ErrEmptyCorpus)
	}
	idf := make(map[string]float64, len(ix.terms))
	for term, entries := range ix.terms {
		idf[term] = IDF(ix.N, int64(len(entries)))
	}
	return idf, nil
}
