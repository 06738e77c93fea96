package tfidf

import (
	"sort"

	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
)

// Entry is one route's raw term frequency for a term.
type Entry struct {
	RouteID int64
	TF      float64
}

// Index maps each term to the routes that contain it. N counts every
// document in the corpus, including documents with no terms.
type Index struct {
	N     int64
	terms map[string][]Entry
}

// NewIndex creates an empty index for a corpus of n documents.
func NewIndex(n int64) *Index {
	return &Index{N: n, terms: make(map[string][]Entry)}
}

// BuildIndex indexes the term frequencies of every document.
func BuildIndex(docs []textnorm.Document) *Index {
	ix := NewIndex(int64(len(docs)))
	for _, d := range docs {
		for term, tf := range d.TermFrequencies() {
			ix.Add(term, d.RouteID, tf)
		}
	}
	return ix
}

// Add records that routeID contains term with the given frequency.
// Each (route, term) pair must be added at most once.
func (ix *Index) Add(term string, routeID int64, tf float64) {
	if term == "" {
		return
	}
	ix.terms[term] = append(ix.terms[term], Entry{RouteID: routeID, TF: tf})
}

// DF returns the number of documents containing term.
func (ix *Index) DF(term string) int64 {
	return int64(len(ix.terms[term]))
}

// Entries returns the postings for term.
func (ix *Index) Entries(term string) []Entry {
	return ix.terms[term]
}

// Terms returns the indexed vocabulary in sorted order.
func (ix *Index) Terms() []string {
	out := make([]string, 0, len(ix.terms))
	for t := range ix.terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
