package textnorm

import "sort"

// Document is one route description after normalization.
type Document struct {
	RouteID   int64
	Tokens    []string
	Counts    map[string]int
	WordCount float64 // len(Tokens), floored
}

// Document normalizes text and counts its terms.
func (n *Normalizer) Document(routeID int64, text string, floor float64) Document {
	tokens := n.Normalize(text)
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return Document{
		RouteID:   routeID,
		Tokens:    tokens,
		Counts:    counts,
		WordCount: WordCount(len(tokens), floor),
	}
}

// TermFrequencies returns count/length for every term in the document.
// An empty document has no terms.
func (d Document) TermFrequencies() map[string]float64 {
	if len(d.Tokens) == 0 {
		return nil
	}
	length := float64(len(d.Tokens))
	tf := make(map[string]float64, len(d.Counts))
	for term, c := range d.Counts {
		tf[term] = float64(c) / length
	}
	return tf
}

// Terms returns the document's distinct terms in sorted order.
func (d Document) Terms() []string {
	terms := make([]string, 0, len(d.Counts))
	for t := range d.Counts {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// WordCount applies the floor to a token count.
func WordCount(tokens int, floor float64) float64 {
	if floor <= 0 {
		floor = DefaultWordCountFloor
	}
	wc := float64(tokens)
	if wc < floor {
		return floor
	}
	return wc
}
