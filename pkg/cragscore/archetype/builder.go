package archetype

import (
	"sort"

	"go.uber.org/multierr"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
	"github.com/cognicore/cragscore/pkg/cragscore/tfidf"
)

// Matrix is the term x style table of archetype weights.
type Matrix struct {
	Styles []string
	// TF holds raw term frequencies for every archetype term, including
	// terms that have no corpus IDF.
	TF map[string]map[string]float64 // term -> style -> tf
	// Weights holds the IDF-weighted, per-style normalized values. Only
	// terms present in the corpus IDF table appear here.
	Weights map[string]map[string]float64 // term -> style -> weight
}

// Builder turns reference texts into archetype vectors using IDF values
// taken from the corpus. Archetype texts never contribute to the IDF table.
type Builder struct {
	Normalizer *textnorm.Normalizer
	IDF        map[string]float64
}

// Build computes the matrix for the given documents. Each style column is
// L2-normalized over all terms; a column with no corpus vocabulary stays
// all zero.
func (b *Builder) Build(docs []Document) *Matrix {
	m := &Matrix{
		TF:      make(map[string]map[string]float64),
		Weights: make(map[string]map[string]float64),
	}

	for _, d := range docs {
		m.Styles = append(m.Styles, d.Style)
		doc := b.Normalizer.Document(0, d.Text, textnorm.DefaultWordCountFloor)
		raw := make(tfidf.Vector)
		for term, tf := range doc.TermFrequencies() {
			setCell(m.TF, term, d.Style, tf)
			idf, ok := b.IDF[term]
			if !ok {
				continue
			}
			raw[term] = tf * idf
		}

		col, ok := tfidf.Normalize(raw)
		if !ok {
			continue
		}
		for term, w := range col {
			setCell(m.Weights, term, d.Style, w)
		}
	}
	return m
}

// FromWeights rebuilds a matrix from persisted cells, keeping only the
// requested styles. With no styles given, every persisted style is used.
// Requested styles without persisted cells are left out of the matrix and
// reported as LoadErrors wrapping ErrNotFound.
func FromWeights(styles []string, cells []Cell) (*Matrix, error) {
	if len(styles) == 0 {
		set := make(map[string]struct{})
		for _, c := range cells {
			if _, ok := set[c.Style]; !ok {
				set[c.Style] = struct{}{}
				styles = append(styles, c.Style)
			}
		}
		sort.Strings(styles)
	}

	m := &Matrix{
		TF:      make(map[string]map[string]float64),
		Weights: make(map[string]map[string]float64),
	}
	keep := make(map[string]struct{}, len(styles))
	for _, s := range styles {
		keep[s] = struct{}{}
	}
	present := make(map[string]struct{}, len(styles))
	for _, c := range cells {
		if _, ok := keep[c.Style]; !ok {
			continue
		}
		present[c.Style] = struct{}{}
		if c.TF != 0 {
			setCell(m.TF, c.Term, c.Style, c.TF)
		}
		if c.Weight != 0 {
			setCell(m.Weights, c.Term, c.Style, c.Weight)
		}
	}
	var errs error
	for _, s := range styles {
		if _, ok := present[s]; !ok {
			errs = multierr.Append(errs, &LoadError{Style: s, Err: internalerr.ErrNotFound})
			continue
		}
		m.Styles = append(m.Styles, s)
	}
	return m, errs
}

// Cell is one persisted matrix entry.
type Cell struct {
	Style  string
	Term   string
	TF     float64
	Weight float64
}

// Cells flattens the matrix, sorted by style then term.
func (m *Matrix) Cells() []Cell {
	var out []Cell
	for _, term := range m.allTerms() {
		for _, style := range m.Styles {
			tf := m.TF[term][style]
			w := m.Weights[term][style]
			if tf == 0 && w == 0 {
				continue
			}
			out = append(out, Cell{Style: style, Term: term, TF: tf, Weight: w})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Style != out[j].Style {
			return out[i].Style < out[j].Style
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Column returns one style's normalized weights.
func (m *Matrix) Column(style string) map[string]float64 {
	col := make(map[string]float64)
	for term, styles := range m.Weights {
		if w, ok := styles[style]; ok {
			col[term] = w
		}
	}
	return col
}

func (m *Matrix) allTerms() []string {
	set := make(map[string]map[string]float64, len(m.TF))
	for t := range m.TF {
		set[t] = nil
	}
	for t := range m.Weights {
		set[t] = nil
	}
	return sortedKeys(set)
}

func setCell(table map[string]map[string]float64, term, style string, v float64) {
	row, ok := table[term]
	if !ok {
		row = make(map[string]float64)
		table[term] = row
	}
	row[style] = v
}

func sortedKeys(m map[string]map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
