package tfidf

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
)

// Row is one (route, term) entry of the scored corpus.
type Row struct {
	RouteID int64
	Term    string
	TF      float64
	IDF     float64
	TFIDF   float64
	TFIDFN  float64
}

// Vector is a sparse term -> weight map.
type Vector map[string]float64

// Norm returns the L2 norm. Terms are summed in sorted order so the result
// does not depend on map iteration.
func (v Vector) Norm() float64 {
	if len(v) == 0 {
		return 0
	}
	terms := make([]string, 0, len(v))
	for t := range v {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	vals := make([]float64, len(terms))
	for i, t := range terms {
		vals[i] = v[t]
	}
	return floats.Norm(vals, 2)
}

// Normalize returns v scaled to unit length. A zero-norm vector yields an
// empty vector and false.
func Normalize(v Vector) (Vector, bool) {
	norm := v.Norm()
	if norm == 0 {
		return Vector{}, false
	}
	out := make(Vector, len(v))
	for t, w := range v {
		out[t] = w / norm
	}
	return out, true
}

// Corpus is the output of one TFIDF pass over the whole corpus.
type Corpus struct {
	N            int64
	IDF          map[string]float64
	DF           map[string]int64
	Rows         []Row // ordered by route, then term
	Vectors      map[int64]Vector
	DroppedTerms int
	EmptyRoutes  int // routes left with no surviving terms
}

// Compute runs the three passes over the term index: weed out terms outside
// the thresholds, compute IDF for the survivors, then join tf with idf and
// L2-normalize each route's vector. Routes are normalized in parallel; each
// route only sees its own rows.
func Compute(ctx context.Context, docs []textnorm.Document, th Thresholds) (*Corpus, error) {
	if len(docs) == 0 {
		return nil, internalerr.ErrEmptyCorpus
	}

	ix := BuildIndex(docs)
	kept, dropped := ix.Filter(th)
	idf, err := ComputeIDF(kept)
	if err != nil {
		return nil, err
	}

	df := make(map[string]int64, len(idf))
	byRoute := make(map[int64][]Row)
	for _, term := range kept.Terms() {
		df[term] = kept.DF(term)
		for _, e := range kept.Entries(term) {
			byRoute[e.RouteID] = append(byRoute[e.RouteID], Row{
				RouteID: e.RouteID,
				Term:    term,
				TF:      e.TF,
				IDF:     idf[term],
				TFIDF:   e.TF * idf[term],
			})
		}
	}

	ids := make([]int64, 0, len(byRoute))
	for id := range byRoute {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	normalized := make([][]Row, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := normalizeRoute(byRoute[id])
			if err != nil {
				return fmt.Errorf("route %d: %w", id, err)
			}
			normalized[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Corpus{
		N:            kept.N,
		IDF:          idf,
		DF:           df,
		Vectors:      make(map[int64]Vector, len(ids)),
		DroppedTerms: dropped,
	}
	for i, rows := range normalized {
		if len(rows) == 0 {
			continue
		}
		vec := make(Vector, len(rows))
		for _, r := range rows {
			vec[r.Term] = r.TFIDFN
		}
		c.Vectors[ids[i]] = vec
		c.Rows = append(c.Rows, rows...)
	}
	c.EmptyRoutes = len(docs) - len(c.Vectors)
	return c, nil
}

// normalizeRoute divides each row's tfidf by the route's L2 norm. A route
// whose norm is zero is dropped rather than filled with NaN.
func normalizeRoute(rows []Row) ([]Row, error) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Term < rows[j].Term })

	vals := make([]float64, len(rows))
	for i, r := range rows {
		if math.IsNaN(r.TFIDF) || math.IsInf(r.TFIDF, 0) {
			return nil, fmt.Errorf("term %q: non-finite tfidf %v: %w", r.Term, r.TFIDF, internalerr.ErrInvalidInput)
		}
		vals[i] = r.TFIDF
	}
	norm := floats.Norm(vals, 2)
	if norm == 0 {
		return nil, nil
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		r.TFIDFN = r.TFIDF / norm
		out[i] = r
	}
	return out, nil
}
