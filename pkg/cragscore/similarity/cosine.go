package similarity

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Cosine returns the dot product of two unit vectors over their shared
// terms, clamped to [0, 1]. Either side being empty gives 0.
func Cosine(route, archetype map[string]float64) float64 {
	if len(route) == 0 || len(archetype) == 0 {
		return 0
	}
	small, large := route, archetype
	if len(large) < len(small) {
		small, large = large, small
	}
	terms := make([]string, 0, len(small))
	for t := range small {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	var sum float64
	for _, t := range terms {
		if w, ok := large[t]; ok {
			sum += small[t] * w
		}
	}
	return clamp01(sum)
}

// Table holds raw similarities, one column per style and one row per route.
type Table struct {
	RouteIDs []int64
	Styles   []string
	Cosine   [][]float64 // [style][route]
}

// ScoreCorpus scores every route against every style. Routes without a
// vector score 0 for all styles but keep their row.
func ScoreCorpus(ctx context.Context, routeIDs []int64, vectors map[int64]map[string]float64, styles []string, archetypes map[string]map[string]float64) (*Table, error) {
	t := &Table{
		RouteIDs: append([]int64(nil), routeIDs...),
		Styles:   append([]string(nil), styles...),
		Cosine:   make([][]float64, len(styles)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for si, style := range styles {
		si, arch := si, archetypes[style]
		g.Go(func() error {
			col := make([]float64, len(routeIDs))
			for ri, id := range routeIDs {
				if ri%4096 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				col[ri] = Cosine(vectors[id], arch)
			}
			t.Cosine[si] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
