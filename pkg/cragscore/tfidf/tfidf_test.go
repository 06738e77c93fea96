package tfidf

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
)

func admitAll() Thresholds {
	return Thresholds{MinOccur: 0, MaxOccur: 1.01}
}

func scenarioDocs() []textnorm.Document {
	n := textnorm.NewNormalizer(nil)
	n.DisableStemming()
	return []textnorm.Document{
		n.Document(1, "crack crack overhang", textnorm.DefaultWordCountFloor),
		n.Document(2, "overhang roof big roof", textnorm.DefaultWordCountFloor),
		n.Document(3, "slab face", textnorm.DefaultWordCountFloor),
	}
}

func TestScenarioA(t *testing.T) {
	c, err := Compute(context.Background(), scenarioDocs(), admitAll())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := 1 + math.Log(3.0/1.0)
	if math.Abs(c.IDF["crack"]-want) > 1e-12 {
		t.Errorf("idf(crack) = %v, want %v", c.IDF["crack"], want)
	}
	if math.Abs(c.IDF["overhang"]-(1+math.Log(1.5))) > 1e-12 {
		t.Errorf("idf(overhang) = %v", c.IDF["overhang"])
	}

	vec := c.Vectors[1]
	if len(vec) != 2 {
		t.Fatalf("route 1 vector should have 2 terms, got %v", vec)
	}
	if norm := vec.Norm(); math.Abs(norm-1) > 1e-9 {
		t.Errorf("route 1 norm = %v, want 1", norm)
	}

	// crack dominates route 1: higher tf and higher idf
	if vec["crack"] <= vec["overhang"] {
		t.Errorf("expected crack weight > overhang weight, got %v", vec)
	}
}

func TestEveryVectorHasUnitNorm(t *testing.T) {
	c, err := Compute(context.Background(), scenarioDocs(), admitAll())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for id, vec := range c.Vectors {
		if norm := vec.Norm(); math.Abs(norm-1) > 1e-9 {
			t.Errorf("route %d norm = %v", id, norm)
		}
	}

	sums := make(map[int64]float64)
	for _, r := range c.Rows {
		sums[r.RouteID] += r.TFIDFN * r.TFIDFN
		if r.TFIDF != r.TF*r.IDF {
			t.Errorf("row %+v: tfidf != tf*idf", r)
		}
	}
	for id, s := range sums {
		if math.Abs(s-1) > 1e-9 {
			t.Errorf("route %d: sum of squares = %v", id, s)
		}
	}
}

func TestFilterStrictBounds(t *testing.T) {
	ix := NewIndex(10)
	add := func(term string, df int) {
		for i := 0; i < df; i++ {
			ix.Add(term, int64(i+1), 0.5)
		}
	}
	add("rare", 1)   // == 0.1 * 10, dropped
	add("ok", 2)     // kept
	add("common", 5) // == 0.5 * 10, dropped
	add("fine", 4)   // kept

	kept, dropped := ix.Filter(Thresholds{MinOccur: 0.1, MaxOccur: 0.5})
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	for _, term := range []string{"ok", "fine"} {
		if kept.DF(term) == 0 {
			t.Errorf("%q should survive", term)
		}
	}
	for _, term := range []string{"rare", "common"} {
		if kept.DF(term) != 0 {
			t.Errorf("%q should be dropped at the boundary", term)
		}
	}
}

func TestIDFMonotonic(t *testing.T) {
	const n = 50
	prev := math.Inf(1)
	for df := int64(1); df <= n; df++ {
		v := IDF(n, df)
		if v > prev {
			t.Fatalf("IDF increased from %v to %v at df=%d", prev, v, df)
		}
		prev = v
	}
	if IDF(n, n) != 1 {
		t.Errorf("IDF(n, n) = %v, want 1", IDF(n, n))
	}
}

func TestComputeEmptyCorpus(t *testing.T) {
	_, err := Compute(context.Background(), nil, DefaultThresholds())
	if !errors.Is(err, internalerr.ErrEmptyCorpus) {
		t.Errorf("expected ErrEmptyCorpus, got %v", err)
	}

	if _, err := ComputeIDF(NewIndex(0)); !errors.Is(err, internalerr.ErrEmptyCorpus) {
		t.Errorf("ComputeIDF on N=0: expected ErrEmptyCorpus, got %v", err)
	}
}

func TestComputeAllTermsFiltered(t *testing.T) {
	// every term appears in every document, so max_occur removes all of them
	n := textnorm.NewNormalizer(nil)
	docs := []textnorm.Document{
		n.Document(1, "crack", 0.01),
		n.Document(2, "crack", 0.01),
	}
	_, err := Compute(context.Background(), docs, DefaultThresholds())
	if !errors.Is(err, internalerr.ErrNoVocabulary) {
		t.Errorf("expected ErrNoVocabulary, got %v", err)
	}
	if !errors.Is(err, internalerr.ErrEmptyCorpus) {
		t.Errorf("an empty vocabulary is an empty corpus, got %v", err)
	}
}

func TestComputeEmptyDescription(t *testing.T) {
	docs := append(scenarioDocs(), textnorm.NewNormalizer(nil).Document(4, "", 0.01))
	c, err := Compute(context.Background(), docs, admitAll())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, ok := c.Vectors[4]; ok {
		t.Error("empty description should have no vector")
	}
	if c.EmptyRoutes != 1 {
		t.Errorf("EmptyRoutes = %d, want 1", c.EmptyRoutes)
	}
	if c.N != 4 {
		t.Errorf("N = %d, want 4 (empty documents still count)", c.N)
	}
}

func TestRouteWithOnlyFilteredTerms(t *testing.T) {
	n := textnorm.NewNormalizer(nil)
	n.DisableStemming()
	docs := []textnorm.Document{
		n.Document(1, "granite crack", 0.01),
		n.Document(2, "granite crack", 0.01),
		n.Document(3, "granite slab", 0.01),
		n.Document(4, "granite slab", 0.01),
		n.Document(5, "granite", 0.01),
	}
	// granite is in every document and is removed; route 5 keeps nothing
	c, err := Compute(context.Background(), docs, Thresholds{MinOccur: 0, MaxOccur: 0.9})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, ok := c.IDF["granite"]; ok {
		t.Error("granite should be filtered out")
	}
	if _, ok := c.Vectors[5]; ok {
		t.Error("route 5 should have an empty vector")
	}
	if c.DroppedTerms != 1 {
		t.Errorf("DroppedTerms = %d, want 1", c.DroppedTerms)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	out, ok := Normalize(Vector{"a": 0, "b": 0})
	if ok || len(out) != 0 {
		t.Errorf("zero vector should normalize to empty, got %v %v", out, ok)
	}

	out, ok = Normalize(Vector{"a": 3, "b": 4})
	if !ok || math.Abs(out["a"]-0.6) > 1e-12 || math.Abs(out["b"]-0.8) > 1e-12 {
		t.Errorf("Normalize = %v", out)
	}
}
