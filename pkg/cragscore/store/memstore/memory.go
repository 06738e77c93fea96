package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/cragscore/pkg/cragscore/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu         sync.RWMutex
	routes     map[int64]store.Route
	idf        []store.IDFRecord
	tfidf      []store.TFIDFRow
	wordCounts map[int64]float64
	archetypes []store.ArchetypeWeight
	scores     []store.StyleScore
	clusters   []store.ClusterAssignment
	ratings    []store.BayesRating
	runs       []store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		routes:     make(map[int64]store.Route),
		wordCounts: make(map[int64]float64),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Routes returns every route ordered by id.
func (s *Store) Routes(ctx context.Context) ([]store.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, copyRoute(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertRoutes inserts or replaces routes keyed by id.
func (s *Store) UpsertRoutes(ctx context.Context, routes []store.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range routes {
		s.routes[r.ID] = copyRoute(r)
	}
	return nil
}

func (s *Store) ReplaceTFIDF(ctx context.Context, t store.TFIDFTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTFIDF(t)
	return nil
}

func (s *Store) setTFIDF(t store.TFIDFTable) {
	s.idf = append([]store.IDFRecord(nil), t.IDF...)
	s.tfidf = append([]store.TFIDFRow(nil), t.Rows...)
	s.wordCounts = make(map[int64]float64, len(t.WordCounts))
	for id, wc := range t.WordCounts {
		s.wordCounts[id] = wc
	}
}

func (s *Store) IDF(ctx context.Context) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.idf))
	for _, r := range s.idf {
		out[r.Term] = r.IDF
	}
	return out, nil
}

func (s *Store) TFIDF(ctx context.Context) ([]store.TFIDFRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]store.TFIDFRow(nil), s.tfidf...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].RouteID != out[j].RouteID {
			return out[i].RouteID < out[j].RouteID
		}
		return out[i].Term < out[j].Term
	})
	return out, nil
}

func (s *Store) WordCounts(ctx context.Context) (map[int64]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]float64, len(s.wordCounts))
	for id, wc := range s.wordCounts {
		out[id] = wc
	}
	return out, nil
}

func (s *Store) ReplaceArchetypes(ctx context.Context, weights []store.ArchetypeWeight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archetypes = append([]store.ArchetypeWeight(nil), weights...)
	return nil
}

func (s *Store) Archetypes(ctx context.Context) ([]store.ArchetypeWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]store.ArchetypeWeight(nil), s.archetypes...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Style != out[j].Style {
			return out[i].Style < out[j].Style
		}
		return out[i].Term < out[j].Term
	})
	return out, nil
}

func (s *Store) ReplaceStyleScores(ctx context.Context, scores []store.StyleScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append([]store.StyleScore(nil), scores...)
	return nil
}

// StyleScores ranks one style by blended score, ties by route id.
func (s *Store) StyleScores(ctx context.Context, style string, limit int) ([]store.StyleScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.StyleScore
	for _, sc := range s.scores {
		if sc.Style == style {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RouteID < out[j].RouteID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ReplaceClusters(ctx context.Context, assignments []store.ClusterAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = append([]store.ClusterAssignment(nil), assignments...)
	return nil
}

func (s *Store) Clusters(ctx context.Context) ([]store.ClusterAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]store.ClusterAssignment(nil), s.clusters...)
	sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
	return out, nil
}

func (s *Store) ReplaceRatings(ctx context.Context, ratings []store.BayesRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings = append([]store.BayesRating(nil), ratings...)
	return nil
}

func (s *Store) Ratings(ctx context.Context) ([]store.BayesRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]store.BayesRating(nil), s.ratings...)
	sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
	return out, nil
}

func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, copyRun(r))
	return nil
}

// ReplaceDerived swaps every present section and records the run under one
// lock, so readers never observe a partial run.
func (s *Store) ReplaceDerived(ctx context.Context, d store.Derived) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.TFIDF != nil {
		s.setTFIDF(*d.TFIDF)
	}
	if d.Styles != nil {
		if d.Styles.Archetypes != nil {
			s.archetypes = append([]store.ArchetypeWeight(nil), d.Styles.Archetypes...)
		}
		s.scores = append([]store.StyleScore(nil), d.Styles.Scores...)
	}
	if d.Clusters != nil {
		s.clusters = append([]store.ClusterAssignment(nil), d.Clusters.Assignments...)
	}
	if d.Ratings != nil {
		s.ratings = append([]store.BayesRating(nil), d.Ratings.Ratings...)
	}
	s.runs = append(s.runs, copyRun(d.Run))
	return nil
}

// LastRun returns the most recently recorded run.
func (s *Store) LastRun(ctx context.Context) (store.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return store.Run{}, false, nil
	}
	return copyRun(s.runs[len(s.runs)-1]), true, nil
}

func copyRoute(r store.Route) store.Route {
	r.Stars = copyFloat(r.Stars)
	r.Latitude = copyFloat(r.Latitude)
	r.Longitude = copyFloat(r.Longitude)
	return r
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func copyRun(r store.Run) store.Run {
	r.Stages = append([]string(nil), r.Stages...)
	r.Failed = append([]string(nil), r.Failed...)
	if r.Counts != nil {
		counts := make(map[string]int64, len(r.Counts))
		for k, v := range r.Counts {
			counts[k] = v
		}
		r.Counts = counts
	}
	return r
}

var _ store.Store = (*Store)(nil)
