package cragscore

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cognicore/cragscore/pkg/cragscore/archetype"
	"github.com/cognicore/cragscore/pkg/cragscore/geo"
	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/store"
	"github.com/cognicore/cragscore/pkg/cragscore/store/memstore"
	"github.com/cognicore/cragscore/pkg/cragscore/tfidf"
)

func ptr(v float64) *float64 { return &v }

func scenarioRoutes() []store.Route {
	return []store.Route{
		{ID: 1, Name: "Split Pillar", Text: "crack crack overhang", Stars: ptr(4), Votes: 20, Latitude: ptr(40.0), Longitude: ptr(-105.0)},
		{ID: 2, Name: "Big Top", Text: "overhang roof big roof", Stars: ptr(3), Votes: 0, Latitude: ptr(41.0), Longitude: ptr(-106.0)},
		{ID: 3, Name: "Friction Slab", Text: "slab face", Latitude: ptr(42.0), Longitude: ptr(-104.0)},
	}
}

func writeDescriptions(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	texts := map[string]string{
		"crack":    "Hand crack with perfect jams. Crack climbing at its finest.",
		"overhang": "Steep roof and a big overhang.",
		"slab":     "Smear up the friction slab face.",
	}
	for style, text := range texts {
		if err := os.WriteFile(filepath.Join(dir, style+".txt"), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newPipeline(t *testing.T, st store.Store, styles StyleOptions) *Pipeline {
	t.Helper()
	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return New(Options{
		Store:      st,
		Vocabulary: tfidf.Thresholds{MinOccur: 0, MaxOccur: 1.01},
		Styles:     styles,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	if err := st.UpsertRoutes(ctx, scenarioRoutes()); err != nil {
		t.Fatal(err)
	}

	artifacts := filepath.Join(t.TempDir(), "artifacts")
	p := newPipeline(t, st, StyleOptions{
		Dir:          writeDescriptions(t),
		Names:        []string{"crack", "overhang.txt", "slab", "chimney"},
		ArtifactsDir: artifacts,
		Rescore:      true,
	})

	rep, err := p.Run(ctx, AllStages())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// === Report ===
	if rep.Routes != 3 {
		t.Errorf("Routes = %d", rep.Routes)
	}
	if len(rep.FailedStyles) != 1 || rep.FailedStyles[0] != "chimney" {
		t.Errorf("FailedStyles = %v", rep.FailedStyles)
	}
	if len(rep.Styles) != 3 {
		t.Errorf("Styles = %v", rep.Styles)
	}

	// === TFIDF ===
	idf, _ := st.IDF(ctx)
	if want := 1 + math.Log(3); math.Abs(idf["crack"]-want) > 1e-12 {
		t.Errorf("idf(crack) = %v, want %v", idf["crack"], want)
	}
	rows, _ := st.TFIDF(ctx)
	norms := map[int64]float64{}
	for _, r := range rows {
		norms[r.RouteID] += r.TFIDFN * r.TFIDFN
	}
	for id, sq := range norms {
		if math.Abs(math.Sqrt(sq)-1) > 1e-9 {
			t.Errorf("route %d tfidfn norm = %v", id, math.Sqrt(sq))
		}
	}
	wc, _ := st.WordCounts(ctx)
	if wc[2] != 4 {
		t.Errorf("word count of route 2 = %v, want 4", wc[2])
	}

	// === Styles ===
	for _, style := range rep.Styles {
		scores, _ := st.StyleScores(ctx, style, 0)
		if len(scores) != 3 {
			t.Errorf("style %s: %d scores, want 3", style, len(scores))
		}
		for _, sc := range scores {
			if sc.Score < 0 || sc.Score > 1 || math.IsNaN(sc.Score) {
				t.Errorf("style %s route %d: score %v out of range", style, sc.RouteID, sc.Score)
			}
			if sc.Cosine < 0 || sc.Cosine > 1 {
				t.Errorf("style %s route %d: cosine %v out of range", style, sc.RouteID, sc.Cosine)
			}
		}
	}
	crack, _ := st.StyleScores(ctx, "crack", 1)
	if len(crack) != 1 || crack[0].RouteID != 1 {
		t.Errorf("route 1 should rank first for crack, got %+v", crack)
	}
	slab, _ := st.StyleScores(ctx, "slab", 0)
	for _, sc := range slab {
		if sc.RouteID == 1 && sc.Cosine != 0 {
			t.Errorf("route 1 shares no terms with slab, cosine = %v", sc.Cosine)
		}
	}

	arch, _ := st.Archetypes(ctx)
	if len(arch) == 0 {
		t.Error("archetypes should be persisted on rescore")
	}
	if _, err := os.Stat(filepath.Join(artifacts, archetype.TFIDFFile)); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	// === Clusters: three far-apart routes are all noise ===
	clusters, _ := st.Clusters(ctx)
	if len(clusters) != 3 {
		t.Fatalf("expected 3 cluster rows, got %d", len(clusters))
	}
	for _, c := range clusters {
		if c.Label != geo.Noise || c.Size != 1 {
			t.Errorf("route %d: label %d size %d, want noise of size 1", c.RouteID, c.Label, c.Size)
		}
	}

	// === Ratings: mean 3.5 over the two rated routes ===
	ratings, _ := st.Ratings(ctx)
	got := map[int64]float64{}
	for _, r := range ratings {
		got[r.RouteID] = r.Bayes
	}
	if got[2] != 3.5 || got[3] != 3.5 {
		t.Errorf("zero-vote and unrated routes should get the mean, got %v", got)
	}
	if want := math.RoundToEven((20*4+3.5*10)/30*10) / 10; got[1] != want {
		t.Errorf("route 1 bayes = %v, want %v", got[1], want)
	}
	if rep.UnratedRoutes != 1 {
		t.Errorf("UnratedRoutes = %d", rep.UnratedRoutes)
	}

	// === Run record ===
	run, found, _ := st.LastRun(ctx)
	if !found || run.ID != rep.RunID {
		t.Fatalf("run not recorded: %+v", run)
	}
	if run.Counts["routes"] != 3 || len(run.Failed) != 1 || !run.FinishedAt.After(run.StartedAt) {
		t.Errorf("run record = %+v", run)
	}
}

func TestRunEmptyCorpus(t *testing.T) {
	st := memstore.New()
	p := newPipeline(t, st, StyleOptions{})

	_, err := p.Run(context.Background(), AllStages())
	if !errors.Is(err, internalerr.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
	if _, found, _ := st.LastRun(context.Background()); found {
		t.Error("failed run must not be recorded")
	}
}

func TestRunAllTermsFilteredWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, []store.Route{
		{ID: 1, Text: "crack", Stars: ptr(3), Votes: 1},
		{ID: 2, Text: "crack", Stars: ptr(4), Votes: 1},
	})
	p := New(Options{Store: st})

	_, err := p.Run(ctx, AllStages())
	if !errors.Is(err, internalerr.ErrEmptyCorpus) {
		t.Fatalf("expected empty corpus error, got %v", err)
	}
	if ratings, _ := st.Ratings(ctx); len(ratings) != 0 {
		t.Errorf("ratings written despite fatal error: %v", ratings)
	}
	if idf, _ := st.IDF(ctx); len(idf) != 0 {
		t.Errorf("idf written despite fatal error: %v", idf)
	}
}

func TestRunReusesPersistedArchetypes(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, scenarioRoutes())
	dir := writeDescriptions(t)

	first := newPipeline(t, st, StyleOptions{Dir: dir, Names: []string{"crack", "slab"}, Rescore: true})
	if _, err := first.Run(ctx, Stages{TFIDF: true, Styles: true}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, _ := st.StyleScores(ctx, "crack", 0)

	// reference texts are gone; scoring must rely on the stored matrix and tfidf
	second := newPipeline(t, st, StyleOptions{Dir: t.TempDir(), Names: []string{"crack", "slab"}, Rescore: false})
	rep, err := second.Run(ctx, Stages{Styles: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(rep.Styles) != 2 || len(rep.FailedStyles) != 0 {
		t.Errorf("report = %+v", rep)
	}
	after, _ := st.StyleScores(ctx, "crack", 0)
	if len(after) != len(before) {
		t.Fatalf("score count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].RouteID != after[i].RouteID || math.Abs(before[i].Score-after[i].Score) > 1e-12 {
			t.Errorf("score changed for route %d: %v -> %v", before[i].RouteID, before[i].Score, after[i].Score)
		}
	}
}

func TestRunStylesWithoutTFIDF(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, scenarioRoutes())
	p := newPipeline(t, st, StyleOptions{Dir: writeDescriptions(t), Rescore: true})

	_, err := p.Run(ctx, Stages{Styles: true})
	if !errors.Is(err, internalerr.ErrNoVocabulary) {
		t.Fatalf("expected ErrNoVocabulary, got %v", err)
	}
}

func TestRunNoArchetypes(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, scenarioRoutes())
	p := newPipeline(t, st, StyleOptions{Dir: t.TempDir(), Names: []string{"arete"}, Rescore: true})

	_, err := p.Run(ctx, Stages{TFIDF: true, Styles: true})
	if !errors.Is(err, internalerr.ErrNoArchetypes) {
		t.Fatalf("expected ErrNoArchetypes, got %v", err)
	}
	if !errors.Is(err, internalerr.ErrArchetypeMissing) {
		t.Errorf("missing style should be reported, got %v", err)
	}
}

func TestBuildArchetypes(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, scenarioRoutes())
	dir := writeDescriptions(t)

	p := newPipeline(t, st, StyleOptions{Dir: dir, Names: []string{"crack", "arete"}, Rescore: true})
	if _, err := p.BuildArchetypes(ctx); !errors.Is(err, internalerr.ErrNoVocabulary) {
		t.Fatalf("expected ErrNoVocabulary before tfidf, got %v", err)
	}
	if _, err := p.Run(ctx, Stages{TFIDF: true}); err != nil {
		t.Fatal(err)
	}

	rep, err := p.BuildArchetypes(ctx)
	if err != nil {
		t.Fatalf("BuildArchetypes: %v", err)
	}
	if len(rep.Failed) != 1 || rep.Failed[0] != "arete" {
		t.Errorf("Failed = %v", rep.Failed)
	}
	arch, _ := st.Archetypes(ctx)
	for _, w := range arch {
		if w.Style != "crack" {
			t.Errorf("unexpected style %q persisted", w.Style)
		}
	}
}

// rejectingStore fails the publish of a run while serving everything else
// from the wrapped store.
type rejectingStore struct {
	*memstore.Store
}

func (rejectingStore) ReplaceDerived(context.Context, store.Derived) error {
	return errors.New("disk full")
}

func TestRunFailedWriteKeepsPreviousResults(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, scenarioRoutes())
	styles := StyleOptions{Dir: writeDescriptions(t), Names: []string{"crack", "slab"}, Rescore: true}

	first, err := newPipeline(t, st, styles).Run(ctx, AllStages())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	idfBefore, _ := st.IDF(ctx)
	archBefore, _ := st.Archetypes(ctx)
	scoresBefore, _ := st.StyleScores(ctx, "crack", 0)
	clustersBefore, _ := st.Clusters(ctx)
	ratingsBefore, _ := st.Ratings(ctx)

	// a grown corpus changes every derived table
	_ = st.UpsertRoutes(ctx, []store.Route{
		{ID: 4, Name: "Offwidth", Text: "wide crack squeeze", Stars: ptr(1), Votes: 50, Latitude: ptr(40.5), Longitude: ptr(-105.5)},
	})
	if _, err := newPipeline(t, rejectingStore{st}, styles).Run(ctx, AllStages()); err == nil {
		t.Fatal("expected the failed write to surface")
	}

	if idf, _ := st.IDF(ctx); !reflect.DeepEqual(idf, idfBefore) {
		t.Errorf("idf changed by a failed run: %v -> %v", idfBefore, idf)
	}
	if arch, _ := st.Archetypes(ctx); !reflect.DeepEqual(arch, archBefore) {
		t.Error("archetypes changed by a failed run")
	}
	if scores, _ := st.StyleScores(ctx, "crack", 0); !reflect.DeepEqual(scores, scoresBefore) {
		t.Error("style scores changed by a failed run")
	}
	if clusters, _ := st.Clusters(ctx); !reflect.DeepEqual(clusters, clustersBefore) {
		t.Error("clusters changed by a failed run")
	}
	if ratings, _ := st.Ratings(ctx); !reflect.DeepEqual(ratings, ratingsBefore) {
		t.Error("ratings changed by a failed run")
	}
	if run, _, _ := st.LastRun(ctx); run.ID != first.RunID {
		t.Errorf("last run = %s, want %s", run.ID, first.RunID)
	}
}

func TestRunWithoutRatingsSkipsStage(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, []store.Route{
		{ID: 1, Text: "crack", Latitude: ptr(40), Longitude: ptr(-105)},
		{ID: 2, Text: "slab", Latitude: ptr(41), Longitude: ptr(-106)},
	})
	_ = st.ReplaceRatings(ctx, []store.BayesRating{{RouteID: 9, Bayes: 4.2}})

	rep, err := newPipeline(t, st, StyleOptions{}).Run(ctx, Stages{Ratings: true, Clusters: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.RatingsSkipped || rep.UnratedRoutes != 2 {
		t.Errorf("report = %+v", rep)
	}
	if ratings, _ := st.Ratings(ctx); len(ratings) != 1 || ratings[0].RouteID != 9 {
		t.Errorf("skipped stage should keep stored ratings, got %+v", ratings)
	}
	if clusters, _ := st.Clusters(ctx); len(clusters) != 2 {
		t.Errorf("clusters stage should still run, got %+v", clusters)
	}
	run, _, _ := st.LastRun(ctx)
	if run.Counts["ratings_skipped"] != 1 || run.Counts["unrated_routes"] != 2 {
		t.Errorf("run counts = %v", run.Counts)
	}
}

func TestRunReportsStylesMissingFromStore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_ = st.UpsertRoutes(ctx, scenarioRoutes())

	first := newPipeline(t, st, StyleOptions{Dir: writeDescriptions(t), Names: []string{"crack"}, Rescore: true})
	if _, err := first.Run(ctx, Stages{TFIDF: true, Styles: true}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newPipeline(t, st, StyleOptions{Names: []string{"crack", "arete"}, Rescore: false})
	rep, err := second.Run(ctx, Stages{Styles: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(rep.Styles) != 1 || rep.Styles[0] != "crack" {
		t.Errorf("Styles = %v", rep.Styles)
	}
	if len(rep.FailedStyles) != 1 || rep.FailedStyles[0] != "arete" {
		t.Errorf("FailedStyles = %v, want [arete]", rep.FailedStyles)
	}
}

func TestRunWithoutStore(t *testing.T) {
	p := New(Options{})
	if _, err := p.Run(context.Background(), AllStages()); !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
