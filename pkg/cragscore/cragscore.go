package cragscore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/cragscore/pkg/cragscore/geo"
	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/rating"
	"github.com/cognicore/cragscore/pkg/cragscore/similarity"
	"github.com/cognicore/cragscore/pkg/cragscore/store"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
	"github.com/cognicore/cragscore/pkg/cragscore/tfidf"
)

// Pipeline is the batch scoring facade. One Run reads a snapshot of the
// corpus and replaces every derived table it computes.
type Pipeline struct {
	store      store.Store
	normalizer *textnorm.Normalizer
	vocab      tfidf.Thresholds
	styles     StyleOptions
	blend      similarity.BlendConfig
	cluster    geo.Params
	smoother   *rating.Smoother
	now        func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// StyleOptions locates the archetype reference texts.
type StyleOptions struct {
	Dir   string
	Names []string
	// ArtifactsDir receives TF.csv and TFIDF.csv when set.
	ArtifactsDir string
	// Rescore rebuilds archetypes from the reference texts. When false the
	// persisted archetype matrix is reused.
	Rescore bool
}

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	Store       store.Store
	Normalizer  *textnorm.Normalizer
	Vocabulary  tfidf.Thresholds
	Styles      StyleOptions
	Credibility similarity.BlendConfig
	Clustering  geo.Params
	Smoother    *rating.Smoother
	Now         func() time.Time
}

// New creates a Pipeline with the given dependencies
func New(opts Options) *Pipeline {
	p := &Pipeline{
		store:      opts.Store,
		normalizer: opts.Normalizer,
		vocab:      opts.Vocabulary,
		styles:     opts.Styles,
		blend:      opts.Credibility,
		cluster:    opts.Clustering,
		smoother:   opts.Smoother,
		now:        opts.Now,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
	if p.normalizer == nil {
		p.normalizer = textnorm.NewNormalizer(nil)
	}
	if p.vocab == (tfidf.Thresholds{}) {
		p.vocab = tfidf.DefaultThresholds()
	}
	if len(p.styles.Names) == 0 {
		p.styles.Names = DefaultStyles()
	}
	if p.blend == (similarity.BlendConfig{}) {
		p.blend = similarity.DefaultBlendConfig()
	}
	if p.cluster == (geo.Params{}) {
		p.cluster = geo.DefaultParams()
	}
	if p.smoother == nil {
		p.smoother = rating.NewSmoother()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Close cleanly shuts down the pipeline and its store
func (p *Pipeline) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// Stages selects which parts of the pipeline run.
type Stages struct {
	Ratings  bool
	Clusters bool
	TFIDF    bool
	Styles   bool
}

// AllStages enables every stage.
func AllStages() Stages {
	return Stages{Ratings: true, Clusters: true, TFIDF: true, Styles: true}
}

func (s Stages) names() []string {
	var out []string
	if s.Ratings {
		out = append(out, "ratings")
	}
	if s.Clusters {
		out = append(out, "clusters")
	}
	if s.TFIDF {
		out = append(out, "tfidf")
	}
	if s.Styles {
		out = append(out, "styles")
	}
	return out
}

// Report summarizes one run.
type Report struct {
	RunID  string
	Routes int
	Stages []string

	// tfidf
	KeptTerms    int
	DroppedTerms int
	EmptyRoutes  int

	// styles
	Styles       []string
	FailedStyles []string

	// clusters
	Clusters            int
	NoiseRoutes         int
	ExcludedCoordinates int

	// ratings
	CorpusMean    float64
	UnratedRoutes int
	// RatingsSkipped is set when no route carried a usable rating; the
	// stored ratings are then left as they were.
	RatingsSkipped bool
}

func (r *Report) counts() map[string]int64 {
	return map[string]int64{
		"routes":               int64(r.Routes),
		"kept_terms":           int64(r.KeptTerms),
		"dropped_terms":        int64(r.DroppedTerms),
		"empty_routes":         int64(r.EmptyRoutes),
		"styles":               int64(len(r.Styles)),
		"failed_styles":        int64(len(r.FailedStyles)),
		"clusters":             int64(r.Clusters),
		"noise_routes":         int64(r.NoiseRoutes),
		"excluded_coordinates": int64(r.ExcludedCoordinates),
		"unrated_routes":       int64(r.UnratedRoutes),
		"ratings_skipped":      boolCount(r.RatingsSkipped),
	}
}

func boolCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Run executes the selected stages over one snapshot of the corpus. Every
// stage is computed before anything is written, so a fatal error leaves the
// store untouched. The results and the run record are then published in one
// atomic write.
func (p *Pipeline) Run(ctx context.Context, stages Stages) (*Report, error) {
	if p.store == nil {
		return nil, internalerr.ErrStoreUnavailable
	}
	started := p.now()
	rep := &Report{RunID: p.newID(started), Stages: stages.names()}

	routes, err := p.store.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if len(routes) == 0 {
		return nil, internalerr.ErrEmptyCorpus
	}
	rep.Routes = len(routes)
	log.Printf("Run %s: %d routes, stages %v", rep.RunID, len(routes), rep.Stages)

	var out store.Derived

	var text *textStage
	if stages.TFIDF {
		text, err = p.computeTFIDF(ctx, routes)
		if err != nil {
			return nil, fmt.Errorf("tfidf: %w", err)
		}
		rep.KeptTerms = len(text.corpus.IDF)
		rep.DroppedTerms = text.corpus.DroppedTerms
		rep.EmptyRoutes = text.corpus.EmptyRoutes
		log.Printf("Getting IDF: kept %d terms, dropped %d, %d routes without vocabulary",
			rep.KeptTerms, rep.DroppedTerms, rep.EmptyRoutes)
		table := text.table()
		out.TFIDF = &table
	}

	if stages.Styles {
		st, err := p.computeStyles(ctx, routes, text)
		if err != nil {
			return nil, fmt.Errorf("styles: %w", err)
		}
		rep.Styles = st.matrix.Styles
		rep.FailedStyles = st.failed
		for _, f := range st.failed {
			log.Printf("Style %s skipped: archetype could not be loaded", f)
		}
		log.Printf("Scored %d routes against %d styles", len(routes), len(rep.Styles))
		out.Styles = &store.StyleTables{Scores: st.scores}
		if st.rebuilt {
			out.Styles.Archetypes = toWeights(st.matrix)
		}
	}

	if stages.Clusters {
		res, err := p.computeClusters(routes)
		if err != nil {
			return nil, fmt.Errorf("clusters: %w", err)
		}
		rep.Clusters, rep.NoiseRoutes, rep.ExcludedCoordinates = res.Clusters, res.Noise, res.Excluded
		if res.Excluded > 0 {
			log.Printf("Clustering: excluded %d routes without usable coordinates", res.Excluded)
		}
		log.Printf("Clustering: %d clusters, %d noise routes", res.Clusters, res.Noise)
		assignments := make([]store.ClusterAssignment, len(res.Assignments))
		for i, a := range res.Assignments {
			assignments[i] = store.ClusterAssignment{RouteID: a.ID, Label: a.Label, Size: a.Size}
		}
		out.Clusters = &store.ClusterTable{Assignments: assignments}
	}

	if stages.Ratings {
		res, err := p.computeRatings(routes)
		switch {
		case errors.Is(err, internalerr.ErrNoRatings):
			rep.RatingsSkipped, rep.UnratedRoutes = true, len(routes)
			log.Printf("WARNING: ratings skipped, none of %d routes has usable stars", len(routes))
		case err != nil:
			return nil, fmt.Errorf("ratings: %w", err)
		default:
			rep.CorpusMean, rep.UnratedRoutes = res.Mean, res.Unrated
			if res.Unrated > 0 {
				log.Printf("Ratings: %d routes without usable stars received the corpus mean", res.Unrated)
			}
			log.Printf("Ratings: corpus mean %.3f", res.Mean)
			ratings := make([]store.BayesRating, len(res.Ratings))
			for i, r := range res.Ratings {
				ratings[i] = store.BayesRating{RouteID: r.RouteID, Bayes: r.Bayes}
			}
			out.Ratings = &store.RatingTable{Ratings: ratings}
		}
	}

	out.Run = store.Run{
		ID:         rep.RunID,
		StartedAt:  started,
		FinishedAt: p.now(),
		Stages:     rep.Stages,
		Counts:     rep.counts(),
		Failed:     rep.FailedStyles,
	}
	if err := p.store.ReplaceDerived(ctx, out); err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}
	return rep, nil
}

func (p *Pipeline) newID(t time.Time) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), p.entropy).String()
}

func (p *Pipeline) computeClusters(routes []store.Route) (*geo.Result, error) {
	pts := make([]geo.Point, len(routes))
	for i, r := range routes {
		pts[i] = geo.Point{ID: r.ID, Lat: deref(r.Latitude), Lon: deref(r.Longitude)}
	}
	return geo.Cluster(pts, p.cluster)
}

func (p *Pipeline) computeRatings(routes []store.Route) (*rating.Result, error) {
	in := make([]rating.Input, len(routes))
	for i, r := range routes {
		in[i] = rating.Input{RouteID: r.ID, Stars: r.Stars, Votes: r.Votes}
	}
	return p.smoother.Apply(in)
}

// deref maps a missing coordinate to NaN so the clusterer excludes it.
func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
