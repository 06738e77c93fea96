package store

import (
	"context"
	"time"
)

// Store is the corpus store contract. Corpus reads come from the scraped
// route table; every derived table is written with replace semantics, so a
// Replace* call either publishes the complete new table or leaves the
// previous one untouched.
type Store interface {
	Close() error

	// Corpus
	Routes(ctx context.Context) ([]Route, error)
	UpsertRoutes(ctx context.Context, routes []Route) error

	// Text statistics
	ReplaceTFIDF(ctx context.Context, t TFIDFTable) error
	IDF(ctx context.Context) (map[string]float64, error)
	TFIDF(ctx context.Context) ([]TFIDFRow, error)
	WordCounts(ctx context.Context) (map[int64]float64, error)

	// Styles
	ReplaceArchetypes(ctx context.Context, weights []ArchetypeWeight) error
	Archetypes(ctx context.Context) ([]ArchetypeWeight, error)
	ReplaceStyleScores(ctx context.Context, scores []StyleScore) error
	StyleScores(ctx context.Context, style string, limit int) ([]StyleScore, error)

	// Geography and ratings
	ReplaceClusters(ctx context.Context, assignments []ClusterAssignment) error
	Clusters(ctx context.Context) ([]ClusterAssignment, error)
	ReplaceRatings(ctx context.Context, ratings []BayesRating) error
	Ratings(ctx context.Context) ([]BayesRating, error)

	// Bookkeeping
	RecordRun(ctx context.Context, r Run) error
	LastRun(ctx context.Context) (Run, bool, error)

	// ReplaceDerived publishes one run's output as a unit: every table
	// present in d is replaced and the run is recorded, or nothing changes.
	ReplaceDerived(ctx context.Context, d Derived) error
}

// Derived is the output of one pipeline run. A nil section leaves the stored
// tables of that stage as they are.
type Derived struct {
	TFIDF    *TFIDFTable
	Styles   *StyleTables
	Clusters *ClusterTable
	Ratings  *RatingTable
	Run      Run
}

// StyleTables holds the styles stage output. Archetypes is nil when the
// stored matrix was reused instead of rebuilt.
type StyleTables struct {
	Archetypes []ArchetypeWeight
	Scores     []StyleScore
}

// ClusterTable holds the clustering stage output.
type ClusterTable struct {
	Assignments []ClusterAssignment
}

// RatingTable holds the ratings stage output.
type RatingTable struct {
	Ratings []BayesRating
}

// Route is one scraped climbing route. Nil pointers mark values the scraper
// never found.
type Route struct {
	ID        int64
	Name      string
	Text      string
	Stars     *float64
	Votes     int64
	Latitude  *float64
	Longitude *float64
}

// IDFRecord holds the inverse document frequency of a term that survived the
// vocabulary filter.
type IDFRecord struct {
	Term string
	DF   int64
	IDF  float64
}

// TFIDFRow is one (route, term) entry of the scored corpus.
type TFIDFRow struct {
	RouteID int64
	Term    string
	TF      float64
	IDF     float64
	TFIDF   float64
	TFIDFN  float64
}

// TFIDFTable is written as a unit: the IDF table, the normalized vectors and
// the document lengths they were computed from.
type TFIDFTable struct {
	IDF        []IDFRecord
	Rows       []TFIDFRow
	WordCounts map[int64]float64
}

// ArchetypeWeight is one cell of the term x style archetype matrix.
type ArchetypeWeight struct {
	Style  string
	Term   string
	TF     float64
	Weight float64 // normalized TFIDF
}

// StyleScore is the per-route result for one style.
type StyleScore struct {
	RouteID int64
	Style   string
	Cosine  float64 // raw similarity
	Score   float64 // credibility-blended
	Diff    float64 // dominance over the other styles
}

// ClusterAssignment labels a route with its density cluster.
type ClusterAssignment struct {
	RouteID int64
	Label   int // -1 for noise
	Size    int
}

// BayesRating is a route's shrinkage-adjusted star rating.
type BayesRating struct {
	RouteID int64
	Bayes   float64
}

// Run records one pipeline execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []string
	Counts     map[string]int64
	Failed     []string // styles whose archetype could not be loaded
}
