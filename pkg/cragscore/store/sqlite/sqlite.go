package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// schema when missing. A database that cannot be opened is reported as
// ErrStoreUnavailable.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS routes (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	stars REAL,
	votes INTEGER NOT NULL DEFAULT 0,
	latitude REAL,
	longitude REAL
);

CREATE TABLE IF NOT EXISTS idf (
	term TEXT PRIMARY KEY,
	df INTEGER NOT NULL,
	idf REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS tfidf (
	route_id INTEGER NOT NULL,
	term TEXT NOT NULL,
	tf REAL NOT NULL,
	idf REAL NOT NULL,
	tfidf REAL NOT NULL,
	tfidfn REAL NOT NULL,
	PRIMARY KEY(route_id, term)
);

CREATE TABLE IF NOT EXISTS route_words (
	route_id INTEGER PRIMARY KEY,
	word_count REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS archetypes (
	style TEXT NOT NULL,
	term TEXT NOT NULL,
	tf REAL NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY(style, term)
);

CREATE TABLE IF NOT EXISTS style_scores (
	route_id INTEGER NOT NULL,
	style TEXT NOT NULL,
	cosine REAL NOT NULL,
	score REAL NOT NULL,
	diff REAL NOT NULL,
	PRIMARY KEY(route_id, style)
);

CREATE INDEX IF NOT EXISTS idx_style_scores_rank ON style_scores(style, score DESC);

CREATE TABLE IF NOT EXISTS clusters (
	route_id INTEGER PRIMARY KEY,
	label INTEGER NOT NULL,
	size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ratings (
	route_id INTEGER PRIMARY KEY,
	bayes REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	summary TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Routes returns the whole corpus ordered by id.
func (s *sqliteStore) Routes(ctx context.Context) ([]store.Route, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, stars, votes, latitude, longitude
FROM routes
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []store.Route
	for rows.Next() {
		var (
			r             store.Route
			stars, la, lo sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Text, &stars, &r.Votes, &la, &lo); err != nil {
			return nil, err
		}
		r.Stars = nullable(stars)
		r.Latitude = nullable(la)
		r.Longitude = nullable(lo)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// UpsertRoutes inserts or updates routes keyed by id.
func (s *sqliteStore) UpsertRoutes(ctx context.Context, routes []store.Route) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO routes (id, name, description, stars, votes, latitude, longitude)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name,
	description=excluded.description,
	stars=excluded.stars,
	votes=excluded.votes,
	latitude=excluded.latitude,
	longitude=excluded.longitude`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Text,
			nullFloat(r.Stars), r.Votes, nullFloat(r.Latitude), nullFloat(r.Longitude)); err != nil {
			return fmt.Errorf("upsert route %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ReplaceTFIDF swaps the idf, tfidf and route_words tables in one
// transaction.
func (s *sqliteStore) ReplaceTFIDF(ctx context.Context, t store.TFIDFTable) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return writeTFIDF(ctx, tx, t) })
}

func writeTFIDF(ctx context.Context, tx *sql.Tx, t store.TFIDFTable) error {
	if err := replaceTable(ctx, tx, "idf", []string{"term", "df", "idf"}, len(t.IDF), func(i int) []any {
		r := t.IDF[i]
		return []any{r.Term, r.DF, r.IDF}
	}); err != nil {
		return err
	}
	if err := replaceTable(ctx, tx, "tfidf", []string{"route_id", "term", "tf", "idf", "tfidf", "tfidfn"}, len(t.Rows), func(i int) []any {
		r := t.Rows[i]
		return []any{r.RouteID, r.Term, r.TF, r.IDF, r.TFIDF, r.TFIDFN}
	}); err != nil {
		return err
	}
	ids := make([]int64, 0, len(t.WordCounts))
	for id := range t.WordCounts {
		ids = append(ids, id)
	}
	return replaceTable(ctx, tx, "route_words", []string{"route_id", "word_count"}, len(ids), func(i int) []any {
		return []any{ids[i], t.WordCounts[ids[i]]}
	})
}

// IDF returns term -> idf.
func (s *sqliteStore) IDF(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term, idf FROM idf`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var term string
		var idf float64
		if err := rows.Scan(&term, &idf); err != nil {
			return nil, err
		}
		out[term] = idf
	}
	return out, rows.Err()
}

// TFIDF returns every scored (route, term) row ordered by route then term.
func (s *sqliteStore) TFIDF(ctx context.Context) ([]store.TFIDFRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT route_id, term, tf, idf, tfidf, tfidfn
FROM tfidf
ORDER BY route_id, term`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TFIDFRow
	for rows.Next() {
		var r store.TFIDFRow
		if err := rows.Scan(&r.RouteID, &r.Term, &r.TF, &r.IDF, &r.TFIDF, &r.TFIDFN); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WordCounts returns route id -> floored token count.
func (s *sqliteStore) WordCounts(ctx context.Context) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT route_id, word_count FROM route_words`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var wc float64
		if err := rows.Scan(&id, &wc); err != nil {
			return nil, err
		}
		out[id] = wc
	}
	return out, rows.Err()
}

func (s *sqliteStore) ReplaceArchetypes(ctx context.Context, weights []store.ArchetypeWeight) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return writeArchetypes(ctx, tx, weights) })
}

func writeArchetypes(ctx context.Context, tx *sql.Tx, weights []store.ArchetypeWeight) error {
	return replaceTable(ctx, tx, "archetypes", []string{"style", "term", "tf", "weight"}, len(weights), func(i int) []any {
		w := weights[i]
		return []any{w.Style, w.Term, w.TF, w.Weight}
	})
}

func (s *sqliteStore) Archetypes(ctx context.Context) ([]store.ArchetypeWeight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT style, term, tf, weight FROM archetypes ORDER BY style, term`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ArchetypeWeight
	for rows.Next() {
		var w store.ArchetypeWeight
		if err := rows.Scan(&w.Style, &w.Term, &w.TF, &w.Weight); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ReplaceStyleScores(ctx context.Context, scores []store.StyleScore) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return writeStyleScores(ctx, tx, scores) })
}

func writeStyleScores(ctx context.Context, tx *sql.Tx, scores []store.StyleScore) error {
	return replaceTable(ctx, tx, "style_scores", []string{"route_id", "style", "cosine", "score", "diff"}, len(scores), func(i int) []any {
		sc := scores[i]
		return []any{sc.RouteID, sc.Style, sc.Cosine, sc.Score, sc.Diff}
	})
}

// StyleScores returns the routes of one style ranked by blended score. A
// non-positive limit returns all of them.
func (s *sqliteStore) StyleScores(ctx context.Context, style string, limit int) ([]store.StyleScore, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT route_id, style, cosine, score, diff
FROM style_scores
WHERE style = ?
ORDER BY score DESC, route_id
LIMIT ?`, style, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.StyleScore
	for rows.Next() {
		var sc store.StyleScore
		if err := rows.Scan(&sc.RouteID, &sc.Style, &sc.Cosine, &sc.Score, &sc.Diff); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ReplaceClusters(ctx context.Context, assignments []store.ClusterAssignment) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return writeClusters(ctx, tx, assignments) })
}

func writeClusters(ctx context.Context, tx *sql.Tx, assignments []store.ClusterAssignment) error {
	return replaceTable(ctx, tx, "clusters", []string{"route_id", "label", "size"}, len(assignments), func(i int) []any {
		a := assignments[i]
		return []any{a.RouteID, a.Label, a.Size}
	})
}

func (s *sqliteStore) Clusters(ctx context.Context) ([]store.ClusterAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT route_id, label, size FROM clusters ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ClusterAssignment
	for rows.Next() {
		var a store.ClusterAssignment
		if err := rows.Scan(&a.RouteID, &a.Label, &a.Size); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ReplaceRatings(ctx context.Context, ratings []store.BayesRating) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return writeRatings(ctx, tx, ratings) })
}

func writeRatings(ctx context.Context, tx *sql.Tx, ratings []store.BayesRating) error {
	return replaceTable(ctx, tx, "ratings", []string{"route_id", "bayes"}, len(ratings), func(i int) []any {
		return []any{ratings[i].RouteID, ratings[i].Bayes}
	})
}

func (s *sqliteStore) Ratings(ctx context.Context) ([]store.BayesRating, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT route_id, bayes FROM ratings ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.BayesRating
	for rows.Next() {
		var r store.BayesRating
		if err := rows.Scan(&r.RouteID, &r.Bayes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type runSummary struct {
	Stages []string         `json:"stages"`
	Counts map[string]int64 `json:"counts"`
	Failed []string         `json:"failed,omitempty"`
}

// RecordRun stores a run with its stages and counts serialized as JSON.
func (s *sqliteStore) RecordRun(ctx context.Context, r store.Run) error {
	return insertRun(ctx, s.db, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRun(ctx context.Context, db execer, r store.Run) error {
	summary, err := json.Marshal(runSummary{Stages: r.Stages, Counts: r.Counts, Failed: r.Failed})
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO runs (id, started_at, finished_at, summary)
VALUES (?, ?, ?, ?)`,
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(summary),
	)
	return err
}

// LastRun returns the most recent run. Run ids are ULIDs and sort by time.
func (s *sqliteStore) LastRun(ctx context.Context) (store.Run, bool, error) {
	var (
		r                 store.Run
		started, finished string
		summary           string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, started_at, finished_at, summary
FROM runs
ORDER BY id DESC
LIMIT 1`).Scan(&r.ID, &started, &finished, &summary)
	if err == sql.ErrNoRows {
		return store.Run{}, false, nil
	}
	if err != nil {
		return store.Run{}, false, err
	}

	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return store.Run{}, false, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return store.Run{}, false, fmt.Errorf("parse finished_at: %w", err)
	}
	var rs runSummary
	if err := json.Unmarshal([]byte(summary), &rs); err != nil {
		return store.Run{}, false, fmt.Errorf("decode run summary: %w", err)
	}
	r.Stages, r.Counts, r.Failed = rs.Stages, rs.Counts, rs.Failed
	return r, true, nil
}

// ReplaceDerived writes every present section and the run record in a
// single transaction.
func (s *sqliteStore) ReplaceDerived(ctx context.Context, d store.Derived) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if d.TFIDF != nil {
			if err := writeTFIDF(ctx, tx, *d.TFIDF); err != nil {
				return err
			}
		}
		if d.Styles != nil {
			if d.Styles.Archetypes != nil {
				if err := writeArchetypes(ctx, tx, d.Styles.Archetypes); err != nil {
					return err
				}
			}
			if err := writeStyleScores(ctx, tx, d.Styles.Scores); err != nil {
				return err
			}
		}
		if d.Clusters != nil {
			if err := writeClusters(ctx, tx, d.Clusters.Assignments); err != nil {
				return err
			}
		}
		if d.Ratings != nil {
			if err := writeRatings(ctx, tx, d.Ratings.Ratings); err != nil {
				return err
			}
		}
		if err := insertRun(ctx, tx, d.Run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		return nil
	})
}

func (s *sqliteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceTable empties table and inserts n rows inside tx. Readers outside
// the transaction keep seeing the previous contents until commit.
func replaceTable(ctx context.Context, tx *sql.Tx, table string, cols []string, n int, row func(int) []any) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if n == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
