package cragscore

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/cragscore/pkg/cragscore/archetype"
	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/similarity"
	"github.com/cognicore/cragscore/pkg/cragscore/store"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
	"github.com/cognicore/cragscore/pkg/cragscore/tfidf"
)

// DefaultStyles lists the styles scored when none are configured.
func DefaultStyles() []string {
	return append([]string(nil), archetype.DefaultStyles...)
}

type textStage struct {
	corpus     *tfidf.Corpus
	wordCounts map[int64]float64
}

func (t *textStage) table() store.TFIDFTable {
	terms := make([]string, 0, len(t.corpus.IDF))
	for term := range t.corpus.IDF {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	out := store.TFIDFTable{
		IDF:        make([]store.IDFRecord, len(terms)),
		Rows:       make([]store.TFIDFRow, len(t.corpus.Rows)),
		WordCounts: t.wordCounts,
	}
	for i, term := range terms {
		out.IDF[i] = store.IDFRecord{Term: term, DF: t.corpus.DF[term], IDF: t.corpus.IDF[term]}
	}
	for i, r := range t.corpus.Rows {
		out.Rows[i] = store.TFIDFRow{RouteID: r.RouteID, Term: r.Term, TF: r.TF, IDF: r.IDF, TFIDF: r.TFIDF, TFIDFN: r.TFIDFN}
	}
	return out
}

func (t *textStage) vectors() map[int64]map[string]float64 {
	out := make(map[int64]map[string]float64, len(t.corpus.Vectors))
	for id, v := range t.corpus.Vectors {
		out[id] = v
	}
	return out
}

// computeTFIDF normalizes every description in parallel and runs the
// vocabulary filter, IDF and TFIDF passes.
func (p *Pipeline) computeTFIDF(ctx context.Context, routes []store.Route) (*textStage, error) {
	docs := make([]textnorm.Document, len(routes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, r := range routes {
		i, r := i, r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = p.normalizer.Document(r.ID, r.Text, p.blend.WordCountFloor)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	corpus, err := tfidf.Compute(ctx, docs, p.vocab)
	if err != nil {
		return nil, err
	}
	wc := make(map[int64]float64, len(docs))
	for _, d := range docs {
		wc[d.RouteID] = d.WordCount
	}
	return &textStage{corpus: corpus, wordCounts: wc}, nil
}

type styleStage struct {
	matrix  *archetype.Matrix
	rebuilt bool
	failed  []string
	scores  []store.StyleScore
}

// computeStyles scores every route against every archetype. Text statistics
// come from this run when the tfidf stage ran, otherwise from the store.
func (p *Pipeline) computeStyles(ctx context.Context, routes []store.Route, text *textStage) (*styleStage, error) {
	var (
		idf        map[string]float64
		vectors    map[int64]map[string]float64
		wordCounts map[int64]float64
		err        error
	)
	if text != nil {
		idf, vectors, wordCounts = text.corpus.IDF, text.vectors(), text.wordCounts
	} else {
		if idf, err = p.store.IDF(ctx); err != nil {
			return nil, err
		}
		rows, err := p.store.TFIDF(ctx)
		if err != nil {
			return nil, err
		}
		vectors = make(map[int64]map[string]float64)
		for _, r := range rows {
			if vectors[r.RouteID] == nil {
				vectors[r.RouteID] = make(map[string]float64)
			}
			vectors[r.RouteID][r.Term] = r.TFIDFN
		}
		if wordCounts, err = p.store.WordCounts(ctx); err != nil {
			return nil, err
		}
	}
	if len(idf) == 0 {
		return nil, fmt.Errorf("no IDF table, run the tfidf stage first: %w", internalerr.ErrNoVocabulary)
	}

	st := &styleStage{}
	if p.styles.Rescore {
		st.matrix, st.failed, err = p.buildMatrix(idf)
		if err != nil {
			return nil, err
		}
		st.rebuilt = true
	} else {
		cells, err := p.store.Archetypes(ctx)
		if err != nil {
			return nil, err
		}
		var missing error
		st.matrix, missing = archetype.FromWeights(styleNames(p.styles.Names), fromWeights(cells))
		st.failed = archetype.FailedStyles(missing)
		if len(st.matrix.Styles) == 0 {
			return nil, fmt.Errorf("no persisted archetypes, rescore first: %w", internalerr.ErrNoArchetypes)
		}
	}

	ids := make([]int64, len(routes))
	wc := make([]float64, len(routes))
	for i, r := range routes {
		ids[i] = r.ID
		c, ok := wordCounts[r.ID]
		if !ok {
			c = p.blend.WordCountFloor
		}
		wc[i] = c
	}

	columns := make(map[string]map[string]float64, len(st.matrix.Styles))
	for _, s := range st.matrix.Styles {
		columns[s] = st.matrix.Column(s)
	}
	table, err := similarity.ScoreCorpus(ctx, ids, vectors, st.matrix.Styles, columns)
	if err != nil {
		return nil, err
	}
	blended, err := similarity.BlendTable(table, wc, p.blend)
	if err != nil {
		return nil, err
	}
	diff := similarity.Contrast(blended)

	st.scores = make([]store.StyleScore, 0, len(ids)*len(table.Styles))
	for si, style := range table.Styles {
		for ri, id := range ids {
			st.scores = append(st.scores, store.StyleScore{
				RouteID: id,
				Style:   style,
				Cosine:  table.Cosine[si][ri],
				Score:   blended[si][ri],
				Diff:    diff[si][ri],
			})
		}
	}
	return st, nil
}

// buildMatrix loads the reference texts and weights them with idf. Styles
// whose file cannot be read are returned in failed; the run continues with
// the rest unless none loaded.
func (p *Pipeline) buildMatrix(idf map[string]float64) (*archetype.Matrix, []string, error) {
	docs, loadErr := archetype.Load(p.styles.Dir, p.styles.Names)
	failed := archetype.FailedStyles(loadErr)
	if loadErr != nil && len(failed) == 0 {
		return nil, nil, loadErr
	}
	if len(docs) == 0 {
		if loadErr == nil {
			return nil, nil, fmt.Errorf("no styles configured: %w", internalerr.ErrNoArchetypes)
		}
		return nil, failed, fmt.Errorf("%w: %w", internalerr.ErrNoArchetypes, loadErr)
	}

	b := &archetype.Builder{Normalizer: p.normalizer, IDF: idf}
	m := b.Build(docs)
	if p.styles.ArtifactsDir != "" {
		if err := m.WriteArtifacts(p.styles.ArtifactsDir); err != nil {
			return nil, failed, fmt.Errorf("write archetype artifacts: %w", err)
		}
		log.Printf("Wrote %s and %s to %s", archetype.TFFile, archetype.TFIDFFile, p.styles.ArtifactsDir)
	}
	return m, failed, nil
}

// ArchetypeReport is the outcome of BuildArchetypes.
type ArchetypeReport struct {
	Matrix *archetype.Matrix
	Failed []string
}

// BuildArchetypes rebuilds the archetype matrix from the reference texts
// against the persisted IDF table and stores it. Use it to calibrate a new
// style without rescoring the corpus.
func (p *Pipeline) BuildArchetypes(ctx context.Context) (*ArchetypeReport, error) {
	if p.store == nil {
		return nil, internalerr.ErrStoreUnavailable
	}
	idf, err := p.store.IDF(ctx)
	if err != nil {
		return nil, err
	}
	if len(idf) == 0 {
		return nil, fmt.Errorf("no IDF table, run the tfidf stage first: %w", internalerr.ErrNoVocabulary)
	}
	m, failed, err := p.buildMatrix(idf)
	if err != nil {
		return nil, err
	}
	if err := p.store.ReplaceArchetypes(ctx, toWeights(m)); err != nil {
		return nil, err
	}
	return &ArchetypeReport{Matrix: m, Failed: failed}, nil
}

func styleNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		name, _ := archetype.ResolvePath("", s)
		out = append(out, name)
	}
	return out
}

func toWeights(m *archetype.Matrix) []store.ArchetypeWeight {
	cells := m.Cells()
	out := make([]store.ArchetypeWeight, len(cells))
	for i, c := range cells {
		out[i] = store.ArchetypeWeight{Style: c.Style, Term: c.Term, TF: c.TF, Weight: c.Weight}
	}
	return out
}

func fromWeights(ws []store.ArchetypeWeight) []archetype.Cell {
	out := make([]archetype.Cell, len(ws))
	for i, w := range ws {
		out[i] = archetype.Cell{Style: w.Style, Term: w.Term, TF: w.TF, Weight: w.Weight}
	}
	return out
}
