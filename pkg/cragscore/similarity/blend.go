package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

// BlendConfig controls the credibility weighting.
type BlendConfig struct {
	// Steepness is the logistic growth rate applied around the threshold.
	Steepness float64
	// WordCountFloor keeps log10 of empty documents finite.
	WordCountFloor float64
}

// DefaultBlendConfig uses a steepness of 100, which turns the blended score
// into a near-binary flag, and a word count floor of 0.01.
func DefaultBlendConfig() BlendConfig {
	return BlendConfig{Steepness: 100, WordCountFloor: 0.01}
}

// Credibility maps word counts to [0, 1]: log10 of the floored count,
// min-max scaled across the corpus. When every route has the same length
// (including a corpus of one) there is no spread and every credibility is 0.
func Credibility(wordCounts []float64, floor float64) []float64 {
	n := len(wordCounts)
	if n == 0 {
		return nil
	}
	if floor <= 0 {
		floor = DefaultBlendConfig().WordCountFloor
	}
	logs := make([]float64, n)
	for i, wc := range wordCounts {
		if wc < floor || math.IsNaN(wc) {
			wc = floor
		}
		logs[i] = math.Log10(wc)
	}

	w := make([]float64, n)
	lo, hi := floats.Min(logs), floats.Max(logs)
	span := hi - lo
	if span == 0 {
		return w
	}
	for i, l := range logs {
		w[i] = (l - lo) / span
	}
	return w
}

// Blend combines one style's similarities with route credibility:
//
//	raw = C*sqrt(C^2 + W^2) + (1-C)(1-W)*mean(C)
//	score = 1 / (1 + e^(-k(raw - (mean(raw) + sd(raw)))))
//
// sd is the sample standard deviation, taken as 0 for fewer than two
// routes. Zero spread leaves a hard step at the mean.
func Blend(cosine, credibility []float64, steepness float64) ([]float64, error) {
	n := len(cosine)
	if n != len(credibility) {
		return nil, fmt.Errorf("blend: %d similarities but %d credibilities: %w", n, len(credibility), internalerr.ErrInvalidInput)
	}
	if n == 0 {
		return nil, nil
	}

	avg := stat.Mean(cosine, nil)
	raw := make([]float64, n)
	for i, c := range cosine {
		w := credibility[i]
		raw[i] = c*math.Sqrt(c*c+w*w) + (1-c)*(1-w)*avg
	}

	threshold := stat.Mean(raw, nil) + sampleStdDev(raw)
	out := make([]float64, n)
	for i, r := range raw {
		out[i] = Logistic(r-threshold, steepness)
	}
	return out, nil
}

// Logistic returns 1 / (1 + e^(-k*x)). Overflow saturates to 0 or 1.
func Logistic(x, k float64) float64 {
	e := math.Exp(-k * x)
	if math.IsInf(e, 1) {
		return 0
	}
	return 1 / (1 + e)
}

func sampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	sd := stat.StdDev(x, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// BlendTable blends every style column of t. wordCounts is aligned with
// t.RouteIDs.
func BlendTable(t *Table, wordCounts []float64, cfg BlendConfig) ([][]float64, error) {
	if len(wordCounts) != len(t.RouteIDs) {
		return nil, fmt.Errorf("blend: %d routes but %d word counts: %w", len(t.RouteIDs), len(wordCounts), internalerr.ErrInvalidInput)
	}
	cred := Credibility(wordCounts, cfg.WordCountFloor)
	out := make([][]float64, len(t.Styles))
	for si := range t.Styles {
		col, err := Blend(t.Cosine[si], cred, cfg.Steepness)
		if err != nil {
			return nil, fmt.Errorf("style %s: %w", t.Styles[si], err)
		}
		out[si] = col
	}
	return out, nil
}

// Contrast measures how much each style dominates the others for a route:
// score_s * (score_s - sum of the other styles' scores).
func Contrast(scores [][]float64) [][]float64 {
	if len(scores) == 0 {
		return nil
	}
	n := len(scores[0])
	totals := make([]float64, n)
	for _, col := range scores {
		floats.Add(totals, col)
	}
	out := make([][]float64, len(scores))
	for si, col := range scores {
		diff := make([]float64, n)
		for ri, s := range col {
			others := totals[ri] - s
			diff[ri] = s * (s - others)
		}
		out[si] = diff
	}
	return out
}
