// Package rating smooths route star ratings toward the corpus mean.
package rating

import (
	"fmt"
	"math"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

// DefaultPriorVotes is the number of phantom votes cast at the corpus mean.
const DefaultPriorVotes = 10

// Input is the raw rating data of one route. Stars is nil for unrated
// routes.
type Input struct {
	RouteID int64
	Stars   *float64
	Votes   int64
}

func (in Input) rated() bool {
	return in.Stars != nil && !math.IsNaN(*in.Stars) && !math.IsInf(*in.Stars, 0) && in.Votes >= 0
}

// Rating is the smoothed rating of one route.
type Rating struct {
	RouteID int64
	Bayes   float64
}

// Result holds every route's smoothed rating.
type Result struct {
	Mean    float64
	Ratings []Rating
	// Unrated counts routes without usable stars or votes. They receive the
	// rounded corpus mean.
	Unrated int
}

// Smoother is a shrinkage estimator with PriorVotes phantom votes at the
// corpus mean.
type Smoother struct {
	PriorVotes float64
}

// NewSmoother returns a smoother with the default prior.
func NewSmoother() *Smoother {
	return &Smoother{PriorVotes: DefaultPriorVotes}
}

// CorpusMean averages the stars of every rated route.
func CorpusMean(routes []Input) (float64, error) {
	var sum float64
	var n int
	for _, r := range routes {
		if !r.rated() {
			continue
		}
		sum += *r.Stars
		n++
	}
	if n == 0 {
		return 0, internalerr.ErrNoRatings
	}
	return sum / float64(n), nil
}

// Smooth returns round((votes*stars + mean*prior) / (votes + prior), 1).
func (s *Smoother) Smooth(stars float64, votes int64, mean float64) float64 {
	v := float64(votes)
	return round1((v*stars + mean*s.PriorVotes) / (v + s.PriorVotes))
}

// Apply smooths every route against the corpus mean of the same set.
func (s *Smoother) Apply(routes []Input) (*Result, error) {
	if !(s.PriorVotes > 0) {
		return nil, fmt.Errorf("prior votes must be positive, got %v: %w", s.PriorVotes, internalerr.ErrInvalidInput)
	}
	mean, err := CorpusMean(routes)
	if err != nil {
		return nil, err
	}
	res := &Result{Mean: mean, Ratings: make([]Rating, len(routes))}
	for i, r := range routes {
		b := round1(mean)
		if r.rated() {
			b = s.Smooth(*r.Stars, r.Votes, mean)
		} else {
			res.Unrated++
		}
		res.Ratings[i] = Rating{RouteID: r.RouteID, Bayes: b}
	}
	return res, nil
}

// round1 rounds half to even at one decimal.
func round1(x float64) float64 {
	return math.RoundToEven(x*10) / 10
}
