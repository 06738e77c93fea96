package rating

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

func stars(v float64) *float64 { return &v }

func TestSmoothZeroVotesGivesMean(t *testing.T) {
	s := NewSmoother()
	for _, raw := range []float64{0, 1.2, 4, 5} {
		assert.Equal(t, 3.5, s.Smooth(raw, 0, 3.5))
	}
}

func TestSmoothManyVotesApproachesStars(t *testing.T) {
	s := NewSmoother()
	got := s.Smooth(4.8, 1000, 3.5)
	assert.InDelta(t, 4.8, got, 0.05)
}

func TestSmoothFormula(t *testing.T) {
	s := NewSmoother()
	// (10*4 + 3*10) / 20 = 3.5
	assert.Equal(t, 3.5, s.Smooth(4, 10, 3))
	// (5*2.1 + 2.6*10) / 15 = 2.4333
	assert.Equal(t, 2.4, s.Smooth(2.1, 5, 2.6))
}

func TestApply(t *testing.T) {
	routes := []Input{
		{RouteID: 1, Stars: stars(4), Votes: 30},
		{RouteID: 2, Stars: stars(3), Votes: 0},
		{RouteID: 3, Votes: 12},
		{RouteID: 4, Stars: stars(math.NaN()), Votes: 2},
		{RouteID: 5, Stars: stars(2), Votes: -1},
	}
	res, err := NewSmoother().Apply(routes)
	require.NoError(t, err)

	assert.Equal(t, 3.5, res.Mean)
	assert.Equal(t, 3, res.Unrated)
	require.Len(t, res.Ratings, 5)

	want := map[int64]float64{
		1: math.RoundToEven((30*4+3.5*10)/40*10) / 10,
		2: 3.5,
		3: 3.5,
		4: 3.5,
		5: 3.5,
	}
	for _, r := range res.Ratings {
		assert.Equal(t, want[r.RouteID], r.Bayes, "route %d", r.RouteID)
	}
}

func TestApplyNoRatings(t *testing.T) {
	_, err := NewSmoother().Apply([]Input{{RouteID: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrNoRatings))
}

func TestApplyRejectsPrior(t *testing.T) {
	_, err := (&Smoother{PriorVotes: 0}).Apply([]Input{{RouteID: 1, Stars: stars(3)}})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}
