package config

import (
	"fmt"

	"github.com/cognicore/cragscore/pkg/cragscore/geo"
	"github.com/cognicore/cragscore/pkg/cragscore/rating"
	"github.com/cognicore/cragscore/pkg/cragscore/similarity"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
	"github.com/cognicore/cragscore/pkg/cragscore/tfidf"
)

// Components holds the pipeline pieces configured from a Config
type Components struct {
	Normalizer  *textnorm.Normalizer
	Vocabulary  tfidf.Thresholds
	Credibility similarity.BlendConfig
	Clustering  geo.Params
	Smoother    *rating.Smoother
}

// Build validates the config, reads the optional stoplist and returns
// initialized components
func (c *Config) Build() (*Components, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	comp := &Components{
		Vocabulary: tfidf.Thresholds{
			MinOccur: c.Vocabulary.MinOccur,
			MaxOccur: c.Vocabulary.MaxOccur,
		},
		Credibility: similarity.BlendConfig{
			Steepness:      c.Credibility.Steepness,
			WordCountFloor: c.Credibility.WordCountFloor,
		},
		Clustering: geo.Params{
			Epsilon:   c.Clustering.Epsilon,
			MinRoutes: c.Clustering.MinRoutes,
		},
		Smoother: &rating.Smoother{PriorVotes: c.Rating.PriorVotes},
	}

	if c.Stoplist != "" {
		stoplist, err := LoadStoplist(c.Stoplist)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		comp.Normalizer = textnorm.NewNormalizer(stoplist.Terms)
	} else {
		comp.Normalizer = textnorm.NewNormalizer(nil)
	}
	stemmer, err := textnorm.ParseStemmer(c.Stemmer)
	if err != nil {
		return nil, err
	}
	comp.Normalizer.SetStemmer(stemmer)

	return comp, nil
}
