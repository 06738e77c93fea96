package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
	"github.com/cognicore/cragscore/pkg/cragscore/textnorm"
)

// Config is the pipeline configuration file.
type Config struct {
	Database    string      `yaml:"database"`
	Stoplist    string      `yaml:"stoplist"`
	Stemmer     string      `yaml:"stemmer"`
	Vocabulary  Vocabulary  `yaml:"vocabulary"`
	Styles      Styles      `yaml:"styles"`
	Credibility Credibility `yaml:"credibility"`
	Clustering  Clustering  `yaml:"clustering"`
	Rating      Rating      `yaml:"rating"`
	Stages      Stages      `yaml:"stages"`
}

// Vocabulary holds the document-frequency ratio bounds. Terms are kept only
// when min_occur < df/N < max_occur.
type Vocabulary struct {
	MinOccur float64 `yaml:"min_occur"`
	MaxOccur float64 `yaml:"max_occur"`
}

// Styles locates the archetype reference texts.
type Styles struct {
	Dir       string   `yaml:"dir"`
	Names     []string `yaml:"names"`
	Artifacts string   `yaml:"artifacts"`
	Rescore   bool     `yaml:"rescore"`
}

type Credibility struct {
	Steepness      float64 `yaml:"steepness"`
	WordCountFloor float64 `yaml:"word_count_floor"`
}

type Clustering struct {
	Epsilon   float64 `yaml:"epsilon"`
	MinRoutes int     `yaml:"min_routes"`
}

type Rating struct {
	PriorVotes float64 `yaml:"prior_votes"`
}

// Stages toggles each pipeline stage.
type Stages struct {
	Ratings  bool `yaml:"ratings"`
	Clusters bool `yaml:"clusters"`
	TFIDF    bool `yaml:"tfidf"`
	Styles   bool `yaml:"styles"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:   "cragscore.db",
		Stemmer:    string(textnorm.StemPorter),
		Vocabulary: Vocabulary{MinOccur: 0.001, MaxOccur: 0.9},
		Styles: Styles{
			Dir:     "Descriptions",
			Names:   []string{"arete", "chimney", "crack", "slab", "overhang"},
			Rescore: true,
		},
		Credibility: Credibility{Steepness: 100, WordCountFloor: 0.01},
		Clustering:  Clustering{Epsilon: 0.0007, MinRoutes: 3},
		Rating:      Rating{PriorVotes: 10},
		Stages:      Stages{Ratings: true, Clusters: true, TFIDF: true, Styles: true},
	}
}

// Load reads a YAML config file on top of the defaults. Keys absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	v := c.Vocabulary
	if v.MinOccur < 0 || v.MaxOccur < 0 {
		return invalid("vocabulary thresholds must not be negative")
	}
	if v.MinOccur >= v.MaxOccur {
		return invalid("vocabulary.min_occur (%v) must be below max_occur (%v)", v.MinOccur, v.MaxOccur)
	}
	if c.Credibility.Steepness <= 0 {
		return invalid("credibility.steepness must be positive")
	}
	if c.Credibility.WordCountFloor <= 0 {
		return invalid("credibility.word_count_floor must be positive")
	}
	if c.Clustering.Epsilon <= 0 {
		return invalid("clustering.epsilon must be positive")
	}
	if c.Clustering.MinRoutes < 1 {
		return invalid("clustering.min_routes must be at least 1")
	}
	if _, err := textnorm.ParseStemmer(c.Stemmer); err != nil {
		return invalid("stemmer must be porter, porter2 or none, got %q", c.Stemmer)
	}
	if c.Rating.PriorVotes <= 0 {
		return invalid("rating.prior_votes must be positive")
	}
	if c.Stages.Styles && len(c.Styles.Names) == 0 && c.Styles.Rescore {
		return invalid("styles.names is empty")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), internalerr.ErrInvalidConfig)
}

// Stoplist represents the extra stopword list
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}
