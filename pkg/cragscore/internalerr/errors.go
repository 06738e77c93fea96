package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("store unavailable")

	// Pipeline failures
	ErrEmptyCorpus      = errors.New("empty corpus")
	ErrNoVocabulary     = errors.New("no terms survived the vocabulary filter")
	ErrNoRatings        = errors.New("no rated routes in corpus")
	ErrArchetypeMissing = errors.New("archetype document missing")
	ErrNoArchetypes     = errors.New("no usable archetypes")
)
