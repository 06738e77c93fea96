package archetype

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

// DefaultStyles are the archetypes shipped with the project.
var DefaultStyles = []string{"arete", "chimney", "crack", "slab", "overhang"}

// Document is the reference text describing one style.
type Document struct {
	Style string
	Path  string
	Text  string
}

// LoadError reports a style whose archetype could not be obtained. Path is
// empty when the style was looked up among persisted archetypes.
type LoadError struct {
	Style string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("archetype %q: %v", e.Style, e.Err)
	}
	return fmt.Sprintf("archetype %q: read %s: %v", e.Style, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets callers match any load failure against ErrArchetypeMissing.
func (e *LoadError) Is(target error) bool {
	return target == internalerr.ErrArchetypeMissing
}

// ResolvePath maps a style given as "crack" or "crack.txt" to its name and
// the file expected inside dir.
func ResolvePath(dir, style string) (name, path string) {
	name = strings.TrimSuffix(style, ".txt")
	return name, filepath.Join(dir, name+".txt")
}

// Load reads the reference text of every style. Styles that fail are
// reported in the returned error (one LoadError per style, combined with
// multierr) while the others are still returned.
func Load(dir string, styles []string) ([]Document, error) {
	var (
		docs []Document
		errs error
		seen = make(map[string]struct{}, len(styles))
	)
	for _, s := range styles {
		name, path := ResolvePath(dir, s)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		data, err := os.ReadFile(path)
		if err != nil {
			errs = multierr.Append(errs, &LoadError{Style: name, Path: path, Err: err})
			continue
		}
		docs = append(docs, Document{Style: name, Path: path, Text: string(data)})
	}
	return docs, errs
}

// FailedStyles extracts the style names from an error returned by Load or
// FromWeights.
func FailedStyles(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		if le, ok := e.(*LoadError); ok {
			out = append(out, le.Style)
		}
	}
	return out
}
