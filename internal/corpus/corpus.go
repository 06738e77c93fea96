package corpus

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/cragscore/pkg/cragscore/store"
)

// Record is one scraped route as written by the scraper, one JSON object per
// line.
type Record struct {
	RouteID     int64    `json:"route_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Stars       *float64 `json:"stars"`
	Votes       int64    `json:"votes"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// Route converts the record for the corpus store.
func (r Record) Route() store.Route {
	return store.Route{
		ID:        r.RouteID,
		Name:      r.Name,
		Text:      r.Description,
		Stars:     r.Stars,
		Votes:     r.Votes,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

// LoadJSONL loads route records from a JSONL file. Malformed lines and
// records without a route id are skipped with a warning. When stripMarkup is
// set, descriptions are reduced to their text content.
func LoadJSONL(path string, stripMarkup bool) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var records []Record
	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Printf("Warning: skipping malformed JSON at line %d in %s: %v", i+1, path, err)
			continue
		}
		if rec.RouteID == 0 {
			log.Printf("Warning: skipping record without route_id at line %d in %s", i+1, path)
			continue
		}
		if stripMarkup {
			rec.Description = StripHTML(rec.Description)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no valid records found in %s", path)
	}

	return records, nil
}

// StripHTML returns the text content of an HTML fragment with whitespace
// collapsed. Script and style contents are dropped.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		// Fallback to string if parsing fails
		return s
	}

	var parts []string
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
