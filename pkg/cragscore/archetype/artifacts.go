package archetype

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Artifact file names written for calibration.
const (
	TFFile    = "TF.csv"
	TFIDFFile = "TFIDF.csv"
)

// WriteArtifacts writes the raw term frequencies and the normalized weights
// as term x style CSV tables. Missing cells are left blank.
func (m *Matrix) WriteArtifacts(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	if err := writeTable(filepath.Join(dir, TFFile), m.Styles, m.TF); err != nil {
		return err
	}
	return writeTable(filepath.Join(dir, TFIDFFile), m.Styles, m.Weights)
}

func writeTable(path string, styles []string, table map[string]map[string]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"word"}, styles...)); err != nil {
		return err
	}
	for _, term := range sortedKeys(table) {
		rec := make([]string, 0, len(styles)+1)
		rec = append(rec, term)
		for _, s := range styles {
			v, ok := table[term][s]
			if !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
