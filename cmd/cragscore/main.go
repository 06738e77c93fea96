package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognicore/cragscore/pkg/cragscore"
	"github.com/cognicore/cragscore/pkg/cragscore/config"
	"github.com/cognicore/cragscore/pkg/cragscore/store/sqlite"
)

var (
	configPath string
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cragscore",
		Short: "Batch scoring of climbing route descriptions, locations and ratings",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(
		ImportCmd(),
		RunCmd(),
		ArchetypesCmd(),
		ReportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	return cfg, nil
}

// openPipeline opens the store named in cfg and wires the configured
// components around it. The caller closes the pipeline.
func openPipeline(ctx context.Context, cfg *config.Config) (*cragscore.Pipeline, error) {
	comp, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	st, err := sqlite.OpenSQLite(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Database, err)
	}
	return cragscore.New(cragscore.Options{
		Store:      st,
		Normalizer: comp.Normalizer,
		Vocabulary: comp.Vocabulary,
		Styles: cragscore.StyleOptions{
			Dir:          cfg.Styles.Dir,
			Names:        cfg.Styles.Names,
			ArtifactsDir: cfg.Styles.Artifacts,
			Rescore:      cfg.Styles.Rescore,
		},
		Credibility: comp.Credibility,
		Clustering:  comp.Clustering,
		Smoother:    comp.Smoother,
	}), nil
}
