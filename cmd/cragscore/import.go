package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/cognicore/cragscore/internal/corpus"
	"github.com/cognicore/cragscore/pkg/cragscore/store"
	"github.com/cognicore/cragscore/pkg/cragscore/store/sqlite"
)

func ImportCmd() *cobra.Command {
	var stripHTML bool
	cmd := &cobra.Command{
		Use:   "import <routes.jsonl>",
		Short: "Load scraped route records into the corpus store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			records, err := corpus.LoadJSONL(args[0], stripHTML)
			if err != nil {
				return err
			}
			log.Printf("Loaded %d routes from %s", len(records), args[0])

			ctx := cmd.Context()
			st, err := sqlite.OpenSQLite(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open store %s: %w", cfg.Database, err)
			}
			defer st.Close()

			routes := make([]store.Route, len(records))
			for i, r := range records {
				routes[i] = r.Route()
			}
			if err := st.UpsertRoutes(ctx, routes); err != nil {
				return err
			}
			log.Printf("✓ Imported %d routes into %s", len(routes), cfg.Database)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stripHTML, "strip-html", true, "reduce HTML descriptions to plain text")
	return cmd
}
