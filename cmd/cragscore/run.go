package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/cognicore/cragscore/pkg/cragscore"
)

func RunCmd() *cobra.Command {
	var (
		ratings, clusters, tfidf, styles bool
		rescore                          bool
		descriptions, artifacts          string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scoring pipeline over the stored corpus",
		Long: `Run the selected stages over one snapshot of the corpus and replace the
derived tables. Stage flags override the stages section of the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("ratings") {
				cfg.Stages.Ratings = ratings
			}
			if flags.Changed("clusters") {
				cfg.Stages.Clusters = clusters
			}
			if flags.Changed("tfidf") {
				cfg.Stages.TFIDF = tfidf
			}
			if flags.Changed("styles") {
				cfg.Stages.Styles = styles
			}
			if flags.Changed("rescore") {
				cfg.Styles.Rescore = rescore
			}
			if descriptions != "" {
				cfg.Styles.Dir = descriptions
			}
			if artifacts != "" {
				cfg.Styles.Artifacts = artifacts
			}

			ctx := cmd.Context()
			p, err := openPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			rep, err := p.Run(ctx, cragscore.Stages{
				Ratings:  cfg.Stages.Ratings,
				Clusters: cfg.Stages.Clusters,
				TFIDF:    cfg.Stages.TFIDF,
				Styles:   cfg.Stages.Styles,
			})
			if err != nil {
				return err
			}
			log.Printf("✓ Run %s complete: %d routes, stages %v", rep.RunID, rep.Routes, rep.Stages)
			if len(rep.FailedStyles) > 0 {
				log.Printf("WARNING: styles without archetype: %v (expected under %s)", rep.FailedStyles, cfg.Styles.Dir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ratings, "ratings", true, "compute Bayesian ratings")
	cmd.Flags().BoolVar(&clusters, "clusters", true, "compute spatial clusters")
	cmd.Flags().BoolVar(&tfidf, "tfidf", true, "compute IDF and TFIDF tables")
	cmd.Flags().BoolVar(&styles, "styles", true, "score routes against style archetypes")
	cmd.Flags().BoolVar(&rescore, "rescore", true, "rebuild archetypes from reference texts instead of reusing stored ones")
	cmd.Flags().StringVar(&descriptions, "descriptions", "", "directory of <style>.txt reference texts")
	cmd.Flags().StringVar(&artifacts, "artifacts", "", "directory for TF.csv and TFIDF.csv")
	return cmd
}

func ArchetypesCmd() *cobra.Command {
	var descriptions, artifacts string
	cmd := &cobra.Command{
		Use:   "archetypes [style...]",
		Short: "Rebuild style archetypes against the stored IDF table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Styles.Names = args
			}
			if descriptions != "" {
				cfg.Styles.Dir = descriptions
			}
			if artifacts != "" {
				cfg.Styles.Artifacts = artifacts
			}

			ctx := cmd.Context()
			p, err := openPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			rep, err := p.BuildArchetypes(ctx)
			if err != nil {
				return err
			}
			for _, style := range rep.Matrix.Styles {
				log.Printf("%s: %d weighted terms", style, len(rep.Matrix.Column(style)))
			}
			for _, style := range rep.Failed {
				log.Printf("WARNING: %s skipped, reference text not found", style)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&descriptions, "descriptions", "", "directory of <style>.txt reference texts")
	cmd.Flags().StringVar(&artifacts, "artifacts", "", "directory for TF.csv and TFIDF.csv")
	return cmd
}
