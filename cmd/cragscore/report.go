package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/cragscore/pkg/cragscore/store/sqlite"
)

type reportRun struct {
	ID         string           `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Stages     []string         `json:"stages"`
	Counts     map[string]int64 `json:"counts"`
	Failed     []string         `json:"failed_styles,omitempty"`
}

type reportRoute struct {
	RouteID int64   `json:"route_id"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Cosine  float64 `json:"cosine"`
	Diff    float64 `json:"diff"`
}

type reportOutput struct {
	Run    *reportRun               `json:"run,omitempty"`
	Styles map[string][]reportRoute `json:"styles"`
}

func ReportCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "report [style...]",
		Short: "Print the top routes per style as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			styles := cfg.Styles.Names
			if len(args) > 0 {
				styles = args
			}

			ctx := cmd.Context()
			st, err := sqlite.OpenSQLite(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open store %s: %w", cfg.Database, err)
			}
			defer st.Close()

			routes, err := st.Routes(ctx)
			if err != nil {
				return err
			}
			names := make(map[int64]string, len(routes))
			for _, r := range routes {
				names[r.ID] = r.Name
			}

			out := reportOutput{Styles: make(map[string][]reportRoute, len(styles))}
			if run, found, err := st.LastRun(ctx); err != nil {
				return err
			} else if found {
				out.Run = &reportRun{
					ID:         run.ID,
					StartedAt:  run.StartedAt,
					FinishedAt: run.FinishedAt,
					Stages:     run.Stages,
					Counts:     run.Counts,
					Failed:     run.Failed,
				}
			}

			for _, style := range styles {
				style = strings.TrimSuffix(style, ".txt")
				scores, err := st.StyleScores(ctx, style, top)
				if err != nil {
					return err
				}
				list := make([]reportRoute, 0, len(scores))
				for _, sc := range scores {
					list = append(list, reportRoute{
						RouteID: sc.RouteID,
						Name:    names[sc.RouteID],
						Score:   sc.Score,
						Cosine:  sc.Cosine,
						Diff:    sc.Diff,
					})
				}
				out.Styles[style] = list
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 10, "routes per style (0 for all)")
	return cmd
}
