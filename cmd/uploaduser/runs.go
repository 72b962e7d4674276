package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/uploaduser/internal/store"
)

func newRunsCommand() *cobra.Command {
	var (
		limit int
		mode  string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent upload runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}

			pool, err := store.OpenPool(cmd.Context(), cfg.Database.URL, store.PoolOptions{MaxConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := store.NewPostgres(pool).ListRuns(cmd.Context(), store.RunFilter{Mode: mode, Limit: limit})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSOURCE\tMODE\tTOTAL\tCREATED\tUPDATED\tDELETED\tERRORS\tSTATUS")
			for _, r := range runs {
				status := "completed"
				if r.Aborted {
					status = "aborted"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.RunID, r.StartedAt.Format(time.DateTime), r.Source, r.Mode,
					r.Total, r.Created, r.Updated, r.Deleted, r.Errors, status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultRunLimit, "number of runs to show")
	cmd.Flags().StringVar(&mode, "mode", "", "only runs with this import mode")
	return cmd
}
