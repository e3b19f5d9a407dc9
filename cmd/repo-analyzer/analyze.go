package main

import (
	"encoding/json"
	"fmt"

	"repo-analyzer/internal/database"
	"repo-analyzer/internal/service"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(opts *options) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "analyze <username>",
		Short: "Analyze one user and print the summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var store service.SnapshotStore
			if save && cfg.Database.Enabled {
				db, err := database.New(cmd.Context(), cfg.GetDSN())
				if err != nil {
					return err
				}
				defer db.Close()
				store = db
			}

			svc := newService(cfg, logger, store)
			summary, err := svc.AnalyzeUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store the summary as a snapshot when the database is enabled")
	return cmd
}
