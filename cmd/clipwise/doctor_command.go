package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipwise/internal/logging"
	"clipwise/internal/preflight"
	"clipwise/internal/storage"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, object storage and remote endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			// A nil store still yields a failed "Object store" row.
			objects, storeErr := storage.New(cmd.Context(), cfg, logging.NewNop())
			if storeErr != nil {
				objects = nil
			}
			results := preflight.RunAll(cmd.Context(), cfg, objects)
			failed := preflight.Failed(results)

			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(results))
				for _, result := range results {
					state := "ok"
					if !result.Passed {
						state = "failed"
					}
					rows = append(rows, []string{result.Name, colorStatus(state, colorize), result.Detail})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					Headers: []string{"Check", "Result", "Detail"},
					Rows:    rows,
				}))
				if storeErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "object store: %v\n", storeErr)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
