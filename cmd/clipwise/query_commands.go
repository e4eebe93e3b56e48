package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipwise/internal/api"
	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/storage"
	"clipwise/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				filter := make([]store.RunStatus, 0, len(statuses))
				for _, value := range statuses {
					if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
						filter = append(filter, store.RunStatus(value))
					}
				}
				runs, err := api.NewRunService(st).List(cmd.Context(), limit, filter...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.RunListResponse{Runs: runs})
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderRuns(runs, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by run status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	var campaign, source, status string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Query the metadata index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				filter := store.IndexFilter{
					Campaign: config.NormalizeCampaign(campaign),
					Source:   strings.TrimSpace(source),
					Status:   strings.ToUpper(strings.TrimSpace(status)),
					Limit:    limit,
				}
				assets, err := api.NewRunService(st).Assets(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.AssetListResponse{Assets: assets})
				}
				out := cmd.OutOrStdout()
				if len(assets) == 0 {
					fmt.Fprintln(out, "No indexed assets match")
					return nil
				}
				fmt.Fprintln(out, renderAssets(assets, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "Filter by campaign")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source (wikimedia, archive)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by index status (PROCESSED, FAILED, TIMED_OUT, FINALIZATION_FAILED)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum entries (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newObjectsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "objects [prefix]",
		Short: "List stored object keys under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = strings.TrimPrefix(strings.TrimSpace(args[0]), "/")
			}
			objects, err := storage.New(cmd.Context(), cfg, logging.NewNop())
			if err != nil {
				return err
			}
			listed, err := objects.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if jsonOutput {
				keys := make([]string, 0, len(listed))
				for _, obj := range listed {
					keys = append(keys, obj.Key)
				}
				return writeJSON(cmd, api.ObjectListResponse{Prefix: prefix, Keys: keys})
			}
			out := cmd.OutOrStdout()
			if len(listed) == 0 {
				fmt.Fprintf(out, "No objects under %q in %s storage\n", prefix, objects.Name())
				return nil
			}
			rows := make([][]string, 0, len(listed))
			var total int64
			for _, obj := range listed {
				total += obj.Size
				rows = append(rows, []string{obj.Key, strconv.FormatInt(obj.Size, 10), obj.ModifiedAt.Local().Format(displayTimeLayout)})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				Headers: []string{"Key", "Bytes", "Modified"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignLeft, alignRight},
				Footer:  []string{fmt.Sprintf("%d objects", len(listed)), strconv.FormatInt(total, 10)},
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
