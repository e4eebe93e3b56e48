package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clipwise/internal/api"
	"clipwise/internal/config"
	"clipwise/internal/daemonrun"
	"clipwise/internal/services"
	"clipwise/internal/store"
	"clipwise/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var batchSize int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run [campaign]",
		Short: "Trigger a run and execute it in the foreground",
		Long: "Trigger a run for the campaign and drive it through ingest, dispatch, poll,\n" +
			"finalize and index. Without a campaign argument the current campaign state is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			state, err := config.LoadState(cfg.StatePath(), cfg.DefaultState())
			if err != nil {
				return err
			}
			campaign := state.Campaign
			if len(args) == 1 {
				campaign = args[0]
			}
			size := state.BatchSize
			if cmd.Flags().Changed("batch-size") {
				size = batchSize
			}

			return ctx.withRuntime(cmd, true, func(runCtx context.Context, rt *daemonrun.Runtime) error {
				id, err := rt.Manager.Trigger(runCtx, campaign, size)
				if err != nil {
					return err
				}
				if !jsonOutput {
					fmt.Fprintf(cmd.ErrOrStderr(), "Execution %s started for %q (batch %d)\n", id, config.NormalizeCampaign(campaign), size)
				}
				execErr := rt.Manager.Execute(runCtx, id)
				if reportErr := printReport(cmd, rt.Manager, id, jsonOutput); reportErr != nil && execErr == nil {
					return reportErr
				}
				return execErr
			})
		},
	}
	cmd.Flags().IntVarP(&batchSize, "batch-size", "n", 0, "Number of assets to ingest (defaults to the campaign state)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the final run report as JSON")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Execute every unfinished run from its last completed stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withRuntime(cmd, true, func(runCtx context.Context, rt *daemonrun.Runtime) error {
				ids, err := rt.Manager.Resume(runCtx)
				out := cmd.OutOrStdout()
				if len(ids) == 0 && err == nil {
					fmt.Fprintln(out, "No unfinished runs")
					return nil
				}
				colorize := shouldColorize(out)
				for _, id := range ids {
					report, statusErr := rt.Manager.Status(runCtx, id)
					if statusErr != nil {
						fmt.Fprintf(out, "%s  %s\n", shortID(id), statusErr)
						continue
					}
					fmt.Fprintf(out, "%s  %-10s %s\n", shortID(id), colorStatus(string(report.Run.Status), colorize), report.Run.Campaign)
				}
				return err
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show a run with per-asset progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				mgr := workflow.NewManager(cfg, st, logger)
				err := printReport(cmd, mgr, id, jsonOutput)
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("execution %s not found", id)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, mgr *workflow.Manager, id string, jsonOutput bool) error {
	report, err := mgr.Status(cmd.Context(), id)
	if err != nil {
		return err
	}
	dto := api.FromRunReport(report)
	if jsonOutput {
		return writeJSON(cmd, dto)
	}
	out := cmd.OutOrStdout()
	renderRunReport(out, dto, shouldColorize(out))
	return nil
}
