package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipwise/internal/api"
	"clipwise/internal/config"
)

func newCampaignCommand(ctx *commandContext) *cobra.Command {
	campaignCmd := &cobra.Command{
		Use:   "campaign",
		Short: "Show or change the campaign used by scheduled runs",
	}
	campaignCmd.AddCommand(newCampaignShowCommand(ctx))
	campaignCmd.AddCommand(newCampaignSetCommand(ctx))
	return campaignCmd
}

func newCampaignShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current campaign state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			state, err := config.LoadState(cfg.StatePath(), cfg.DefaultState())
			if err != nil {
				return err
			}
			dto := api.FromState(state)
			if jsonOutput {
				return writeJSON(cmd, dto)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Campaign:   %s\n", dto.Campaign)
			fmt.Fprintf(out, "Batch size: %d\n", dto.BatchSize)
			fmt.Fprintf(out, "Updated:    %s\n", displayTime(dto.UpdatedAt))
			if cfg.Campaign.Schedule != "" {
				fmt.Fprintf(out, "Schedule:   %s\n", cfg.Campaign.Schedule)
			} else {
				fmt.Fprintln(out, "Schedule:   disabled")
			}
			if len(cfg.Campaign.Presets) > 0 {
				fmt.Fprintf(out, "Presets:    %s\n", strings.Join(cfg.Campaign.Presets, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCampaignSetCommand(ctx *commandContext) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "set <campaign>",
		Short: "Persist the campaign for the next scheduled run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			current, err := config.LoadState(cfg.StatePath(), cfg.DefaultState())
			if err != nil {
				return err
			}
			state := config.State{
				Campaign:  config.NormalizeCampaign(args[0]),
				BatchSize: current.BatchSize,
				UpdatedAt: time.Now().UTC(),
			}
			if cmd.Flags().Changed("batch-size") {
				if batchSize < 0 {
					return fmt.Errorf("batch size must be >= 0, got %d", batchSize)
				}
				state.BatchSize = batchSize
			}
			if state.Campaign == "" {
				return fmt.Errorf("campaign is required")
			}
			if err := config.SaveState(cfg.StatePath(), state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Campaign set to %q (batch %d)\n", state.Campaign, state.BatchSize)
			if !isPreset(cfg.Campaign.Presets, state.Campaign) {
				fmt.Fprintf(cmd.ErrOrStderr(), "note: %q is not one of the configured presets\n", state.Campaign)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&batchSize, "batch-size", "n", 0, "Batch size for scheduled runs (0 pauses them)")
	return cmd
}

func isPreset(presets []string, campaign string) bool {
	if len(presets) == 0 {
		return true
	}
	for _, preset := range presets {
		if preset == campaign {
			return true
		}
	}
	return false
}
