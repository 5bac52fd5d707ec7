package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pi-agent/concore/pkg/coordinator"
	"github.com/pi-agent/concore/pkg/runtimeconfig"
)

func newStatusCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Register a probe instance and print the current cluster snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtimeRoot, err := runtimeconfig.RuntimeDir()
			if err != nil {
				return fmt.Errorf("resolve runtime dir: %w", err)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getwd: %w", err)
			}

			c, err := coordinator.New(runtimeRoot, runtimeconfig.Profile(profile), "pi-agent-cli", cwd)
			if err != nil {
				return fmt.Errorf("build coordinator: %w", err)
			}
			defer c.Close()

			snap, err := c.Snapshot()
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}

			bold := color.New(color.Bold)
			bold.Fprintln(cmd.OutOrStdout(), "pi-agent cluster status")
			fmt.Fprintf(cmd.OutOrStdout(), "  runtime dir:      %s\n", runtimeRoot)
			fmt.Fprintf(cmd.OutOrStdout(), "  instance id:      %s\n", snap.InstanceID)
			fmt.Fprintf(cmd.OutOrStdout(), "  profile:          %s\n", snap.Profile)
			fmt.Fprintf(cmd.OutOrStdout(), "  contending peers: %d\n", snap.ContendingPeers)
			fmt.Fprintf(cmd.OutOrStdout(), "  budget limit:     %d (base %d, samples %d)\n",
				snap.BudgetLimit.LearnedLimit, snap.BudgetLimit.BaseLimit, snap.BudgetLimit.SampleCount)
			fmt.Fprintf(cmd.OutOrStdout(), "  steal stats:      %d/%d attempts, avg %.1fms\n",
				snap.StealStats.Successes, snap.StealStats.Attempts, snap.StealStats.AvgLatencyMs)

			for _, w := range c.Warnings {
				color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "  warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", string(runtimeconfig.ProfileDefault), "runtime profile: default or stable")
	return cmd
}
