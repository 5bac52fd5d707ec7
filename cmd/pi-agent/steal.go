package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pi-agent/concore/pkg/coordinator"
	"github.com/pi-agent/concore/pkg/runtimeconfig"
)

func newStealCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "steal",
		Short: "Attempt to claim one stealable task from a busier peer instance",
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

			stolen, ok, err := c.Stealer.SafeStealWork()
			if err != nil {
				return fmt.Errorf("steal: %w", err)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no stealable work found")
				return nil
			}

			bold := color.New(color.Bold, color.FgGreen)
			bold.Fprintln(cmd.OutOrStdout(), "claimed work from a peer")
			fmt.Fprintf(cmd.OutOrStdout(), "  from instance: %s\n", stolen.FromInstanceID)
			fmt.Fprintf(cmd.OutOrStdout(), "  entry id:      %s\n", stolen.Entry.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "  priority:      %s\n", stolen.Entry.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", string(runtimeconfig.ProfileDefault), "runtime profile: default or stable")
	return cmd
}
