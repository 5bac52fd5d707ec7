// pi-agent is the operator-facing CLI for the concurrency-control
// core: register a throwaway instance, inspect the live registry, and
// drive a single iteration-loop run against a subprocess model.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pi-agent/concore/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "pi-agent",
		Short:   "Multi-instance concurrency control core for local agent runtimes",
		Version: version.Full(),
	}

	rootCmd.AddCommand(
		newStatusCmd(),
		newRunCmd(),
		newStealCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
