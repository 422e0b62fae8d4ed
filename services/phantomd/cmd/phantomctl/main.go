package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "phantomctl",
		Short:         "Utility for managing phantomd traps and template packs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newDeployCommand())
	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newInventoryCommand())
	cmd.AddCommand(newAlertsCommand())
	cmd.AddCommand(newPacksCommand())
	return cmd
}
