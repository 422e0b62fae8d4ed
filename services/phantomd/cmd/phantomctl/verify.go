package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"phantomd/services/factory"
	"phantomd/services/phantomd/internal/config"
)

func newVerifyCommand() *cobra.Command {
	var (
		configPath string
		trapsDir   string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check deployed traps for fresh timestamps and broken containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := trapsDir
			if dir == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dir = cfg.Paths.TrapsDir
			}

			issues, err := factory.Audit(dir, time.Now())
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				fmt.Fprintf(os.Stdout, "all traps under %s pass\n", dir)
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(os.Stdout, "%s: %s\n", issue.Path, issue.Detail)
			}
			return fmt.Errorf("found %d issues under %s", len(issues), dir)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to phantom.yaml (defaults to $PHANTOMD_CONFIG or ./phantom.yaml)")
	cmd.Flags().StringVar(&trapsDir, "traps-dir", "", "Traps directory to check (overrides config)")
	return cmd
}
