package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phantomd/pkg/identity"
	"phantomd/services/factory"
	"phantomd/services/phantomd/internal/config"
)

func newInventoryCommand() *cobra.Command {
	var (
		configPath string
		trapsDir   string
	)

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List the trap artifacts currently on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if trapsDir != "" {
				cfg.Paths.TrapsDir = trapsDir
			}

			f, err := factory.New(factory.Config{
				TrapsDir:     cfg.Paths.TrapsDir,
				TemplatesDir: cfg.Paths.TemplatesDir,
				ManifestPath: cfg.Paths.Manifest,
			}, identity.NewProvider(), zap.NewNop())
			if err != nil {
				return err
			}

			items, err := f.Inventory()
			if err != nil {
				return fmt.Errorf("inventory: %w", err)
			}
			if len(items) == 0 {
				fmt.Fprintf(os.Stdout, "no artifacts under %s\n", cfg.Paths.TrapsDir)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSIZE\tMODIFIED")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%d\t%s\n",
					item.Path, item.Size, item.ModTime.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to phantom.yaml (defaults to $PHANTOMD_CONFIG or ./phantom.yaml)")
	cmd.Flags().StringVar(&trapsDir, "traps-dir", "", "Traps directory to list (overrides config)")
	return cmd
}
