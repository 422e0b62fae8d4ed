package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"phantomd/infra/seed"
	"phantomd/pkg/identity"
	"phantomd/pkg/telemetry"
	"phantomd/services/factory"
	"phantomd/services/phantomd/internal/config"
)

func newInitCommand() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the starter config, manifest and templates into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seed.Write(dir, force, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to seed")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite files that already exist")
	return cmd
}

func newDeployCommand() *cobra.Command {
	var (
		configPath string
		seedValue  int64
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run a one-shot trap deployment and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			debug, _ := strconv.ParseBool(os.Getenv("PHANTOMD_DEBUG"))
			logger, err := telemetry.NewLogger(debug)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if seedValue != 0 {
				cfg.Seed = seedValue
			}

			provider := identity.NewProvider()
			if cfg.Seed != 0 {
				provider = identity.NewSeededProvider(cfg.Seed)
			}

			f, err := factory.New(factory.Config{
				TrapsDir:     cfg.Paths.TrapsDir,
				TemplatesDir: cfg.Paths.TemplatesDir,
				ManifestPath: cfg.Paths.Manifest,
			}, provider, logger.Named("factory"))
			if err != nil {
				return fmt.Errorf("create factory: %w", err)
			}

			summary, err := f.DeployTraps(ctx)
			if err != nil {
				return fmt.Errorf("deploy traps: %w", err)
			}

			fmt.Fprintf(os.Stdout, "deployed %d/%d traps under %s\n",
				summary.Deployed, summary.Total, cfg.Paths.TrapsDir)
			if summary.Deployed == 0 {
				return errors.New("no traps deployed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to phantom.yaml (defaults to $PHANTOMD_CONFIG or ./phantom.yaml)")
	cmd.Flags().Int64Var(&seedValue, "seed", 0, "Fixed identity seed for reproducible output")
	return cmd
}
