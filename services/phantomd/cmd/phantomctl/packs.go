package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	phs3 "phantomd/pkg/s3"
	"phantomd/services/packs"
)

func newPacksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packs",
		Short: "Template pack build, install and transfer operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newPacksBuildCommand())
	cmd.AddCommand(newPacksInstallCommand())
	cmd.AddCommand(newPacksPushCommand())
	cmd.AddCommand(newPacksFetchCommand())
	return cmd
}

func newPacksBuildCommand() *cobra.Command {
	var (
		templatesDir string
		name         string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create a signed pack from a templates directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := packs.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = packs.Build(ctx, packs.BuildConfig{
				TemplatesDir: templatesDir,
				Name:         name,
				Output:       output,
				Signer:       signer,
				Stdout:       os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&templatesDir, "templates-dir", "", "Directory containing templates to pack")
	cmd.Flags().StringVar(&name, "name", "", "Pack name (defaults to the directory name)")
	cmd.Flags().StringVar(&output, "output", "", "Destination pack file (tar.zst)")
	_ = cmd.MarkFlagRequired("templates-dir")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newPacksInstallCommand() *cobra.Command {
	var (
		packFile     string
		templatesDir string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Verify a signed pack and install its templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := packs.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = packs.Install(ctx, packs.InstallConfig{
				PackPath:     packFile,
				TemplatesDir: templatesDir,
				Signer:       signer,
				Stdout:       os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&packFile, "file", "", "Path to the pack tar.zst")
	cmd.Flags().StringVar(&templatesDir, "templates-dir", "", "Directory to install templates into")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("templates-dir")
	return cmd
}

func newPacksPushCommand() *cobra.Command {
	var (
		packFile string
		bucket   string
		key      string
		share    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload a pack to S3 compatible storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client, err := phs3.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			if key == "" {
				key = "packs/" + filepath.Base(packFile)
			}
			if err := packs.Push(ctx, client, bucket, key, packFile, os.Stdout); err != nil {
				return err
			}
			if share > 0 {
				url, err := client.PresignGet(ctx, bucket, key, share)
				if err != nil {
					return fmt.Errorf("presign: %w", err)
				}
				fmt.Fprintf(os.Stdout, "share url (valid %s): %s\n", share, url)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&packFile, "file", "", "Path to the pack tar.zst")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket")
	cmd.Flags().StringVar(&key, "key", "", "Object key (defaults to packs/<file name>)")
	cmd.Flags().DurationVar(&share, "share", 0, "Also print a presigned download URL valid for this long")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

func newPacksFetchCommand() *cobra.Command {
	var (
		bucket string
		key    string
		output string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a pack from S3 compatible storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client, err := phs3.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			return packs.Fetch(ctx, client, bucket, key, output, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Source bucket")
	cmd.Flags().StringVar(&key, "key", "", "Object key of the pack")
	cmd.Flags().StringVar(&output, "output", "", "Destination file for the pack")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
