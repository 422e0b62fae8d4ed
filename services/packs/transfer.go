package packs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"phantomd/pkg/s3"
)

// Push uploads a built pack to S3 compatible storage.
func Push(ctx context.Context, client *s3.Client, bucket, key, packPath string, stdout io.Writer) error {
	if client == nil {
		return errors.New("s3 client is required")
	}
	if bucket == "" || key == "" {
		return errors.New("bucket and key are required")
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	file, err := os.Open(packPath)
	if err != nil {
		return fmt.Errorf("open pack: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return fmt.Errorf("hash pack: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind pack: %w", err)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if err := client.PutObject(ctx, bucket, key, file, size, digest); err != nil {
		return fmt.Errorf("upload pack: %w", err)
	}

	fmt.Fprintf(stdout, "pushed %s to s3://%s/%s (%d bytes)\n", filepath.Base(packPath), bucket, key, size)
	return nil
}

// Fetch downloads a pack from S3 compatible storage to dest.
func Fetch(ctx context.Context, client *s3.Client, bucket, key, dest string, stdout io.Writer) error {
	if client == nil {
		return errors.New("s3 client is required")
	}
	if bucket == "" || key == "" {
		return errors.New("bucket and key are required")
	}
	if dest == "" {
		return errors.New("destination path is required")
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	body, err := client.GetObject(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("download pack: %w", err)
	}
	defer body.Close()

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create destination dir: %w", err)
		}
	}
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	size, err := io.Copy(file, body)
	if err != nil {
		file.Close()
		return fmt.Errorf("write destination: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	fmt.Fprintf(stdout, "fetched s3://%s/%s to %s (%d bytes)\n", bucket, key, dest, size)
	return nil
}
