package packs

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// testAgeKey builds a valid bech32 age secret key from a fixed seed byte.
func testAgeKey(t *testing.T, seed byte) string {
	t.Helper()
	raw := bytes.Repeat([]byte{seed}, ed25519.SeedSize)
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	require.NoError(t, err)
	key, err := bech32.Encode("age-secret-key-", grouped)
	require.NoError(t, err)
	return key
}

func readPackManifest(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if filepath.Clean(hdr.Name) == manifestFileName {
			data, err := io.ReadAll(tr)
			require.NoError(t, err)
			return data
		}
	}
	t.Fatal("manifest not found in pack")
	return nil
}

// writeRawPack assembles a tar.zst with the given manifest bytes and entries,
// bypassing Build so tests can produce tampered archives.
func writeRawPack(t *testing.T, path string, manifest []byte, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)

	writeEntry := func(name string, data []byte) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	writeEntry(manifestFileName, manifest)
	for name, data := range entries {
		writeEntry(name, data)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestSignerRoundtrip(t *testing.T) {
	t.Setenv(envAgeSecretKey, testAgeKey(t, 7))
	signer, err := NewSignerFromEnv()
	require.NoError(t, err)
	require.NotEmpty(t, signer.PublicKeyBase64())

	payload := []byte("signed pack manifest")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	require.NoError(t, signer.Verify(payload, sig, ""))
	require.Error(t, signer.Verify([]byte("different payload"), sig, ""))
	require.Error(t, signer.Verify(payload, "not base64!!", ""))
}

func TestVerifyOnlySigner(t *testing.T) {
	t.Setenv(envAgeSecretKey, testAgeKey(t, 5))
	full, err := NewSignerFromEnv()
	require.NoError(t, err)

	payload := []byte("manifest body")
	sig, err := full.Sign(payload)
	require.NoError(t, err)

	t.Setenv(envAgeSecretKey, "")
	t.Setenv(envAgePublicKey, full.PublicKeyBase64())
	verifier, err := NewSignerFromEnv()
	require.NoError(t, err)

	require.NoError(t, verifier.Verify(payload, sig, ""))
	require.NoError(t, verifier.Verify(payload, sig, full.PublicKeyBase64()))

	_, err = verifier.Sign(payload)
	require.Error(t, err, "verify-only signer must refuse to sign")

	other := make([]byte, ed25519.PublicKeySize)
	other[0] = 1
	require.Error(t, verifier.Verify(payload, sig, base64.StdEncoding.EncodeToString(other)),
		"manifest claiming a different signing key must be rejected")
}

func TestBuildInstallRoundtrip(t *testing.T) {
	ctx := context.Background()
	t.Setenv(envAgeSecretKey, testAgeKey(t, 7))
	signer, err := NewSignerFromEnv()
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "docs"), 0o755))
	envBody := []byte("AWS_ACCESS_KEY_ID={{.AWSAccessKey}}\n")
	docBody := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0x00}
	require.NoError(t, os.WriteFile(filepath.Join(src, "aws_credentials.env.tmpl"), envBody, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "docs", "salaries.docx"), docBody, 0o644))

	out := filepath.Join(t.TempDir(), "starter.pack.tar.zst")
	var stdout bytes.Buffer
	manifest, err := Build(ctx, BuildConfig{
		TemplatesDir: src,
		Name:         "starter",
		Output:       out,
		Signer:       signer,
		Now:          func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) },
		Stdout:       &stdout,
	})
	require.NoError(t, err)
	require.Len(t, manifest.Templates, 2)
	assert.Equal(t, "aws_credentials.env.tmpl", manifest.Templates[0].Path)
	assert.Equal(t, "template", manifest.Templates[0].Kind)
	assert.Equal(t, "docs/salaries.docx", manifest.Templates[1].Path)
	assert.Equal(t, "document", manifest.Templates[1].Kind)
	require.NotEmpty(t, manifest.Signature)
	assert.Contains(t, stdout.String(), "wrote pack")

	dst := t.TempDir()
	installed, err := Install(ctx, InstallConfig{
		PackPath:     out,
		TemplatesDir: dst,
		Signer:       signer,
		Stdout:       &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, manifest.Signature, installed.Signature)
	assert.Equal(t, "starter", installed.Name)

	got, err := os.ReadFile(filepath.Join(dst, "aws_credentials.env.tmpl"))
	require.NoError(t, err)
	assert.Equal(t, envBody, got)
	got, err = os.ReadFile(filepath.Join(dst, "docs", "salaries.docx"))
	require.NoError(t, err)
	assert.Equal(t, docBody, got)
}

func TestInstallRejectsTamperedTemplate(t *testing.T) {
	ctx := context.Background()
	t.Setenv(envAgeSecretKey, testAgeKey(t, 3))
	signer, err := NewSignerFromEnv()
	require.NoError(t, err)

	src := t.TempDir()
	body := []byte("password: hunter2-original\n")
	require.NoError(t, os.WriteFile(filepath.Join(src, "database.yml.tmpl"), body, 0o644))

	pack := filepath.Join(t.TempDir(), "good.pack.tar.zst")
	_, err = Build(ctx, BuildConfig{TemplatesDir: src, Output: pack, Signer: signer, Stdout: io.Discard})
	require.NoError(t, err)

	// Same length, different bytes: the size check passes, the digest must not.
	altered := []byte("password: hunter2-injected\n")
	evil := filepath.Join(t.TempDir(), "evil.pack.tar.zst")
	writeRawPack(t, evil, readPackManifest(t, pack), map[string][]byte{
		"templates/database.yml.tmpl": altered,
	})

	_, err = Install(ctx, InstallConfig{PackPath: evil, TemplatesDir: t.TempDir(), Signer: signer, Stdout: io.Discard})
	require.ErrorContains(t, err, "sha256 mismatch")
}

func TestInstallRejectsAlteredManifest(t *testing.T) {
	ctx := context.Background()
	t.Setenv(envAgeSecretKey, testAgeKey(t, 4))
	signer, err := NewSignerFromEnv()
	require.NoError(t, err)

	src := t.TempDir()
	body := []byte("token: {{.SentryKey}}\n")
	require.NoError(t, os.WriteFile(filepath.Join(src, "sentry.properties.tmpl"), body, 0o644))

	pack := filepath.Join(t.TempDir(), "good.pack.tar.zst")
	_, err = Build(ctx, BuildConfig{TemplatesDir: src, Output: pack, Signer: signer, Stdout: io.Discard})
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, yaml.Unmarshal(readPackManifest(t, pack), &manifest))
	manifest.Name = "not-what-was-signed"
	mutated, err := yaml.Marshal(manifest)
	require.NoError(t, err)

	evil := filepath.Join(t.TempDir(), "evil.pack.tar.zst")
	writeRawPack(t, evil, mutated, map[string][]byte{
		"templates/sentry.properties.tmpl": body,
	})

	_, err = Install(ctx, InstallConfig{PackPath: evil, TemplatesDir: t.TempDir(), Signer: signer, Stdout: io.Discard})
	require.ErrorContains(t, err, "verify manifest signature")
}

func TestInstallRejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	t.Setenv(envAgeSecretKey, testAgeKey(t, 9))
	signer, err := NewSignerFromEnv()
	require.NoError(t, err)

	evil := filepath.Join(t.TempDir(), "evil.pack.tar.zst")
	writeRawPack(t, evil, []byte("version: \"1\"\n"), map[string][]byte{
		"templates/../../escape.txt": []byte("gotcha"),
	})

	_, err = Install(ctx, InstallConfig{PackPath: evil, TemplatesDir: t.TempDir(), Signer: signer, Stdout: io.Discard})
	require.ErrorContains(t, err, "invalid entry path")
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()
	t.Setenv(envAgeSecretKey, testAgeKey(t, 2))
	signer, err := NewSignerFromEnv()
	require.NoError(t, err)

	_, err = Build(ctx, BuildConfig{})
	require.Error(t, err)

	_, err = Build(ctx, BuildConfig{
		TemplatesDir: t.TempDir(),
		Output:       filepath.Join(t.TempDir(), "p.tar.zst"),
		Signer:       signer,
		Stdout:       io.Discard,
	})
	require.ErrorContains(t, err, "no templates")
}
