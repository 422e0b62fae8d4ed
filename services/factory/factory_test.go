package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phantomd/pkg/fingerprint"
	"phantomd/pkg/identity"
)

// newTestFactory builds a factory over throwaway directories. Tests write
// templates and a manifest into the returned config paths as needed.
func newTestFactory(t *testing.T, seed int64) *Factory {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		TrapsDir:     filepath.Join(root, "traps"),
		TemplatesDir: filepath.Join(root, "templates"),
		ManifestPath: filepath.Join(root, "manifest.yaml"),
	}
	if err := os.MkdirAll(cfg.TemplatesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := New(cfg, identity.NewSeededProvider(seed), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const envTemplate = `COMPANY={{ .Company }}
ADMIN_EMAIL={{ .AdminEmail }}
AWS_ACCESS_KEY_ID={{ .AWSAccessKey }}
DB_HOST={{ .DBHost }}
DB_PASSWORD={{ .DBPassword }}
APP_VERSION={{ .Version }}
GENERATED_AT={{ .GeneratedAt }}
`

const sentryTemplate = `company={{ .Company }}
dsn=https://{{ .SentryKey }}@sentry.io/{{ .SentryProjectID }}
updated={{ .LastUpdated }}
`

func TestDeployTrapsEndToEnd(t *testing.T) {
	f := newTestFactory(t, 21)

	writeFile(t, filepath.Join(f.cfg.TemplatesDir, "creds.env.tmpl"), envTemplate)
	writeFile(t, filepath.Join(f.cfg.TemplatesDir, "sentry.properties.tmpl"), sentryTemplate)
	writeZip(t, filepath.Join(f.cfg.TemplatesDir, "report.docx"), "", map[string]string{
		"[Content_Types].xml": "<Types/>",
		"word/document.xml":   "<document>quarterly numbers</document>",
	})

	writeFile(t, f.cfg.ManifestPath, `traps:
  - id: trap-env
    template: creds.env.tmpl
    output: .env
    format: text
    category: credentials
    priority: high
  - id: trap-sentry
    template: sentry.properties.tmpl
    output: config/sentry.properties
    format: text
    category: credentials
  - id: trap-docx
    template: report.docx
    output: reports/q3-findings.docx
    format: binary
    category: document
`)

	summary, err := f.DeployTraps(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Deployed)
	require.Equal(t, 3, summary.Total)
	require.NotEmpty(t, summary.Context.Host)
	require.NotEmpty(t, summary.Context.User)

	base := f.BaseProfile()

	env, err := os.ReadFile(filepath.Join(f.cfg.TrapsDir, ".env"))
	require.NoError(t, err)
	require.NotContains(t, string(env), "{{", "unrendered template markers leaked")
	require.Contains(t, string(env), base.Company)
	require.Contains(t, string(env), fingerprint.Derive("creds.env.tmpl").KeyTail())

	sentry, err := os.ReadFile(filepath.Join(f.cfg.TrapsDir, "config", "sentry.properties"))
	require.NoError(t, err)
	require.Contains(t, string(sentry), base.Company, "artifacts from one run must share one identity")
	require.Contains(t, string(sentry), base.SentryKey)

	r, err := zip.OpenReader(filepath.Join(f.cfg.TrapsDir, "reports", "q3-findings.docx"))
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "trap-docx", r.Comment)
}

func TestDeployMissingTemplateSkips(t *testing.T) {
	f := newTestFactory(t, 4)

	writeFile(t, filepath.Join(f.cfg.TemplatesDir, "real.tmpl"), "key={{ .AWSAccessKey }}\n")
	writeFile(t, f.cfg.ManifestPath, `traps:
  - id: trap-ghost
    template: ghost.tmpl
    output: ghost.cfg
    format: text
  - id: trap-real
    template: real.tmpl
    output: real.cfg
    format: text
`)

	summary, err := f.DeployTraps(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Deployed, "missing template must be skipped, not deployed")
	require.Equal(t, 2, summary.Total, "skipped tasks still count toward the total")

	_, err = os.Stat(filepath.Join(f.cfg.TrapsDir, "ghost.cfg"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.cfg.TrapsDir, "real.cfg"))
	require.NoError(t, err, "a skipped task must not block later tasks")
}

func TestDeployWithoutManifest(t *testing.T) {
	f := newTestFactory(t, 4)

	summary, err := f.DeployTraps(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Deployed)
	require.Zero(t, summary.Total)

	info, err := os.Stat(f.cfg.TrapsDir)
	require.NoError(t, err, "traps root is created even for an empty run")
	require.True(t, info.IsDir())
}

func TestDeployMalformedManifest(t *testing.T) {
	f := newTestFactory(t, 4)
	writeFile(t, f.cfg.ManifestPath, "traps: [whoops\n")

	summary, err := f.DeployTraps(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Deployed)
	require.Zero(t, summary.Total)
}

func TestDeployCancelledContext(t *testing.T) {
	f := newTestFactory(t, 4)
	writeFile(t, filepath.Join(f.cfg.TemplatesDir, "real.tmpl"), "x={{ .Company }}\n")
	writeFile(t, f.cfg.ManifestPath, `traps:
  - template: real.tmpl
    output: real.cfg
    format: text
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.DeployTraps(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, summary.Deployed)
	require.Equal(t, 1, summary.Total)
}

func TestInventory(t *testing.T) {
	f := newTestFactory(t, 21)

	items, err := f.Inventory()
	require.NoError(t, err)
	require.Empty(t, items, "inventory of an undeployed run is empty")

	writeFile(t, filepath.Join(f.cfg.TemplatesDir, "creds.env.tmpl"), envTemplate)
	writeFile(t, f.cfg.ManifestPath, `traps:
  - template: creds.env.tmpl
    output: nested/dir/.env
    format: text
`)
	_, err = f.DeployTraps(context.Background())
	require.NoError(t, err)

	items, err = f.Inventory()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "nested/dir/.env", items[0].Path)
	require.Equal(t, ".env", items[0].Name)
	require.Greater(t, items[0].Size, int64(0))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, identity.NewSeededProvider(1), zap.NewNop())
	require.Error(t, err)

	_, err = New(Config{TrapsDir: "a", TemplatesDir: "b", ManifestPath: "c"}, nil, zap.NewNop())
	require.Error(t, err)
}
