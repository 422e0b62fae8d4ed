package factory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestAuditPassesAgedTree(t *testing.T) {
	root := t.TempDir()
	env := filepath.Join(root, "creds", ".env")
	writeFile(t, env, "AWS_ACCESS_KEY_ID=AKIA5XQ3EXAMPLE")
	doc := filepath.Join(root, "docs", "q3.docx")
	writeZip(t, doc, "tag-1", map[string]string{"word/document.xml": "<doc/>"})
	backdate(t, env, 30*24*time.Hour)
	backdate(t, doc, 12*24*time.Hour)

	issues, err := Audit(root, time.Now())
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestAuditFlagsFreshMtime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "creds", ".env"), "SECRET=1")

	issues, err := Audit(root, time.Now())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "creds/.env", issues[0].Path)
	require.Contains(t, issues[0].Detail, "fresh mtime")
}

func TestAuditFlagsCorruptContainer(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "report.docx")
	writeFile(t, doc, "not a zip at all")
	backdate(t, doc, 48*time.Hour)

	issues, err := Audit(root, time.Now())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "report.docx", issues[0].Path)
	require.Contains(t, issues[0].Detail, "corrupt container")
}

func TestAuditMissingRoot(t *testing.T) {
	_, err := Audit(filepath.Join(t.TempDir(), "absent"), time.Now())
	require.Error(t, err)
}
