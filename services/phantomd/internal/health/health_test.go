package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phantomd/pkg/identity"
	"phantomd/services/factory"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	traps := filepath.Join(t.TempDir(), "decoys")
	f, err := factory.New(factory.Config{
		TrapsDir:     traps,
		TemplatesDir: t.TempDir(),
		ManifestPath: filepath.Join(t.TempDir(), "traps.yaml"),
	}, identity.NewSeededProvider(1), zap.NewNop())
	require.NoError(t, err)

	s, err := New(Config{Factory: f})
	require.NoError(t, err)
	return s, traps
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	h, err := s.Routes()
	require.NoError(t, err)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyzFlipsAfterDeployment(t *testing.T) {
	s, _ := newTestServer(t)
	h, err := s.Routes()
	require.NoError(t, err)

	rec := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetSummary(factory.Summary{Deployed: 3, Total: 3})
	rec = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestSummaryEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h, err := s.Routes()
	require.NoError(t, err)

	s.SetSummary(factory.Summary{
		Deployed: 2,
		Total:    3,
		Context:  factory.SystemContext{User: "svc", Host: "db01"},
	})

	rec := get(t, h, "/v1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Summary factory.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Summary.Deployed)
	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, "db01", resp.Summary.Context.Host)
}

func TestInventoryEndpoint(t *testing.T) {
	s, traps := newTestServer(t)
	h, err := s.Routes()
	require.NoError(t, err)

	rec := get(t, h, "/v1/inventory")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Artifacts []factory.ArtifactInfo `json:"artifacts"`
		Count     int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Artifacts)

	require.NoError(t, os.MkdirAll(filepath.Join(traps, "creds"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(traps, "creds", ".env"), []byte("AWS_ACCESS_KEY_ID=AKIA"), 0o644))

	rec = get(t, h, "/v1/inventory")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, ".env", resp.Artifacts[0].Name)
	assert.Equal(t, "creds/.env", resp.Artifacts[0].Path)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h, err := s.Routes()
	require.NoError(t, err)

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
