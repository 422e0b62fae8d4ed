package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"phantomd/services/factory"
	"phantomd/services/sensor"
)

func TestOrchestratorAlertsOnInventoryHits(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	root := t.TempDir()

	o := New(Config{
		Logger: zap.New(core),
		System: factory.SystemContext{User: "svc-backup", Host: "db01"},
	})
	o.SetInventory(root, []factory.ArtifactInfo{
		{Name: ".env", Path: "creds/.env"},
		{Name: "id_rsa", Path: "keys/id_rsa"},
	})
	require.Equal(t, 2, o.Tracked())

	events := make(chan sensor.Event, 3)
	events <- sensor.Event{
		Path:       filepath.Join(root, "creds", ".env"),
		Op:         sensor.OpOpen,
		ObservedAt: time.Now(),
	}
	events <- sensor.Event{
		Path:       filepath.Join(root, "README.md"),
		Op:         sensor.OpOpen,
		ObservedAt: time.Now(),
	}
	events <- sensor.Event{
		Path:       filepath.Join(root, "keys", "id_rsa"),
		Op:         sensor.OpModify,
		ObservedAt: time.Now(),
	}
	close(events)

	require.NoError(t, o.Run(context.Background(), events))

	entries := logs.FilterMessage("trap touched").All()
	require.Len(t, entries, 2, "only inventory paths may alert")

	first := entries[0].ContextMap()
	assert.Equal(t, "creds/.env", first["trap"])
	assert.Equal(t, filepath.Join(root, "creds", ".env"), first["path"])
	assert.Equal(t, string(sensor.OpOpen), first["op"])

	second := entries[1].ContextMap()
	assert.Equal(t, "keys/id_rsa", second["trap"])
	assert.Equal(t, string(sensor.OpModify), second["op"])
}

func TestOrchestratorRunStopsOnCancel(t *testing.T) {
	o := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan sensor.Event)
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, events) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestSetInventoryReplaces(t *testing.T) {
	o := New(Config{})
	o.SetInventory("/srv/traps", []factory.ArtifactInfo{
		{Name: "a", Path: "a"},
		{Name: "b", Path: "b"},
	})
	require.Equal(t, 2, o.Tracked())

	o.SetInventory("/srv/traps", []factory.ArtifactInfo{{Name: "c", Path: "c"}})
	require.Equal(t, 1, o.Tracked())
}

func TestTailValidation(t *testing.T) {
	_, err := Tail(context.Background(), nil, "", "tail", func(Alert) {})
	require.Error(t, err)

	_, err = Tail(context.Background(), nil, "", "tail", nil)
	require.Error(t, err)
}

func TestRunRequiresEvents(t *testing.T) {
	o := New(Config{})
	require.Error(t, o.Run(context.Background(), nil))
}
