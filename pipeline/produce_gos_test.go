package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/stretchr/testify/require"
)

func fixtureCapsuleWithOneGos() *model.Capsule {
	return &model.Capsule{
		ID: 42,
		Structure: []model.Gos{
			{Produced: model.StatusIdle, Slides: []model.Slide{{UUID: "slide-1"}}},
		},
		Participants: map[string]model.Role{"alice": model.RoleOwner},
	}
}

func TestProduceGosUploadsArtifactAndMarksDone(t *testing.T) {
	script := writeFakeTool(t, "mkdir -p produced && echo fakemp4 > produced/0.mp4")
	c := fixtureCapsuleWithOneGos()
	o, ps := newTestOrchestrator(t, c, script)

	err := o.ProduceGos(context.Background(), "req1", 42, 0)
	require.NoError(t, err)

	saved, err := ps.GetCapsule(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, saved.Structure[0].Produced)
	require.NotNil(t, saved.Structure[0].ProducedHash)
	require.Nil(t, saved.ProductionPID)

	key := "42/produced/" + *saved.Structure[0].ProducedHash + ".mp4"
	rc, err := o.Store.Download(context.Background(), key)
	require.NoError(t, err)
	rc.Close()
}

func TestProduceGosRejectsNonIdleGos(t *testing.T) {
	script := writeFakeTool(t, "true")
	c := fixtureCapsuleWithOneGos()
	c.Structure[0].Produced = model.StatusRunning
	o, _ := newTestOrchestrator(t, c, script)

	err := o.ProduceGos(context.Background(), "req1", 42, 0)
	require.Error(t, err)
}

func TestProduceGosFailsGosIndexOutOfRange(t *testing.T) {
	script := writeFakeTool(t, "true")
	c := fixtureCapsuleWithOneGos()
	o, _ := newTestOrchestrator(t, c, script)

	err := o.ProduceGos(context.Background(), "req1", 42, 5)
	require.Error(t, err)
}

func TestProduceGosRevertsToIdleOnToolFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail.sh")
	require.NoError(t, writeExecutableScript(script, "#!/bin/sh\ncat >/dev/null\nexit 1\n"))

	c := fixtureCapsuleWithOneGos()
	o, ps := newTestOrchestrator(t, c, script)

	err := o.ProduceGos(context.Background(), "req1", 42, 0)
	require.NoError(t, err) // failure is recovered locally, not propagated

	saved, err := ps.GetCapsule(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, model.StatusIdle, saved.Structure[0].Produced)
}
