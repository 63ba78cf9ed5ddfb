package gc

import (
	"bytes"
	"context"
	"testing"

	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/storage"
	"github.com/stretchr/testify/require"
)

func fixtureCapsule() *model.Capsule {
	extra := "extra-uuid"
	return &model.Capsule{
		ID: 42,
		Structure: []model.Gos{
			{Slides: []model.Slide{{UUID: "slide-a", Extra: &extra}}},
		},
	}
}

func TestReachableAssets(t *testing.T) {
	reachable := ReachableAssets(42, fixtureCapsule())
	require.Contains(t, reachable, "42/assets/slide-a.webp")
	require.Contains(t, reachable, "42/assets/extra-uuid.mp4")
	require.Len(t, reachable, 2)
}

func TestIsExtensionless(t *testing.T) {
	require.True(t, isExtensionless("42/assets/partial"))
	require.False(t, isExtensionless("42/assets/partial.mp4"))
}

func TestCollectRemovesOrphansButKeepsReachable(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "42/assets/slide-a.webp", bytes.NewReader([]byte("x")), ""))
	require.NoError(t, store.Upload(ctx, "42/assets/orphan.webp", bytes.NewReader([]byte("x")), ""))
	require.NoError(t, store.Upload(ctx, "42/assets/extra-uuid.mp4", bytes.NewReader([]byte("x")), ""))

	require.NoError(t, Collect(ctx, store, "req1", 42, fixtureCapsule(), false))

	objects, err := store.ReadDir(ctx, "42/assets")
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, o := range objects {
		keys[o.Key] = true
	}
	require.True(t, keys["42/assets/slide-a.webp"])
	require.True(t, keys["42/assets/extra-uuid.mp4"])
	require.False(t, keys["42/assets/orphan.webp"])
}

func TestCollectKeepsExtensionlessTempFileDuringVideoUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "42/assets/partial", bytes.NewReader([]byte("x")), ""))

	require.NoError(t, Collect(ctx, store, "req1", 42, fixtureCapsule(), true))

	objects, err := store.ReadDir(ctx, "42/assets")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, "42/assets/partial", objects[0].Key)
}
