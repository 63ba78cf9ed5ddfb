package manifest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/capsulabs/capsule-pipeline/storage"
	"github.com/stretchr/testify/require"
)

func TestMasterManifestNamesThreeRungs(t *testing.T) {
	m := MasterManifest()
	require.Contains(t, m, "360p.m3u8")
	require.Contains(t, m, "480p.m3u8")
	require.Contains(t, m, "720p.m3u8")
	require.Contains(t, m, "BANDWIDTH=800000")
	require.Contains(t, m, "BANDWIDTH=1400000")
	require.Contains(t, m, "BANDWIDTH=2800000")
}

const sampleRungManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10.0,
seg-0.ts
#EXTINF:10.0,
seg-1.ts
#EXT-X-ENDLIST
`

func TestRewriteRungManifestPresignsNonCommentLines(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "42/published/seg-0.ts", strings.NewReader("x"), ""))
	require.NoError(t, store.Upload(ctx, "42/published/seg-1.ts", strings.NewReader("x"), ""))

	rewritten, err := RewriteRungManifest(store, "42", "360p", strings.NewReader(sampleRungManifest), time.Hour)
	require.NoError(t, err)
	require.NotContains(t, rewritten, "seg-0.ts\n")
	require.Contains(t, rewritten, "#EXT-X-ENDLIST")
}
