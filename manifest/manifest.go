// Package manifest implements the HLS manifest surface (§4.6, §6.6): a
// fixed top-level master manifest naming three rungs, and a presigning
// rewrite of rung manifests for object-storage deployments, grounded on
// the teacher's playback manifest rewrite idiom.
package manifest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/capsulabs/capsule-pipeline/storage"
	"github.com/grafov/m3u8"
)

// rung describes one of the three fixed HLS renditions (§6.6).
type rung struct {
	name       string
	bandwidth  uint32
	width      uint32
	height     uint32
}

var rungs = []rung{
	{name: "360p", bandwidth: 800000, width: 640, height: 360},
	{name: "480p", bandwidth: 1400000, width: 842, height: 480},
	{name: "720p", bandwidth: 2800000, width: 1280, height: 720},
}

// MasterManifest is the fixed literal top-level manifest naming the three
// rungs (§6.6); it never needs rewriting because it contains no segment
// references, only rung URIs relative to the capsule's published prefix.
func MasterManifest() string {
	pl := m3u8.NewMasterPlaylist()
	for _, r := range rungs {
		pl.Append(r.name+".m3u8", &m3u8.MediaPlaylist{}, m3u8.VariantParams{
			Bandwidth:  r.bandwidth,
			Resolution: fmt.Sprintf("%dx%d", r.width, r.height),
		})
	}
	return pl.String()
}

// RewriteRungManifest rewrites every non-comment line in a rung manifest
// to a presigned URL for its referenced segment, for object-storage
// deployments (§6.6). Disk-backed deployments serve the manifest
// unmodified, since storage.Store's disk Presign already returns
// server-relative URLs without needing per-line rewriting here.
func RewriteRungManifest(store *storage.Store, capsuleID string, rungName string, r io.Reader, ttl time.Duration) (string, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return "", fmt.Errorf("failed to decode rung manifest: %w", err)
	}
	if listType != m3u8.MEDIA {
		return "", fmt.Errorf("rung manifest %s is not a media playlist", rungName)
	}
	media := playlist.(*m3u8.MediaPlaylist)

	for _, segment := range media.Segments {
		if segment == nil {
			continue
		}
		if strings.HasPrefix(segment.URI, "#") {
			continue
		}
		key := fmt.Sprintf("%s/published/%s", capsuleID, segment.URI)
		signed, err := store.Presign(key, ttl)
		if err != nil {
			return "", fmt.Errorf("failed to presign segment %s: %w", segment.URI, err)
		}
		segment.URI = signed
	}
	return media.String(), nil
}
