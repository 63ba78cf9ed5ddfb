// Package gc implements the reachable-set garbage collection and
// disk-usage accounting half of the Capsule State Machine & GC
// (component G, §4.7, §6.5).
package gc

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/storage"
)

// ReachableAssets returns the set of asset keys under {id}/assets/ that
// structure still references, per §4.7's enumeration.
func ReachableAssets(capsuleID int64, c *model.Capsule) map[string]struct{} {
	prefix := storage.AssetsPrefix(fmt.Sprint(capsuleID))
	reachable := make(map[string]struct{})
	add := func(uuid, ext string) {
		if uuid == "" {
			return
		}
		reachable[fmt.Sprintf("%s/%s.%s", prefix, uuid, ext)] = struct{}{}
	}

	for _, gos := range c.Structure {
		for _, slide := range gos.Slides {
			add(slide.UUID, "webp")
			if slide.Extra != nil {
				add(*slide.Extra, "mp4")
			}
		}
		if gos.Record != nil {
			add(gos.Record.UUID, "webm")
			add(gos.Record.UUID, "webp")
			if gos.Record.PointerUUID != nil {
				add(*gos.Record.PointerUUID, "webm")
			}
		}
	}
	if c.SoundTrack != nil {
		add(c.SoundTrack.UUID, "m4a")
	}
	return reachable
}

// isExtensionless reports whether key's final path segment has no "."
// after the last "/" — the shape of the transcoder's temp working files
// (§4.7's carve-out).
func isExtensionless(key string) bool {
	base := path.Base(key)
	return !strings.Contains(base, ".")
}

// Collect removes every object under {id}/assets/ not in the reachable
// set, except extension-less temp files while videoUploadedRunning is
// true (the transcoder carve-out). Storage errors are logged and
// swallowed, matching §7's GC error-handling policy.
func Collect(ctx context.Context, store *storage.Store, requestID string, capsuleID int64, c *model.Capsule, videoUploadedRunning bool) error {
	prefix := storage.AssetsPrefix(fmt.Sprint(capsuleID))
	reachable := ReachableAssets(capsuleID, c)

	objects, err := store.ReadDir(ctx, prefix)
	if err != nil {
		log.LogError(requestID, "gc: failed to list assets", err, "capsule_id", capsuleID)
		return nil
	}

	var bytesReclaimed int64
	var removed int
	for _, obj := range objects {
		if _, ok := reachable[obj.Key]; ok {
			continue
		}
		if videoUploadedRunning && isExtensionless(obj.Key) {
			continue
		}
		if err := store.Remove(ctx, obj.Key); err != nil {
			log.LogError(requestID, "gc: failed to remove orphan asset", err, "key", obj.Key)
			continue
		}
		bytesReclaimed += obj.Size
		removed++
	}

	if removed > 0 {
		metrics.Metrics.GCArtifactsRemoved.WithLabelValues(prefix).Add(float64(removed))
		metrics.Metrics.GCBytesReclaimed.Add(float64(bytesReclaimed))
		log.Log(requestID, "gc: removed orphan assets", "capsule_id", capsuleID, "count", removed, "bytes", bytesReclaimed)
	}
	return nil
}

// DiskUsageMB sums the size in megabytes of every object under a capsule's
// three key-space roots, for the offline disk-accounting sweep (§6.5).
func DiskUsageMB(ctx context.Context, store *storage.Store, capsuleID int64) (float64, error) {
	id := fmt.Sprint(capsuleID)
	var totalBytes int64
	for _, prefix := range []string{storage.AssetsPrefix(id), storage.ProducedPrefix(id), storage.PublishedPrefix(id)} {
		objects, err := store.ReadDir(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", prefix, err)
		}
		for _, o := range objects {
			totalBytes += o.Size
		}
	}
	return float64(totalBytes) / (1024 * 1024), nil
}
