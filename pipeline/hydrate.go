package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/capsulabs/capsule-pipeline/storage"
)

// LocalRoot is the working directory an orchestrator hydrates a capsule
// into: {data_path}/{capsule_id}/ (§4.6).
func LocalRoot(dataPath string, capsuleID int64) string {
	return filepath.Join(dataPath, fmt.Sprint(capsuleID))
}

// Hydrate downloads every object storage key under the given prefixes
// into their equivalent path under localRoot, for object-storage
// deployments only — the shared preamble described in §4.6. isObjectStorage
// distinguishes a disk-backed store (where the data is already local and
// no hydration is necessary) from an S3-backed one.
func Hydrate(ctx context.Context, store *storage.Store, isObjectStorage bool, localRoot string, prefixes ...string) error {
	if !isObjectStorage {
		return nil
	}
	for _, prefix := range prefixes {
		objects, err := store.ReadDir(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to hydrate %s: %w", prefix, err)
		}
		for _, obj := range objects {
			if err := hydrateOne(ctx, store, localRoot, obj.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

func hydrateOne(ctx context.Context, store *storage.Store, localRoot, key string) error {
	rc, err := store.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to hydrate %s: %w", key, err)
	}
	defer rc.Close()

	dest := filepath.Join(localRoot, stripCapsulePrefix(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write local file %s: %w", dest, err)
	}
	return nil
}

// stripCapsulePrefix removes the leading "{capsule_id}/" segment from a
// storage key so it lands at the right relative path under localRoot
// (which is already rooted at {data_path}/{capsule_id}).
func stripCapsulePrefix(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// EnsureLocalRoot creates localRoot if it does not already exist, which
// Hydrate itself only guarantees for the files it downloads — a disk
// backend never hydrates anything, so the working directory must be
// created up front instead (§4.6).
func EnsureLocalRoot(localRoot string) error {
	return os.MkdirAll(localRoot, 0o755)
}

// RemoveLocal recursively removes the local working directory, per the
// "remove the local tree after upload" step at the end of every
// object-storage orchestrator path (§4.6).
func RemoveLocal(localRoot string) error {
	return os.RemoveAll(localRoot)
}
