// Package artifact implements the Content-Addressed Artifact Store
// (component C): deterministic hashing of Gos and capsule descriptors, and
// the key-space helpers used by the pipeline orchestrators to decide when
// a re-upload is necessary (§4.3).
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/storage"
)

// Descriptor is the canonical, normalized representation of a capsule's
// structure and soundtrack: it is both the external tool's stdin payload
// for the produce subcommands (§6.2) and the shape hashed for
// content addressing (§4.3, §8). Using one struct for both roles is what
// keeps a Gos's or a capsule's hash the same regardless of which path
// produced it.
type Descriptor struct {
	Structure    []model.Gos       `json:"structure"`
	SoundTrack   *model.SoundTrack `json:"soundtrack"`
	ProducedHash *string           `json:"produced_hash"`
}

// BuildDescriptor folds the capsule-level default webcam settings into any
// Gos that lacks its own, and forces every Gos's produced status to Idle:
// run state is not content, and must not affect what the external tool
// sees or what gets hashed (§6.2, §8).
func BuildDescriptor(c *model.Capsule) Descriptor {
	structure := make([]model.Gos, len(c.Structure))
	for i, gos := range c.Structure {
		g := gos
		if g.WebcamSettings == nil {
			settings := c.WebcamSettings
			g.WebcamSettings = &settings
		}
		g.Produced = model.StatusIdle
		structure[i] = g
	}
	return Descriptor{
		Structure:    structure,
		SoundTrack:   c.SoundTrack,
		ProducedHash: nil,
	}
}

// hashJSON hashes the canonical JSON serialization of v: lowercase hex
// SHA-256 of its UTF-8 bytes.
func hashJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical representation: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// RefreshGosHash recomputes Gos i's hash and stores it back onto the
// capsule's structure, returning the new hash. It hashes the
// descriptor-normalized form of the Gos — produced status forced to Idle,
// its own produced_hash elided — rather than the live c.Structure[i].
// Without that normalization, the same Gos content hashes differently
// depending on path: Running when produced standalone via ProduceGos,
// Idle or Done when produced as part of a full capsule via ProduceCapsule,
// which would upload the same content under different keys and defeat the
// dedup this component exists for (§4.3, §8).
func RefreshGosHash(c *model.Capsule, i int) (string, error) {
	if i < 0 || i >= len(c.Structure) {
		return "", fmt.Errorf("gos index %d out of range (len=%d)", i, len(c.Structure))
	}
	g := BuildDescriptor(c).Structure[i]
	g.ProducedHash = nil
	hash, err := hashJSON(g)
	if err != nil {
		return "", err
	}
	c.Structure[i].ProducedHash = &hash
	return hash, nil
}

// RefreshHash recomputes the capsule-level hash, assuming every Gos hash
// has already been refreshed via RefreshGosHash, and stores it onto the
// capsule. It hashes the capsule's own Descriptor — {structure, soundtrack,
// produced_hash: null} — the same struct RefreshGosHash and the external
// tool's stdin payload use, rather than a second, divergent shape. Each
// Gos's own produced_hash is carried through as already computed, chaining
// content addressing from Gos up to capsule; only the capsule-level
// produced_hash is forced null, and produced status is normalized to Idle
// by BuildDescriptor (§3.2, §8).
func RefreshHash(c *model.Capsule) (string, error) {
	hash, err := hashJSON(BuildDescriptor(c))
	if err != nil {
		return "", err
	}
	c.ProducedHash = &hash
	return hash, nil
}

// ArtifactKeyForGos is the storage key for a single Gos's produced MP4.
func ArtifactKeyForGos(capsuleID int64, hash string) string {
	return storage.ArtifactKeyForGos(fmt.Sprint(capsuleID), hash)
}

// ArtifactKeyForCapsule is the storage key for the concatenated capsule MP4.
func ArtifactKeyForCapsule(capsuleID int64) string {
	return storage.ArtifactKeyForCapsule(fmt.Sprint(capsuleID))
}
