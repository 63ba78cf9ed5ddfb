package storage

import "fmt"

// AssetsPrefix, ProducedPrefix and PublishedPrefix are the three key-space
// roots every capsule key falls under (§4's "key space is strictly
// {capsule_id}/{assets|produced|published}/…").
func AssetsPrefix(capsuleID string) string    { return fmt.Sprintf("%s/assets", capsuleID) }
func ProducedPrefix(capsuleID string) string  { return fmt.Sprintf("%s/produced", capsuleID) }
func PublishedPrefix(capsuleID string) string { return fmt.Sprintf("%s/published", capsuleID) }

// ArtifactKeyForGos is the upload key for a single Gos's produced MP4,
// keyed by its content hash (§4.3).
func ArtifactKeyForGos(capsuleID, hash string) string {
	return fmt.Sprintf("%s/produced/%s.mp4", capsuleID, hash)
}

// ArtifactKeyForCapsule is the upload key for the concatenated capsule MP4.
func ArtifactKeyForCapsule(capsuleID string) string {
	return fmt.Sprintf("%s/produced/capsule.mp4", capsuleID)
}
