// Package pipeline implements the Pipeline Orchestrators (component F):
// produce_gos, produce_capsule, publish_capsule and transcode_extra, the
// object-storage hydration preamble they share, and the external-tool
// input descriptor they build (§4.6, §6.2).
package pipeline

import "github.com/capsulabs/capsule-pipeline/artifact"

// Descriptor is the JSON payload piped to the external tool's stdin for
// the produce subcommands (§6.2); publish receives only its Structure. It
// is artifact.Descriptor, the
// same normalized shape component C hashes for content addressing (§4.3,
// §8) — one definition, so the external tool and the dedup logic can never
// disagree about what "the same content" means.
type Descriptor = artifact.Descriptor

// BuildDescriptor folds the capsule-level default webcam settings into any
// Gos that lacks its own, and forces every Gos's produced status to Idle,
// since the external tool does not read status (§6.2).
var BuildDescriptor = artifact.BuildDescriptor
