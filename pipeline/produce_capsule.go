package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/capsulabs/capsule-pipeline/artifact"
	xerrors "github.com/capsulabs/capsule-pipeline/errors"
	"github.com/capsulabs/capsule-pipeline/fanout"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/storage"
	"github.com/capsulabs/capsule-pipeline/subprocess"
)

// ProduceCapsule runs the whole capsule through the external tool's
// `produce capsule` subcommand, concatenating every Gos into the final
// capsule.mp4 and probing its duration (§4.6.2).
func (o *Orchestrator) ProduceCapsule(ctx context.Context, requestID string, capsuleID int64) (err error) {
	defer func(start time.Time) { observeOperation("produce_capsule", start, err) }(time.Now())

	c, err := o.Persistence.GetCapsule(ctx, capsuleID)
	if err != nil {
		return xerrors.NewPersistenceError("get_capsule", err)
	}
	if c.Produced != model.StatusIdle {
		return xerrors.Conflict("capsule is not idle", nil)
	}

	c.Produced = model.StatusRunning
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	o.Registry.BroadcastCapsuleChanged(c)

	localRoot := LocalRoot(o.DataPath, capsuleID)
	idStr := fmt.Sprint(capsuleID)
	if err := EnsureLocalRoot(localRoot); err != nil {
		log.LogError(requestID, "produce_capsule: failed to create local working directory", err, "capsule_id", capsuleID)
		return o.finishProduceCapsule(ctx, requestID, c, false)
	}
	if err := Hydrate(ctx, o.Store, o.IsObjectStorage, localRoot,
		storage.AssetsPrefix(idStr), storage.ProducedPrefix(idStr)); err != nil {
		log.LogError(requestID, "produce_capsule: hydration failed", err, "capsule_id", capsuleID)
		return o.finishProduceCapsule(ctx, requestID, c, false)
	}

	descriptor := BuildDescriptor(c)
	stdin, err := subprocess.MarshalStdin(descriptor)
	if err != nil {
		log.LogError(requestID, "produce_capsule: failed to marshal descriptor", err, "capsule_id", capsuleID)
		return o.finishProduceCapsule(ctx, requestID, c, false)
	}

	reporter := NewProgressReporter(func(pct float64) {
		o.Registry.Broadcast(c, fanout.CapsuleProductionProgress(capsuleID, pct))
	})

	_, runErr := o.Tool.ProduceCapsule(ctx, requestID, localRoot, idStr, stdin,
		func(pid int) {
			c.ProductionPID = &pid
			_ = o.Persistence.SaveCapsule(ctx, c)
		},
		func(line string) {
			if pct, ok := parseProgressLine(line); ok {
				reporter.Report(pct)
			}
		},
	)
	c.ProductionPID = nil

	if runErr != nil {
		log.LogError(requestID, "produce_capsule: external tool failed", runErr, "capsule_id", capsuleID)
		return o.finishProduceCapsule(ctx, requestID, c, false)
	}

	for i := range c.Structure {
		previousHash := c.Structure[i].ProducedHash
		hash, err := artifact.RefreshGosHash(c, i)
		if err != nil {
			log.LogError(requestID, "produce_capsule: failed to hash gos", err, "capsule_id", capsuleID, "gos_index", i)
			return o.finishProduceCapsule(ctx, requestID, c, false)
		}
		if previousHash != nil && *previousHash == hash {
			metrics.Metrics.ArtifactHashUnchanged.WithLabelValues("capsule").Inc()
		} else {
			key := artifact.ArtifactKeyForGos(capsuleID, hash)
			localPath := filepath.Join(localRoot, "produced", fmt.Sprintf("%d.mp4", i))
			if err := o.Store.UploadFile(ctx, localPath, key); err != nil {
				log.LogError(requestID, "produce_capsule: failed to upload gos artifact", err, "key", key)
				return o.finishProduceCapsule(ctx, requestID, c, false)
			}
			if previousHash != nil {
				_ = o.Store.Remove(ctx, artifact.ArtifactKeyForGos(capsuleID, *previousHash))
			}
		}
		c.Structure[i].Produced = model.StatusDone
	}

	capsulePath := filepath.Join(localRoot, "produced", "capsule.mp4")
	capsuleKey := artifact.ArtifactKeyForCapsule(capsuleID)
	if err := o.Store.UploadFile(ctx, capsulePath, capsuleKey); err != nil {
		log.LogError(requestID, "produce_capsule: failed to upload concatenated capsule", err, "key", capsuleKey)
		return o.finishProduceCapsule(ctx, requestID, c, false)
	}

	if _, err := artifact.RefreshHash(c); err != nil {
		log.LogError(requestID, "produce_capsule: failed to hash capsule", err, "capsule_id", capsuleID)
		return o.finishProduceCapsule(ctx, requestID, c, false)
	}

	durationMs, err := o.probeCapsuleDuration(ctx, requestID, capsulePath)
	if err != nil {
		log.LogError(requestID, "produce_capsule: duration probe failed", err, "capsule_id", capsuleID)
	} else {
		c.DurationMs = &durationMs
	}

	if o.IsObjectStorage {
		if err := RemoveLocal(localRoot); err != nil {
			log.LogError(requestID, "produce_capsule: failed to remove local working tree", err, "capsule_id", capsuleID)
		}
	}

	return o.finishProduceCapsule(ctx, requestID, c, true)
}

// probeCapsuleDuration runs the external tool's duration probe and, best
// effort, cross-checks it against ffprobe directly (§4.6.2). Either result
// is acceptable; the external tool's own measurement is authoritative.
func (o *Orchestrator) probeCapsuleDuration(ctx context.Context, requestID, path string) (int64, error) {
	durationMs, err := ProbeDuration(ctx, o.Tool.runner, requestID, path)
	if err != nil {
		return 0, err
	}
	if fallbackMs, fbErr := ProbeDurationFallback(ctx, path); fbErr == nil {
		log.Log(requestID, "produce_capsule: duration cross-check", "tool_ms", durationMs, "ffprobe_ms", fallbackMs)
	}
	return durationMs, nil
}

func (o *Orchestrator) finishProduceCapsule(ctx context.Context, requestID string, c *model.Capsule, ok bool) error {
	if ok {
		c.Produced = model.StatusDone
	} else {
		c.Produced = model.StatusIdle
	}
	c.ProductionPID = nil
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		log.LogError(requestID, "produce_capsule: failed to persist final state", err, "capsule_id", c.ID)
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	if ok {
		o.Registry.Broadcast(c, fanout.CapsuleProductionFinished(c.ID))
	}
	o.Registry.BroadcastCapsuleChanged(c)
	return nil
}
