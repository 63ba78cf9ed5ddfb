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

// ProduceGos runs a single Gos through the external tool's `produce gos`
// subcommand (§4.6.1).
func (o *Orchestrator) ProduceGos(ctx context.Context, requestID string, capsuleID int64, gosIndex int) (err error) {
	defer func(start time.Time) { observeOperation("produce_gos", start, err) }(time.Now())

	c, err := o.Persistence.GetCapsule(ctx, capsuleID)
	if err != nil {
		return xerrors.NewPersistenceError("get_capsule", err)
	}
	if gosIndex < 0 || gosIndex >= len(c.Structure) {
		return xerrors.ClientInput(fmt.Sprintf("gos index %d out of range", gosIndex), nil)
	}
	if c.Structure[gosIndex].Produced != model.StatusIdle {
		return xerrors.Conflict(fmt.Sprintf("gos %d is not idle", gosIndex), nil)
	}

	c.Structure[gosIndex].Produced = model.StatusRunning
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	o.Registry.BroadcastCapsuleChanged(c)

	localRoot := LocalRoot(o.DataPath, capsuleID)
	if err := EnsureLocalRoot(localRoot); err != nil {
		log.LogError(requestID, "produce_gos: failed to create local working directory", err, "capsule_id", capsuleID)
		return o.finishProduceGos(ctx, requestID, c, gosIndex, false)
	}
	if err := Hydrate(ctx, o.Store, o.IsObjectStorage, localRoot, storage.AssetsPrefix(fmt.Sprint(capsuleID))); err != nil {
		log.LogError(requestID, "produce_gos: hydration failed", err, "capsule_id", capsuleID, "gos_index", gosIndex)
		return o.finishProduceGos(ctx, requestID, c, gosIndex, false)
	}

	descriptor := BuildDescriptor(c)
	stdin, err := subprocess.MarshalStdin(descriptor)
	if err != nil {
		log.LogError(requestID, "produce_gos: failed to marshal descriptor", err, "capsule_id", capsuleID)
		return o.finishProduceGos(ctx, requestID, c, gosIndex, false)
	}

	reporter := NewProgressReporter(func(pct float64) {
		o.Registry.Broadcast(c, fanout.GosProductionProgress(capsuleID, int64(gosIndex), pct))
	})

	_, runErr := o.Tool.ProduceGos(ctx, requestID, localRoot, fmt.Sprint(capsuleID), gosIndex, stdin,
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
		log.LogError(requestID, "produce_gos: external tool failed", runErr, "capsule_id", capsuleID, "gos_index", gosIndex)
		return o.finishProduceGos(ctx, requestID, c, gosIndex, false)
	}

	previousHash := c.Structure[gosIndex].ProducedHash
	hash, err := artifact.RefreshGosHash(c, gosIndex)
	if err != nil {
		log.LogError(requestID, "produce_gos: failed to hash gos", err, "capsule_id", capsuleID, "gos_index", gosIndex)
		return o.finishProduceGos(ctx, requestID, c, gosIndex, false)
	}

	// Skip the upload entirely when the content hash did not change: the
	// artifact already sits at this key (§4.3).
	if previousHash != nil && *previousHash == hash {
		metrics.Metrics.ArtifactHashUnchanged.WithLabelValues("gos").Inc()
	} else {
		key := artifact.ArtifactKeyForGos(capsuleID, hash)
		localPath := filepath.Join(localRoot, "produced", fmt.Sprintf("%d.mp4", gosIndex))
		if err := o.Store.UploadFile(ctx, localPath, key); err != nil {
			log.LogError(requestID, "produce_gos: failed to upload artifact", err, "key", key)
			return o.finishProduceGos(ctx, requestID, c, gosIndex, false)
		}
		if previousHash != nil {
			_ = o.Store.Remove(ctx, artifact.ArtifactKeyForGos(capsuleID, *previousHash))
		}
	}

	return o.finishProduceGos(ctx, requestID, c, gosIndex, true)
}

func (o *Orchestrator) finishProduceGos(ctx context.Context, requestID string, c *model.Capsule, gosIndex int, ok bool) error {
	if ok {
		c.Structure[gosIndex].Produced = model.StatusDone
	} else {
		c.Structure[gosIndex].Produced = model.StatusIdle
	}
	c.ProductionPID = nil
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		log.LogError(requestID, "produce_gos: failed to persist final state", err, "capsule_id", c.ID)
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	if ok {
		o.Registry.Broadcast(c, fanout.GosProductionFinished(c.ID, int64(gosIndex)))
	}
	o.Registry.BroadcastCapsuleChanged(c)
	return nil
}
