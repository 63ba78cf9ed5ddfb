package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	xerrors "github.com/capsulabs/capsule-pipeline/errors"
	"github.com/capsulabs/capsule-pipeline/fanout"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/storage"
	"github.com/capsulabs/capsule-pipeline/subprocess"
)

// PublishCapsule runs the external tool's `publish` subcommand, which
// reads the produced capsule.mp4 and emits an HLS rendition tree, then
// uploads it to {id}/published/ (§4.6.3).
func (o *Orchestrator) PublishCapsule(ctx context.Context, requestID string, capsuleID int64) (err error) {
	defer func(start time.Time) { observeOperation("publish_capsule", start, err) }(time.Now())

	c, err := o.Persistence.GetCapsule(ctx, capsuleID)
	if err != nil {
		return xerrors.NewPersistenceError("get_capsule", err)
	}
	if c.Produced != model.StatusDone {
		return xerrors.ClientInput("capsule has not been produced", nil)
	}
	if c.Published != model.StatusIdle {
		return xerrors.Conflict("capsule is not idle for publication", nil)
	}

	c.Published = model.StatusRunning
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	o.Registry.BroadcastCapsuleChanged(c)

	localRoot := LocalRoot(o.DataPath, capsuleID)
	idStr := fmt.Sprint(capsuleID)
	if err := EnsureLocalRoot(localRoot); err != nil {
		log.LogError(requestID, "publish_capsule: failed to create local working directory", err, "capsule_id", capsuleID)
		return o.finishPublishCapsule(ctx, requestID, c, false)
	}
	if err := Hydrate(ctx, o.Store, o.IsObjectStorage, localRoot, storage.ProducedPrefix(idStr)); err != nil {
		log.LogError(requestID, "publish_capsule: hydration failed", err, "capsule_id", capsuleID)
		return o.finishPublishCapsule(ctx, requestID, c, false)
	}

	publishedDir := filepath.Join(localRoot, "published")
	if err := RemoveLocal(publishedDir); err != nil {
		log.LogError(requestID, "publish_capsule: failed to clear prior local published tree", err, "capsule_id", capsuleID)
		return o.finishPublishCapsule(ctx, requestID, c, false)
	}

	input := filepath.Join(localRoot, "produced", "capsule.mp4")
	output := publishedDir

	stdin, err := subprocess.MarshalStdin(BuildDescriptor(c).Structure)
	if err != nil {
		log.LogError(requestID, "publish_capsule: failed to marshal structure", err, "capsule_id", capsuleID)
		return o.finishPublishCapsule(ctx, requestID, c, false)
	}

	reporter := NewProgressReporter(func(pct float64) {
		o.Registry.Broadcast(c, fanout.CapsulePublicationProgress(capsuleID, pct))
	})

	_, runErr := o.Tool.Publish(ctx, requestID, input, output, idStr, c.PromptSubtitles, stdin,
		func(pid int) {
			c.PublicationPID = &pid
			_ = o.Persistence.SaveCapsule(ctx, c)
		},
		func(line string) {
			if pct, ok := parseProgressLine(line); ok {
				reporter.Report(pct)
			}
		},
	)
	c.PublicationPID = nil

	if runErr != nil {
		log.LogError(requestID, "publish_capsule: external tool failed", runErr, "capsule_id", capsuleID)
		return o.finishPublishCapsule(ctx, requestID, c, false)
	}

	if err := o.Store.UploadDir(ctx, publishedDir, storage.PublishedPrefix(idStr)); err != nil {
		log.LogError(requestID, "publish_capsule: failed to upload published tree", err, "capsule_id", capsuleID)
		return o.finishPublishCapsule(ctx, requestID, c, false)
	}

	if o.IsObjectStorage {
		if err := RemoveLocal(publishedDir); err != nil {
			log.LogError(requestID, "publish_capsule: failed to remove local published tree", err, "capsule_id", capsuleID)
		}
	}

	return o.finishPublishCapsule(ctx, requestID, c, true)
}

func (o *Orchestrator) finishPublishCapsule(ctx context.Context, requestID string, c *model.Capsule, ok bool) error {
	if ok {
		c.Published = model.StatusDone
	} else {
		c.Published = model.StatusIdle
	}
	c.PublicationPID = nil
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		log.LogError(requestID, "publish_capsule: failed to persist final state", err, "capsule_id", c.ID)
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	if ok {
		o.Registry.Broadcast(c, fanout.CapsulePublicationFinished(c.ID))
	}
	o.Registry.BroadcastCapsuleChanged(c)
	return nil
}
