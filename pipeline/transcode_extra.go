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

	"github.com/google/uuid"
)

// TranscodeExtra converts a newly-uploaded "extra" video attached to a
// slide and, on success, atomically swaps the slide's extra UUID to point
// at the converted asset (§4.6.4). Unlike the three Task-envelope
// operations, this runs outside the task queue, triggered directly by the
// upload endpoint (out of scope here).
func (o *Orchestrator) TranscodeExtra(ctx context.Context, requestID string, capsuleID int64, gosIndex, slideIndex int, uploadedLocalPath string) (err error) {
	defer func(start time.Time) { observeOperation("transcode_extra", start, err) }(time.Now())

	c, err := o.Persistence.GetCapsule(ctx, capsuleID)
	if err != nil {
		return xerrors.NewPersistenceError("get_capsule", err)
	}
	if gosIndex < 0 || gosIndex >= len(c.Structure) {
		return xerrors.ClientInput(fmt.Sprintf("gos index %d out of range", gosIndex), nil)
	}
	slides := c.Structure[gosIndex].Slides
	if slideIndex < 0 || slideIndex >= len(slides) {
		return xerrors.ClientInput(fmt.Sprintf("slide index %d out of range", slideIndex), nil)
	}
	if c.VideoUploaded == model.StatusRunning {
		return xerrors.Conflict("a video upload is already in progress for this capsule", nil)
	}

	c.VideoUploaded = model.StatusRunning
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	o.Registry.BroadcastCapsuleChanged(c)

	outputUUID := uuid.NewString()
	localRoot := LocalRoot(o.DataPath, capsuleID)
	if err := EnsureLocalRoot(filepath.Join(localRoot, "assets")); err != nil {
		log.LogError(requestID, "transcode_extra: failed to create local working directory", err, "capsule_id", capsuleID)
		return o.finishTranscodeExtra(ctx, requestID, c, gosIndex, slideIndex, "", false)
	}
	outputPath := filepath.Join(localRoot, "assets", outputUUID+".mp4")

	reporter := NewProgressReporter(func(pct float64) {
		o.Registry.Broadcast(c, fanout.VideoUploadProgress(capsuleID, int64(slideIndex), pct))
	})

	_, runErr := o.Tool.ConvertVideo(ctx, requestID, uploadedLocalPath, outputPath,
		func(pid int) {
			c.VideoUploadedPID = &pid
			_ = o.Persistence.SaveCapsule(ctx, c)
		},
		func(line string) {
			if pct, ok := parseProgressLine(line); ok {
				reporter.Report(pct)
			}
		},
	)
	c.VideoUploadedPID = nil

	if runErr != nil {
		log.LogError(requestID, "transcode_extra: external tool failed", runErr, "capsule_id", capsuleID, "gos_index", gosIndex, "slide_index", slideIndex)
		return o.finishTranscodeExtra(ctx, requestID, c, gosIndex, slideIndex, "", false)
	}

	key := fmt.Sprintf("%s/%s.mp4", storage.AssetsPrefix(fmt.Sprint(capsuleID)), outputUUID)
	if err := o.Store.UploadFile(ctx, outputPath, key); err != nil {
		log.LogError(requestID, "transcode_extra: failed to upload converted asset", err, "key", key)
		return o.finishTranscodeExtra(ctx, requestID, c, gosIndex, slideIndex, "", false)
	}

	if o.IsObjectStorage {
		_ = RemoveLocal(outputPath)
	}

	return o.finishTranscodeExtra(ctx, requestID, c, gosIndex, slideIndex, outputUUID, true)
}

func (o *Orchestrator) finishTranscodeExtra(ctx context.Context, requestID string, c *model.Capsule, gosIndex, slideIndex int, newExtraUUID string, ok bool) error {
	if ok {
		c.Structure[gosIndex].Slides[slideIndex].Extra = &newExtraUUID
		c.VideoUploaded = model.StatusDone
	} else {
		c.VideoUploaded = model.StatusIdle
	}
	c.VideoUploadedPID = nil
	if err := o.Persistence.SaveCapsule(ctx, c); err != nil {
		log.LogError(requestID, "transcode_extra: failed to persist final state", err, "capsule_id", c.ID)
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	if ok {
		o.Registry.Broadcast(c, fanout.VideoUploadFinished(c.ID, int64(slideIndex)))
	}
	o.Registry.BroadcastCapsuleChanged(c)
	return nil
}
