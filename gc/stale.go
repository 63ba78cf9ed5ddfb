package gc

import (
	"context"
	"syscall"

	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/persistence"
)

// pidAlive reports whether pid still refers to a live process, by sending
// it signal 0 (no-op, but fails with ESRCH if the process is gone). This is
// the same probe a supervisor script would use before deciding a *_pid
// field is a stale lock (§5's "Resource policies").
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// SweepStalePIDs implements the "supervisor script" behavior described in
// §5 and carried forward as a supplemented feature: at worker startup, any
// capsule left Running with a *_pid that no longer corresponds to a live
// process is reset to Idle and the stale PID cleared. A crash leaves
// exactly this state (§3.3), so this sweep is what makes a crashed task
// recoverable by user re-trigger instead of wedged in Running forever.
func SweepStalePIDs(ctx context.Context, store persistence.Store, requestID string) (int, error) {
	running, err := store.ListRunning(ctx)
	if err != nil {
		return 0, err
	}

	var swept int
	for _, c := range running {
		changed := false

		if c.Produced == model.StatusRunning && !pidAlive(derefPID(c.ProductionPID)) {
			c.Produced = model.StatusIdle
			c.ProductionPID = nil
			changed = true
		}
		if c.Published == model.StatusRunning && !pidAlive(derefPID(c.PublicationPID)) {
			c.Published = model.StatusIdle
			c.PublicationPID = nil
			changed = true
		}
		if c.VideoUploaded == model.StatusRunning && !pidAlive(derefPID(c.VideoUploadedPID)) {
			c.VideoUploaded = model.StatusIdle
			c.VideoUploadedPID = nil
			changed = true
		}

		if !changed {
			continue
		}
		if err := store.SaveCapsule(ctx, c); err != nil {
			log.LogError(requestID, "gc: failed to reset stale capsule", err, "capsule_id", c.ID)
			continue
		}
		metrics.Metrics.GCStalePIDsSwept.Inc()
		log.Log(requestID, "gc: reset stale-PID capsule to idle", "capsule_id", c.ID)
		swept++
	}
	return swept, nil
}

func derefPID(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
