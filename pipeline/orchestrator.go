package pipeline

import (
	"strconv"
	"time"

	"github.com/capsulabs/capsule-pipeline/fanout"
	"github.com/capsulabs/capsule-pipeline/metrics"
	"github.com/capsulabs/capsule-pipeline/persistence"
	"github.com/capsulabs/capsule-pipeline/storage"
)

// Orchestrator holds the dependencies every pipeline operation needs: the
// object store, the persistence layer, the notification fan-out and the
// external tool wrapper. One Orchestrator is constructed at startup; of its
// four operations, ProduceGos, ProduceCapsule and PublishCapsule are what
// taskrunner.Executor and the worker dispatch into, while TranscodeExtra is
// triggered outside the task queue (§4.6). Registry is a fanout.Notifier so the same orchestrator code runs
// unchanged whether notifications fan out locally or through the broker
// exchange (§4.4).
type Orchestrator struct {
	Store           *storage.Store
	Persistence     persistence.Store
	Registry        fanout.Notifier
	Tool            *ExternalTool
	DataPath        string
	IsObjectStorage bool
}

func NewOrchestrator(store *storage.Store, persist persistence.Store, registry fanout.Notifier, tool *ExternalTool, dataPath string, isObjectStorage bool) *Orchestrator {
	return &Orchestrator{
		Store:           store,
		Persistence:     persist,
		Registry:        registry,
		Tool:            tool,
		DataPath:        dataPath,
		IsObjectStorage: isObjectStorage,
	}
}

// observeOperation records count and duration for one of the four
// task-envelope operations, labelled by outcome, mirroring the teacher's
// per-handler metrics.Pipeline instrumentation. Call via defer with err
// bound by a named return.
func observeOperation(operation string, start time.Time, err error) {
	success := strconv.FormatBool(err == nil)
	metrics.Metrics.Pipeline.Count.WithLabelValues(operation, success).Inc()
	metrics.Metrics.Pipeline.Duration.WithLabelValues(operation, success).Observe(time.Since(start).Seconds())
}
