package metrics

import (
	"github.com/capsulabs/capsule-pipeline/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics is reused across every outbound client (object storage,
// broker) that retries with backoff.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// PipelineMetrics tracks the four pipeline orchestrators of component F.
type PipelineMetrics struct {
	Count    *prometheus.CounterVec
	Duration *prometheus.SummaryVec
}

type CapsulePipelineMetrics struct {
	Version *prometheus.CounterVec

	JobsInFlight     prometheus.Gauge
	WorkerRunning    prometheus.Gauge
	ConsumerPriority prometheus.Gauge

	NotifySocketsOpen     prometheus.Gauge
	NotifyMessagesSent    *prometheus.CounterVec
	NotifyMessagesDropped *prometheus.CounterVec
	GCArtifactsRemoved    *prometheus.CounterVec
	GCBytesReclaimed      prometheus.Counter
	GCStalePIDsSwept      prometheus.Counter
	ArtifactHashUnchanged *prometheus.CounterVec

	ObjectStoreClient ClientMetrics
	BrokerClient      ClientMetrics

	Pipeline PipelineMetrics
}

var pipelineLabels = []string{"operation", "success"}

func NewMetrics() *CapsulePipelineMetrics {
	m := &CapsulePipelineMetrics{
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current Git SHA / Tag that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Count of pipeline tasks currently executing on this instance",
		}),
		WorkerRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_running",
			Help: "1 while the worker is accepting new tasks, 0 while draining",
		}),
		ConsumerPriority: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "consumer_priority",
			Help: "Current AMQP consumer priority computed from the dynamic priority formula",
		}),

		NotifySocketsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "notify_sockets_open",
			Help: "Count of open websocket connections in the local fan-out registry",
		}),
		NotifyMessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_messages_sent_total",
			Help: "Number of notification messages successfully written to a socket",
		}, []string{"type"}),
		NotifyMessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_messages_dropped_total",
			Help: "Number of notification messages dropped because the socket was dead",
		}, []string{"type"}),
		GCArtifactsRemoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_artifacts_removed_total",
			Help: "Number of orphaned storage objects removed by garbage collection",
		}, []string{"prefix"}),
		GCBytesReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gc_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by garbage collection",
		}),
		GCStalePIDsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gc_stale_pids_swept_total",
			Help: "Number of capsules reset from Running to Idle at worker startup because their recorded PID was dead",
		}),
		ArtifactHashUnchanged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artifact_hash_unchanged_total",
			Help: "Number of productions whose content hash matched the prior hash, skipping re-upload",
		}, []string{"scope"}),

		ObjectStoreClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "object_store_retry_count",
				Help: "The number of retried object store requests",
			}, []string{"host", "operation", "bucket"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "object_store_failure_count",
				Help: "The total number of failed object store requests",
			}, []string{"host", "operation", "bucket"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "object_store_request_duration_seconds",
				Help:    "Time taken to send object store requests",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"host", "operation", "bucket"}),
		},

		BrokerClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "broker_retry_count",
				Help: "The number of retried broker publish/consume operations",
			}, []string{"operation"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_failure_count",
				Help: "The total number of failed broker operations",
			}, []string{"operation"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "broker_operation_duration_seconds",
				Help:    "Time taken for broker publish/consume operations",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"operation"}),
		},

		Pipeline: PipelineMetrics{
			Count: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_operation_count",
				Help: "Number of completed pipeline operations, by operation and outcome",
			}, pipelineLabels),
			Duration: promauto.NewSummaryVec(prometheus.SummaryOpts{
				Name: "pipeline_operation_duration_seconds",
				Help: "Time taken for a pipeline operation to complete",
			}, pipelineLabels),
		},
	}

	m.Version.WithLabelValues("capsule-pipeline", config.Version).Inc()

	return m
}

var Metrics = NewMetrics()
