// Package taskrunner implements the Task Descriptor & Runner (component E):
// a Task envelope dispatched either to an in-process cooperative worker
// pool (inline backend) or published onto a broker queue for a
// priority-scheduled worker pool to consume (broker backend), per §4.5.
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/capsulabs/capsule-pipeline/config"
	"github.com/capsulabs/capsule-pipeline/errors"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"
	"github.com/capsulabs/capsule-pipeline/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"
)

// Executor runs a single Task to completion. Pipeline orchestrators
// (component F) implement this; the runner is agnostic to what a Task
// actually does.
type Executor func(ctx context.Context, requestID string, task model.Task) error

// Runner is the capability every call site triggers tasks through,
// regardless of which backend is configured.
type Runner interface {
	Trigger(ctx context.Context, requestID string, task model.Task) error
}

// Priority implements §4.5's dynamic priority formula:
// priority = floor(8192 * cpus / 2^current_tasks) - current_tasks.
func Priority(cpus, currentTasks int) int {
	if cpus <= 0 {
		cpus = 1
	}
	p := float64(8192*cpus) / math.Pow(2, float64(currentTasks))
	return int(math.Floor(p)) - currentTasks
}

// InlineRunner spawns a goroutine per trigger, bounded by a process-wide
// counting semaphore (§5's "only backpressure in local mode").
type InlineRunner struct {
	sem      *semaphore.Weighted
	executor Executor
}

func NewInlineRunner(maxConcurrent int64, executor Executor) *InlineRunner {
	if maxConcurrent <= 0 {
		maxConcurrent = int64(config.MaxConcurrentSubprocessTasks)
	}
	return &InlineRunner{sem: semaphore.NewWeighted(maxConcurrent), executor: executor}
}

// Trigger acquires a semaphore slot and runs the task in a new goroutine,
// returning as soon as it has been scheduled (not when it completes).
func (r *InlineRunner) Trigger(ctx context.Context, requestID string, task model.Task) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return errors.NewBrokerTransientError(fmt.Errorf("failed to acquire task slot: %w", err))
	}
	metrics.Metrics.JobsInFlight.Inc()
	go func() {
		defer r.sem.Release(1)
		defer metrics.Metrics.JobsInFlight.Dec()
		if err := r.executor(context.Background(), requestID, task); err != nil {
			log.LogError(requestID, "inline task failed", err, "task", task.String())
		}
	}()
	return nil
}

// BrokerRunner publishes Tasks onto the broker `tasks` queue for a
// priority-scheduled worker pool to consume (§4.5).
type BrokerRunner struct {
	ch *amqp.Channel
}

func NewBrokerRunner(ch *amqp.Channel) (*BrokerRunner, error) {
	if _, err := ch.QueueDeclare(config.TasksQueueName, false, false, false, false,
		amqp.Table{"x-max-priority": maxPriorityArg}); err != nil {
		return nil, fmt.Errorf("failed to declare %s queue: %w", config.TasksQueueName, err)
	}
	return &BrokerRunner{ch: ch}, nil
}

// maxPriorityArg bounds the queue's priority range; RabbitMQ recommends
// keeping this small (values above ~10 add no scheduling benefit and cost
// more memory per priority level).
const maxPriorityArg = 10

func (r *BrokerRunner) Trigger(ctx context.Context, requestID string, task model.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.String(), err)
	}
	start := time.Now()
	err = r.ch.PublishWithContext(ctx, "", config.TasksQueueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		metrics.Metrics.BrokerClient.FailureCount.WithLabelValues("publish").Inc()
		return errors.NewBrokerTransientError(fmt.Errorf("failed to publish task %s: %w", task.String(), err))
	}
	metrics.Metrics.BrokerClient.RequestDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())
	log.Log(requestID, "enqueued task", "task", task.String())
	return nil
}
