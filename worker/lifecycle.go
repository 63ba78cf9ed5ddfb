// Package worker implements the Worker Lifecycle (component H): a
// CPU-aware dynamic consumer priority and signal-driven graceful drain
// over the broker `tasks` queue (§4.8).
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/capsulabs/capsule-pipeline/config"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/taskrunner"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shirou/gopsutil/v3/cpu"
)

// NodeState tracks the values the dynamic priority formula depends on and
// whether the worker is still willing to accept new deliveries (§4.8).
type NodeState struct {
	mu           sync.Mutex
	cpus         int
	runningTasks int
	acceptTasks  bool
	consumerTag  string
}

func newNodeState() (*NodeState, error) {
	cpus, err := cpu.Counts(true)
	if err != nil || cpus <= 0 {
		cpus = 1
	}
	return &NodeState{cpus: cpus, acceptTasks: true}, nil
}

// Worker drains the broker `tasks` queue, applying the priority formula on
// every change to running_tasks and draining gracefully on termination
// signals.
type Worker struct {
	ch       *amqp.Channel
	executor taskrunner.Executor
	state    *NodeState
	drained  chan struct{}
}

func NewWorker(ch *amqp.Channel, executor taskrunner.Executor) (*Worker, error) {
	state, err := newNodeState()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(config.TasksQueueName, false, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare %s queue: %w", config.TasksQueueName, err)
	}
	if err := ch.Qos(config.DefaultConsumerPrefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	return &Worker{ch: ch, executor: executor, state: state, drained: make(chan struct{})}, nil
}

// Run declares the initial consumer and blocks until ctx is cancelled or a
// termination signal is received and every in-flight task has completed.
func (w *Worker) Run(ctx context.Context) error {
	metrics.Metrics.WorkerRunning.Set(1)
	defer metrics.Metrics.WorkerRunning.Set(0)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	deliveries, err := w.recreateConsumer()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return w.drain()
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.LogNoRequestID("received SIGHUP, continuing to consume")
				continue
			default:
				log.LogNoRequestID("received termination signal, draining", "signal", sig.String())
				return w.drain()
			}
		case d, ok := <-deliveries:
			if !ok {
				// Consumer was cancelled to be recreated with a new
				// priority; pick up the fresh delivery channel.
				deliveries, err = w.currentDeliveries()
				if err != nil {
					return err
				}
				continue
			}
			w.handleDelivery(ctx, d)
		}
	}
}

// currentDeliveries re-subscribes using the consumer tag already set by
// the last recreateConsumer call; used after a cancellation we triggered
// ourselves mid-loop.
func (w *Worker) currentDeliveries() (<-chan amqp.Delivery, error) {
	w.state.mu.Lock()
	tag := w.state.consumerTag
	w.state.mu.Unlock()
	return w.ch.Consume(config.TasksQueueName, tag, false, false, false, false, nil)
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var task model.Task
	if err := unmarshalTask(d.Body, &task); err != nil {
		log.LogNoRequestID("failed to decode task delivery", "err", err)
		_ = d.Ack(false)
		return
	}

	// basic_ack before execution: an explicit at-most-once choice to avoid
	// replaying long-running encodes on crash (§4.8).
	_ = d.Ack(false)

	w.incRunningTasks()
	go func() {
		defer w.decRunningTasks()
		requestID := uuid.NewString()
		if err := w.executor(ctx, requestID, task); err != nil {
			log.LogError(requestID, "task execution failed", err, "task", task.String())
		}
	}()
}

func (w *Worker) incRunningTasks() {
	w.state.mu.Lock()
	w.state.runningTasks++
	w.state.mu.Unlock()
	metrics.Metrics.JobsInFlight.Inc()
	_, _ = w.recreateConsumer()
}

func (w *Worker) decRunningTasks() {
	w.state.mu.Lock()
	w.state.runningTasks--
	accept := w.state.acceptTasks
	remaining := w.state.runningTasks
	w.state.mu.Unlock()
	metrics.Metrics.JobsInFlight.Dec()
	if accept {
		_, _ = w.recreateConsumer()
	}
	if !accept && remaining == 0 {
		close(w.drained)
	}
}

// recreateConsumer cancels the current consumer (if any) and recreates it
// with the priority formula's current value, per §4.5/§4.8.
func (w *Worker) recreateConsumer() (<-chan amqp.Delivery, error) {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()

	if w.state.consumerTag != "" {
		if err := w.ch.Cancel(w.state.consumerTag, false); err != nil {
			log.LogNoRequestID("failed to cancel consumer", "err", err)
		}
	}
	if !w.state.acceptTasks {
		w.state.consumerTag = ""
		return nil, nil
	}

	priority := taskrunner.Priority(w.state.cpus, w.state.runningTasks)
	metrics.Metrics.ConsumerPriority.Set(float64(priority))

	tag := uuid.NewString()
	deliveries, err := w.ch.Consume(config.TasksQueueName, tag, false, false, false, false,
		amqp.Table{"x-priority": priority})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	w.state.consumerTag = tag
	return deliveries, nil
}

// drain stops accepting new deliveries and cancels the consumer, then
// blocks until every in-flight task completes.
func (w *Worker) drain() error {
	w.state.mu.Lock()
	w.state.acceptTasks = false
	remaining := w.state.runningTasks
	tag := w.state.consumerTag
	w.state.mu.Unlock()

	if tag != "" {
		_ = w.ch.Cancel(tag, false)
	}
	if remaining == 0 {
		return nil
	}
	<-w.drained
	return nil
}
