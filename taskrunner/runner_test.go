package taskrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/stretchr/testify/require"
)

func TestPriorityFormula(t *testing.T) {
	require.Equal(t, 8192, Priority(1, 0))
	require.Equal(t, 4096-1, Priority(1, 1))
	require.Equal(t, 2048-2, Priority(1, 2))
	require.Equal(t, 16384, Priority(2, 0))
}

func TestPriorityClampsNonPositiveCPUs(t *testing.T) {
	require.Equal(t, Priority(1, 0), Priority(0, 0))
}

func TestInlineRunnerExecutesTask(t *testing.T) {
	var mu sync.Mutex
	var ran []model.Task

	executor := func(ctx context.Context, requestID string, task model.Task) error {
		mu.Lock()
		ran = append(ran, task)
		mu.Unlock()
		return nil
	}

	r := NewInlineRunner(2, executor)
	task := model.Task{Kind: model.TaskProduceCapsule, CapsuleID: 42}
	require.NoError(t, r.Trigger(context.Background(), "req1", task))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestInlineRunnerBoundsConcurrency(t *testing.T) {
	start := make(chan struct{})
	release := make(chan struct{})
	var running int
	var mu sync.Mutex

	executor := func(ctx context.Context, requestID string, task model.Task) error {
		mu.Lock()
		running++
		mu.Unlock()
		start <- struct{}{}
		<-release
		return nil
	}

	r := NewInlineRunner(1, executor)
	task := model.Task{Kind: model.TaskProduceGos, CapsuleID: 1}
	require.NoError(t, r.Trigger(context.Background(), "req1", task))
	<-start

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Trigger(ctx, "req2", task)
	require.Error(t, err)

	close(release)
}
