package gc

import (
	"context"
	"os"
	"testing"

	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/persistence"
	"github.com/stretchr/testify/require"
)

type fakeRunningStore struct {
	capsules map[int64]*model.Capsule
	saved    []int64
}

func (f *fakeRunningStore) GetCapsule(ctx context.Context, id int64) (*model.Capsule, error) {
	return f.capsules[id], nil
}

func (f *fakeRunningStore) SaveCapsule(ctx context.Context, c *model.Capsule) error {
	f.saved = append(f.saved, c.ID)
	f.capsules[c.ID] = c
	return nil
}

func (f *fakeRunningStore) GetUser(ctx context.Context, id string) (*persistence.User, error) {
	return nil, nil
}

func (f *fakeRunningStore) ListRunning(ctx context.Context) ([]*model.Capsule, error) {
	var running []*model.Capsule
	for _, c := range f.capsules {
		running = append(running, c)
	}
	return running, nil
}

func TestPidAliveForCurrentProcess(t *testing.T) {
	require.True(t, pidAlive(os.Getpid()))
}

func TestPidAliveFalseForZeroOrNegative(t *testing.T) {
	require.False(t, pidAlive(0))
	require.False(t, pidAlive(-1))
}

func TestSweepStalePIDsResetsDeadPID(t *testing.T) {
	deadPID := 999999
	c := &model.Capsule{
		ID:            7,
		Produced:      model.StatusRunning,
		ProductionPID: &deadPID,
	}
	store := &fakeRunningStore{capsules: map[int64]*model.Capsule{7: c}}

	n, err := SweepStalePIDs(context.Background(), store, "req1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, model.StatusIdle, store.capsules[7].Produced)
	require.Nil(t, store.capsules[7].ProductionPID)
	require.Contains(t, store.saved, int64(7))
}

func TestSweepStalePIDsLeavesLivePIDAlone(t *testing.T) {
	livePID := os.Getpid()
	c := &model.Capsule{
		ID:            8,
		Produced:      model.StatusRunning,
		ProductionPID: &livePID,
	}
	store := &fakeRunningStore{capsules: map[int64]*model.Capsule{8: c}}

	n, err := SweepStalePIDs(context.Background(), store, "req1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, model.StatusRunning, store.capsules[8].Produced)
}
