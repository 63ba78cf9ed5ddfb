package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNodeStateDefaultsToAcceptingTasks(t *testing.T) {
	state, err := newNodeState()
	require.NoError(t, err)
	require.True(t, state.acceptTasks)
	require.GreaterOrEqual(t, state.cpus, 1)
}

func TestUnmarshalTask(t *testing.T) {
	var got struct {
		Kind      string `json:"kind"`
		CapsuleID int64  `json:"capsule_id"`
	}
	require.NoError(t, unmarshalTask([]byte(`{"kind":"produce_capsule","capsule_id":42}`), &got))
	require.Equal(t, "produce_capsule", got.Kind)
	require.EqualValues(t, 42, got.CapsuleID)
}
