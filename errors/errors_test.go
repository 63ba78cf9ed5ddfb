package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsObjectNotFound(t *testing.T) {
	err := NewObjectNotFoundError("foo", fmt.Errorf("bar"))
	require.True(t, IsObjectNotFound(err))
	require.True(t, IsUnretriable(err))
}

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
	require.False(t, IsObjectNotFound(err))
}

func TestAPIErrorStatusCodes(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, ClientInput("bad", nil).Status)
	require.Equal(t, http.StatusConflict, Conflict("busy", nil).Status)
	require.Equal(t, http.StatusUnauthorized, NotAuthorized("nope", nil).Status)
	require.Equal(t, http.StatusInternalServerError, Internal("oops", nil).Status)
}

func TestExternalToolError(t *testing.T) {
	err := NewExternalToolError("popy.py", 1, "boom", fmt.Errorf("exit status 1"))
	require.True(t, IsExternalTool(err))
	require.Contains(t, err.Error(), "popy.py")
}

func TestStorageAndPersistenceErrors(t *testing.T) {
	sErr := NewStorageError("upload", "42/produced/abc.mp4", fmt.Errorf("timeout"))
	require.True(t, IsStorage(sErr))

	pErr := NewPersistenceError("save_capsule", fmt.Errorf("connection reset"))
	require.True(t, IsPersistence(pErr))
}

func TestBrokerTransientError(t *testing.T) {
	err := NewBrokerTransientError(fmt.Errorf("channel closed"))
	require.True(t, IsBrokerTransient(err))
}
