package fanout

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestSocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-serverConnCh
	t.Cleanup(func() { serverConn.Close() })
	return serverConn, clientConn
}

func TestWriteMessageDeliversToRegisteredSocket(t *testing.T) {
	serverConn, clientConn := newTestSocketPair(t)

	r := NewRegistry()
	r.Register("alice", serverConn)

	r.WriteMessage("alice", Notice("hi", "hello"))

	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	_, body, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(body), `"title":"hi"`)
}

func TestWriteMessageToUnknownUserIsNoop(t *testing.T) {
	r := NewRegistry()
	r.WriteMessage("nobody", Notice("hi", "hello"))
}

func TestUnregisterRemovesSocket(t *testing.T) {
	serverConn, _ := newTestSocketPair(t)

	r := NewRegistry()
	r.Register("alice", serverConn)
	r.Unregister("alice", serverConn)

	require.Empty(t, r.sockets["alice"])
}
