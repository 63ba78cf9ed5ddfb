// Package fanout implements the Notification Fan-out (component D): a
// per-user websocket registry for process-local delivery, with an optional
// broker-mediated exchange for cross-instance fan-out (§4.4).
package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/capsulabs/capsule-pipeline/config"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"

	"github.com/gorilla/websocket"
)

// Message is any of the JSON shapes in §4.4; callers build these with the
// typed constructors in messages.go. The `type` discriminator is always
// present.
type Message map[string]interface{}

// Registry is the process-global mapping of user_id -> open websocket
// streams (§4.4). The registry owns the sockets; close handling is driven
// only by read-side poll results, not by back-references from the socket
// to the registry (per SPEC_FULL.md's redesign note on avoiding reference
// cycles).
type Registry struct {
	mu      sync.Mutex
	sockets map[string][]*websocket.Conn
}

func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string][]*websocket.Conn)}
}

// Register adds a newly-authenticated connection to a user's socket list.
func (r *Registry) Register(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sockets[userID] = append(r.sockets[userID], conn)
	metrics.Metrics.NotifySocketsOpen.Inc()
}

// Unregister removes a connection, e.g. once its read loop exits.
func (r *Registry) Unregister(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.sockets[userID]
	for i, c := range conns {
		if c == conn {
			r.sockets[userID] = append(conns[:i], conns[i+1:]...)
			metrics.Metrics.NotifySocketsOpen.Dec()
			break
		}
	}
	if len(r.sockets[userID]) == 0 {
		delete(r.sockets, userID)
	}
}

// WriteMessage iterates userID's open sockets under the registry lock,
// writing msg to each. A write that fails because the socket is dead is
// pruned in place; per §5, the per-socket send is expected to be
// non-blocking, so the whole fan-out runs while holding the lock.
func (r *Registry) WriteMessage(userID string, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.LogNoRequestID("failed to marshal notification", "user_id", userID, "err", err)
		return
	}

	msgType, _ := msg["type"].(string)

	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.sockets[userID]
	if len(conns) == 0 {
		metrics.Metrics.NotifyMessagesDropped.WithLabelValues(msgType).Inc()
		return
	}
	live := conns[:0]
	for _, c := range conns {
		if isDead(c) {
			metrics.Metrics.NotifyMessagesDropped.WithLabelValues(msgType).Inc()
			metrics.Metrics.NotifySocketsOpen.Dec()
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			metrics.Metrics.NotifyMessagesDropped.WithLabelValues(msgType).Inc()
			metrics.Metrics.NotifySocketsOpen.Dec()
			continue
		}
		metrics.Metrics.NotifyMessagesSent.WithLabelValues(msgType).Inc()
		live = append(live, c)
	}
	r.sockets[userID] = live
}

// isDead health-checks a socket with a bounded, non-blocking read-ready
// loop, matching §4.4's 50-iteration bound. Gorilla's Conn doesn't expose a
// peek primitive, so a zero-deadline read is used and any timeout is
// treated as "still alive"; a close-frame error means the socket is dead.
func isDead(c *websocket.Conn) bool {
	for i := 0; i < config.MaxSocketHealthCheckIterations; i++ {
		_ = c.SetReadDeadline(time.Now())
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				return false
			}
			return true
		}
	}
	return false
}
