// Package realtime tracks live websocket connections and the frames pushed to them.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"huddle.app/relay/internal/metrics"
)

// Handle is one live connection of a user. A user may hold several (one per device).
type Handle interface {
	ID() string
	UserID() string
	// Send queues payload for the client. It fails once ctx expires or the
	// handle is closed; callers evict on failure.
	Send(ctx context.Context, payload []byte) error
	Alive() bool
	// Close is idempotent. A closed handle never reports Alive again.
	Close()
}

// Registry maps user IDs to their live handles. All methods are safe for
// concurrent use from any number of connection lifecycles.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]map[string]Handle
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRegistry(m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byUser:  make(map[string]map[string]Handle),
		metrics: m,
		logger:  logger,
	}
}

func (r *Registry) Register(userID string, h Handle) {
	r.mu.Lock()
	handles, ok := r.byUser[userID]
	if !ok {
		handles = make(map[string]Handle)
		r.byUser[userID] = handles
	}
	_, existed := handles[h.ID()]
	handles[h.ID()] = h
	devices := len(handles)
	r.mu.Unlock()

	if !existed {
		r.metrics.ConnectionOpened()
	}
	r.logger.Debug("connection registered", "user_id", userID, "connection_id", h.ID(), "devices", devices)
}

// Unregister removes h and closes it. Unknown handles are still closed.
// It reports whether h was registered.
func (r *Registry) Unregister(userID string, h Handle) bool {
	h.Close()

	r.mu.Lock()
	handles := r.byUser[userID]
	_, found := handles[h.ID()]
	if found {
		delete(handles, h.ID())
		if len(handles) == 0 {
			delete(r.byUser, userID)
		}
	}
	r.mu.Unlock()

	if found {
		r.metrics.ConnectionClosed()
		r.logger.Debug("connection unregistered", "user_id", userID, "connection_id", h.ID())
	}
	return found
}

// HandlesFor returns the live handles of the given users. Users without a
// connection are simply absent from the result.
func (r *Registry) HandlesFor(participants []string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handle
	for _, userID := range participants {
		for _, h := range r.byUser[userID] {
			if h.Alive() {
				out = append(out, h)
			}
		}
	}
	return out
}

// Count is the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, handles := range r.byUser {
		n += len(handles)
	}
	return n
}

// UserCount is the number of users with at least one connection.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.byUser[userID] {
		if h.Alive() {
			return true
		}
	}
	return false
}

// CloseAll closes every handle. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	users := r.byUser
	r.byUser = make(map[string]map[string]Handle)
	r.mu.Unlock()

	for _, handles := range users {
		for _, h := range handles {
			h.Close()
			r.metrics.ConnectionClosed()
		}
	}
}
