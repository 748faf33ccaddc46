package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pushrelay/pushrelay/internal/metrics"
)

var (
	// ErrNilChannel is returned when Register is called with a nil channel.
	ErrNilChannel = errors.New("nil channel")
	// ErrRegistryFull is returned when the channel limit is reached.
	ErrRegistryFull = errors.New("registry full")
)

// Registered pairs a channel with the identifier the registry assigned it.
type Registered struct {
	ID      uuid.UUID
	Channel Channel
}

// Registry tracks the currently connected channels. It owns each
// channel from Register until Unregister. Snapshot returns a copy, so
// a broadcast can iterate while connect/disconnect events mutate the
// live set concurrently.
type Registry struct {
	mu          sync.RWMutex
	channels    map[uuid.UUID]Channel
	maxChannels int
}

// NewRegistry creates a registry. maxChannels <= 0 means unlimited.
func NewRegistry(maxChannels int) *Registry {
	return &Registry{
		channels:    make(map[uuid.UUID]Channel),
		maxChannels: maxChannels,
	}
}

// Register adds a channel and returns its assigned identifier.
func (r *Registry) Register(ch Channel) (uuid.UUID, error) {
	if ch == nil {
		return uuid.Nil, ErrNilChannel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxChannels > 0 && len(r.channels) >= r.maxChannels {
		return uuid.Nil, fmt.Errorf("%w: max channels (%d) reached", ErrRegistryFull, r.maxChannels)
	}

	id := uuid.New()
	r.channels[id] = ch

	metrics.ConnectedChannels.WithLabelValues(string(ch.Kind())).Inc()
	slog.Debug("Channel registered", "channel_id", id.String(), "kind", ch.Kind(), "total", len(r.channels))
	return id, nil
}

// Unregister removes a channel if present. Removing an unknown id is a
// no-op, since disconnects race with dispatcher cleanup.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.channels[id]
	if !exists {
		return
	}

	delete(r.channels, id)

	metrics.ConnectedChannels.WithLabelValues(string(ch.Kind())).Dec()
	slog.Debug("Channel unregistered", "channel_id", id.String(), "kind", ch.Kind(), "remaining", len(r.channels))
}

// Snapshot returns a point-in-time copy of the open channels. Channels
// in any other state are excluded.
func (r *Registry) Snapshot() []Registered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Registered, 0, len(r.channels))
	for id, ch := range r.channels {
		if ch.State() != StateOpen {
			continue
		}
		snapshot = append(snapshot, Registered{ID: id, Channel: ch})
	}
	return snapshot
}

// Len returns the number of registered channels in any state.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Counts returns the number of registered channels per kind.
func (r *Registry) Counts() map[Kind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Kind]int)
	for _, ch := range r.channels {
		counts[ch.Kind()]++
	}
	return counts
}

// DrainAndClose closes every channel with the given reason and empties
// the registry. Used during graceful shutdown.
func (r *Registry) DrainAndClose(reason string) {
	r.mu.Lock()
	drained := make([]Channel, 0, len(r.channels))
	for id, ch := range r.channels {
		drained = append(drained, ch)
		metrics.ConnectedChannels.WithLabelValues(string(ch.Kind())).Dec()
		delete(r.channels, id)
	}
	r.mu.Unlock()

	for _, ch := range drained {
		ch.Close(reason)
	}
	slog.Info("Registry drained", "closed_channels", len(drained), "reason", reason)
}
