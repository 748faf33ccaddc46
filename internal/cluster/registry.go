package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/pushrelay/pushrelay/internal/version"
)

const (
	instancesKey = "relay:instances"
	staleAfter   = 60 * time.Second
)

// InstanceRegistry tracks active relay instances in Redis. Each
// instance sends periodic heartbeats to a shared hash; instances
// without a heartbeat for more than a minute are considered inactive.
type InstanceRegistry struct {
	rdb        *redis.Client
	instanceID string
	heartbeat  time.Duration
	clock      clockwork.Clock
}

// InstanceInfo holds metadata about an instance.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	Timestamp  int64  `json:"timestamp"`
	Version    string `json:"version"`
}

// NewInstanceRegistry creates an instance registry.
// instanceID should be unique per instance (e.g., hostname).
func NewInstanceRegistry(rdb *redis.Client, instanceID string, heartbeat time.Duration, clock clockwork.Clock) *InstanceRegistry {
	return &InstanceRegistry{
		rdb:        rdb,
		instanceID: instanceID,
		heartbeat:  heartbeat,
		clock:      clock,
	}
}

// Start begins the heartbeat loop. Registers immediately, then sends
// heartbeats on the ticker interval. Blocks until ctx is cancelled,
// then unregisters and returns.
func (r *InstanceRegistry) Start(ctx context.Context) {
	r.register(ctx)

	ticker := r.clock.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.register(ctx)
		case <-ctx.Done():
			r.unregister()
			return
		}
	}
}

// Instances returns the currently active instances, pruning stale
// entries from the shared hash as a side effect.
func (r *InstanceRegistry) Instances(ctx context.Context) ([]InstanceInfo, error) {
	entries, err := r.rdb.HGetAll(ctx, instancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	cutoff := r.clock.Now().Add(-staleAfter).Unix()
	active := make([]InstanceInfo, 0, len(entries))
	var stale []string

	for field, raw := range entries {
		var info InstanceInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			stale = append(stale, field)
			continue
		}
		if info.Timestamp < cutoff {
			stale = append(stale, field)
			continue
		}
		active = append(active, info)
	}

	if len(stale) > 0 {
		r.rdb.HDel(ctx, instancesKey, stale...)
	}

	return active, nil
}

func (r *InstanceRegistry) register(ctx context.Context) {
	info := InstanceInfo{
		InstanceID: r.instanceID,
		Timestamp:  r.clock.Now().Unix(),
		Version:    version.Get().Version,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return
	}

	r.rdb.HSet(ctx, instancesKey, r.instanceID, data)
}

func (r *InstanceRegistry) unregister() {
	// The parent context is already cancelled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.rdb.HDel(ctx, instancesKey, r.instanceID)
}
