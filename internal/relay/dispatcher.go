package relay

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/pushrelay/pushrelay/internal/metrics"
)

// Dispatcher fans a message out to every channel in the registry's
// current snapshot. Delivery is best-effort: a channel that fails is
// unregistered and closed, and the broadcast continues with the
// remaining channels. Failures are never surfaced to the caller.
type Dispatcher struct {
	registry *Registry
	clock    clockwork.Clock
}

// NewDispatcher creates a dispatcher bound to the given registry.
func NewDispatcher(registry *Registry, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{registry: registry, clock: clock}
}

// Broadcast delivers payload to every open channel. It returns the
// number of successful deliveries, which is informational only: zero
// registered channels is still a successful broadcast.
func (d *Dispatcher) Broadcast(payload []byte) int {
	start := d.clock.Now()
	snapshot := d.registry.Snapshot()

	delivered := 0
	for _, entry := range snapshot {
		kind := string(entry.Channel.Kind())

		if err := entry.Channel.Deliver(payload); err != nil {
			slog.Warn("Removing channel after delivery failure",
				"channel_id", entry.ID.String(),
				"kind", kind,
				"error", err,
			)
			d.registry.Unregister(entry.ID)
			entry.Channel.Close("delivery failed")
			metrics.DeliveryFailuresTotal.WithLabelValues(kind).Inc()
			continue
		}

		delivered++
		metrics.DeliveriesTotal.WithLabelValues(kind).Inc()
	}

	metrics.BroadcastsTotal.Inc()
	metrics.BroadcastFanout.Observe(float64(len(snapshot)))
	metrics.BroadcastDuration.Observe(d.clock.Since(start).Seconds())

	return delivered
}
