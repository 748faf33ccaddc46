package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay metrics
var (
	// ConnectedChannels tracks currently registered channels by transport kind
	ConnectedChannels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_connected_channels",
			Help: "Currently registered channels by transport kind",
		},
		[]string{"kind"},
	)

	// BroadcastsTotal counts broadcast operations
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Total broadcast operations",
		},
	)

	// DeliveriesTotal counts successful per-channel deliveries by kind
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Successful per-channel deliveries by transport kind",
		},
		[]string{"kind"},
	)

	// DeliveryFailuresTotal counts failed deliveries (channel removed) by kind
	DeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Failed per-channel deliveries by transport kind",
		},
		[]string{"kind"},
	)

	// DroppedEventsTotal counts events dropped by the push-queue drop-oldest policy
	DroppedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_dropped_events_total",
			Help: "Events dropped from push channel queues under backpressure",
		},
	)

	// BroadcastFanout observes how many channels each broadcast reached
	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_fanout",
			Help:    "Channels per broadcast snapshot",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// BroadcastDuration observes broadcast duration in seconds
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_duration_seconds",
			Help:    "Broadcast fan-out duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)
)

// WebSocket metrics
var (
	// WebSocketPingFailures counts failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket keepalive pings",
		},
	)

	// WebSocketMessageSendDuration observes per-message write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)
)

// Cluster metrics
var (
	// PubSubMessagesReceived counts pub/sub messages received by channel
	PubSubMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_messages_received_total",
			Help: "Pub/sub messages received by channel",
		},
		[]string{"channel"},
	)

	// PubSubPublishFailures counts failed pub/sub publishes
	PubSubPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubsub_publish_failures_total",
			Help: "Total failed pub/sub publishes",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
