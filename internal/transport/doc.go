// Package transport adapts the two delivery styles behind the relay
// Channel interface: a bidirectional WebSocket channel with a dedicated
// writer goroutine, and a push-only SSE channel backed by a bounded
// drop-oldest queue.
package transport
