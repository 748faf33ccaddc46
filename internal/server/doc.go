// Package server wires the relay into an Echo HTTP server: the
// broadcast trigger endpoint, the WebSocket and SSE outbound channels,
// and the observability surface (health, status, metrics, version).
package server
