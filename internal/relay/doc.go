// Package relay implements the fan-out core: a registry of connected
// channels and a dispatcher that delivers broadcast messages to every
// open channel.
//
// The registry guards its channel set with an RWMutex and hands out
// copied snapshots, so broadcasts iterate safely while clients connect
// and disconnect. Delivery failure on one channel removes that channel
// and never aborts the broadcast to the others.
package relay
