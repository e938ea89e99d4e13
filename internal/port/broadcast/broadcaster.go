// Package broadcast defines the port for pushing council lifecycle events
// (decisions ready, applications parsed) to connected dashboard clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected client. Delivery
// is best-effort; pipeline progress never blocks on a slow client.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
