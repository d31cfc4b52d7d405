package chathub

import "matcha/backend/internal/models"

// Client is the transport side of a connection (e.g., WebSocket). It
// abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// Send queues ev for delivery. It must not block: false means the event
	// was not queued because the client is closed or too slow.
	Send(ev models.Event) bool
	// Close shuts the transport down. It may be called more than once.
	Close()
}
