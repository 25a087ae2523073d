package mediator

import "context"

// Transport defines the interface for message transport layer
// Focused purely on moving envelopes without registry coupling
type Transport interface {
	// Publish sends an envelope to the transport layer
	Publish(ctx context.Context, env Envelope) error

	// Subscribe starts listening for envelopes on the transport
	Subscribe(ctx context.Context) error

	// Messages returns a channel that receives envelopes from the transport
	// This channel should be closed when the transport is closed
	Messages() <-chan Envelope

	// Close shuts down the transport and releases resources
	Close() error

	// IsConnected returns true if the transport is connected and ready
	IsConnected() bool
}
