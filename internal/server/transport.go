package server

import "context"

// Transport carries protocol requests to a Dispatcher.
type Transport interface {
	// Addr is the bound address, or the transport name when it has none.
	Addr() string
	// Serve blocks until ctx is done, the transport is closed, or its input
	// ends.
	Serve(ctx context.Context, d *Dispatcher) error
	// Close stops accepting requests and closes open connections.
	Close() error
}
