package platform

import (
	"github.com/mj1618/ax-mcp/internal/identity"
	"github.com/mj1618/ax-mcp/internal/model"
)

// Provider is the id-based view of the host application's accessibility tree.
// Implementations are not safe for concurrent use; callers go through the
// worker bridge.
type Provider interface {
	// Name identifies the backend, e.g. "ax", "atspi", "uia" or "mock".
	Name() string

	// Root returns the application root. It fails with Unavailable when the
	// native tree has not been registered within the bootstrap window.
	Root() (model.Node, error)

	// Children returns the current children of id, or NotFound if id is stale.
	Children(id model.NodeID) ([]model.Node, error)

	// Node re-fetches the current attributes of id.
	Node(id model.NodeID) (model.Node, error)

	// PerformAction executes action on id. It fails with InvalidAction when the
	// node does not advertise the action.
	PerformAction(id model.NodeID, action model.Action) error

	// Close releases every native handle and the backend connection.
	Close() error
}

// Backend is a handle-based native accessibility API. H is the native handle
// type (an AXUIElementRef, a D-Bus object reference, a COM pointer).
//
// Backends report a dropped service connection by wrapping
// model.ErrConnectionLost, and elements that vanished mid-call as NotFound.
type Backend[H any] interface {
	identity.Handles[H]

	Name() string

	// Root returns a fresh handle to the application root.
	Root() (H, error)

	// Children returns fresh handles to the children of h, in order.
	Children(h H) ([]H, error)

	// Attributes reads a normalised snapshot of h.
	Attributes(h H) (model.Attributes, error)

	// Perform runs a validated action on h.
	Perform(h H, action model.Action) error

	// Reconnect re-establishes the service connection after a drop.
	Reconnect() error

	Close() error
}

// Observable is implemented by providers that expose their identity cache.
// Eviction events are the hook for a future change-subscription layer.
type Observable interface {
	CacheLen() int
	OnEvict(fn func(model.NodeID))
}
