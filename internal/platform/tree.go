package platform

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mj1618/ax-mcp/internal/identity"
	"github.com/mj1618/ax-mcp/internal/model"
)

// DefaultBootstrapTimeout bounds how long Root waits for the native tree.
const DefaultBootstrapTimeout = 2 * time.Second

// TreeOptions configures a Tree.
type TreeOptions struct {
	BootstrapTimeout time.Duration
	Logger           *slog.Logger
	Cache            []identity.Option
}

// Tree implements Provider on top of a handle-based Backend, assigning
// NodeIDs through an identity cache.
type Tree[H any] struct {
	backend   Backend[H]
	cache     *identity.Cache[H]
	bootstrap time.Duration
	log       *slog.Logger

	rootID  model.NodeID
	hasRoot bool
}

// NewTree wraps backend.
func NewTree[H any](backend Backend[H], opts TreeOptions) *Tree[H] {
	if opts.BootstrapTimeout <= 0 {
		opts.BootstrapTimeout = DefaultBootstrapTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Tree[H]{
		backend:   backend,
		cache:     identity.New[H](backend, opts.Cache...),
		bootstrap: opts.BootstrapTimeout,
		log:       opts.Logger.With("component", "tree", "backend", backend.Name()),
	}
}

// CacheLen reports the number of live NodeIDs.
func (t *Tree[H]) CacheLen() int { return t.cache.Len() }

// OnEvict registers fn to be called on the worker with every evicted NodeID.
func (t *Tree[H]) OnEvict(fn func(model.NodeID)) { t.cache.OnEvict(fn) }

func (t *Tree[H]) Name() string { return t.backend.Name() }

func (t *Tree[H]) Root() (model.Node, error) {
	var node model.Node
	err := t.withReconnect(func() error {
		id, h, err := t.root()
		if err != nil {
			return err
		}
		node, err = t.snapshot(id, h)
		return err
	})
	return node, err
}

func (t *Tree[H]) Children(id model.NodeID) ([]model.Node, error) {
	var nodes []model.Node
	err := t.withReconnect(func() error {
		h, err := t.cache.Resolve(id)
		if err != nil {
			return err
		}
		kids, err := t.children(id, h)
		if err != nil {
			return err
		}
		nodes = make([]model.Node, 0, len(kids))
		for _, k := range kids {
			n, err := t.snapshot(k.id, k.handle)
			if model.CategoryOf(err) == model.CategoryNotFound {
				// Vanished between listing and reading.
				continue
			}
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	return nodes, err
}

func (t *Tree[H]) Node(id model.NodeID) (model.Node, error) {
	var node model.Node
	err := t.withReconnect(func() error {
		h, err := t.cache.Resolve(id)
		if err != nil {
			return err
		}
		node, err = t.snapshot(id, h)
		return err
	})
	return node, err
}

func (t *Tree[H]) PerformAction(id model.NodeID, action model.Action) error {
	if err := action.Validate(); err != nil {
		return model.InvalidAction(err.Error())
	}
	return t.withReconnect(func() error {
		h, err := t.cache.Resolve(id)
		if err != nil {
			return err
		}
		attrs, err := t.attributes(id, h)
		if err != nil {
			return err
		}
		if !(model.Node{Actions: attrs.Actions}).Supports(action) {
			return model.Errorf(model.CategoryInvalidAction, "node %s does not support %s", id, action.Type)
		}
		if err := t.backend.Perform(h, action); err != nil {
			return t.notFoundFor(id, err)
		}
		t.log.Debug("performed action", "node", id, "action", action.String())
		return nil
	})
}

func (t *Tree[H]) Close() error {
	t.cache.Reset()
	t.hasRoot = false
	return t.backend.Close()
}

// root returns the held root handle, bootstrapping it when there is none.
func (t *Tree[H]) root() (model.NodeID, H, error) {
	if t.hasRoot {
		if h, err := t.cache.Resolve(t.rootID); err == nil {
			return t.rootID, h, nil
		}
		t.log.Info("root handle invalidated, bootstrapping again")
		t.hasRoot = false
	}

	h, err := t.bootstrapRoot()
	if err != nil {
		var zero H
		return "", zero, err
	}
	id, h := t.cache.Intern(h)
	t.cache.Pin(id)
	t.rootID, t.hasRoot = id, true
	return id, h, nil
}

func (t *Tree[H]) bootstrapRoot() (H, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = t.bootstrap

	var h H
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		var err error
		h, err = t.backend.Root()
		switch {
		case err == nil:
			return nil
		case model.CategoryOf(err) == model.CategoryPermissionDenied, errors.Is(err, model.ErrConnectionLost):
			return backoff.Permanent(err)
		default:
			return err
		}
	}, bo)
	if err != nil {
		if model.CategoryOf(err) == model.CategoryPermissionDenied || errors.Is(err, model.ErrConnectionLost) {
			return h, err
		}
		t.log.Warn("root not available", "attempts", attempts, "err", err)
		return h, model.Unavailable("accessibility tree not registered", err)
	}
	if attempts > 1 {
		t.log.Debug("root available", "attempts", attempts)
	}
	return h, nil
}

type child[H any] struct {
	id     model.NodeID
	handle H
}

func (t *Tree[H]) children(id model.NodeID, h H) ([]child[H], error) {
	handles, err := t.backend.Children(h)
	if err != nil {
		return nil, t.notFoundFor(id, err)
	}
	kids := make([]child[H], 0, len(handles))
	for _, ch := range handles {
		cid, stored := t.cache.Intern(ch)
		kids = append(kids, child[H]{id: cid, handle: stored})
	}
	return kids, nil
}

func (t *Tree[H]) attributes(id model.NodeID, h H) (model.Attributes, error) {
	attrs, err := t.backend.Attributes(h)
	if err != nil {
		return attrs, t.notFoundFor(id, err)
	}
	if attrs.Role == "" {
		attrs.Role = model.RoleUnknown
	}
	return attrs, nil
}

func (t *Tree[H]) snapshot(id model.NodeID, h H) (model.Node, error) {
	attrs, err := t.attributes(id, h)
	if err != nil {
		return model.Node{}, err
	}
	kids, err := t.children(id, h)
	if err != nil {
		return model.Node{}, err
	}
	node := model.Node{
		ID:          id,
		Role:        attrs.Role,
		Name:        attrs.Name,
		Value:       attrs.Value,
		Description: attrs.Description,
		Bounds:      attrs.Bounds,
		Actions:     model.Capabilities(attrs.Actions...),
		Children:    make([]model.NodeID, len(kids)),
	}
	for i, k := range kids {
		node.Children[i] = k.id
	}
	return node, nil
}

// notFoundFor evicts id when the backend says its element is gone, so later
// lookups fail fast.
func (t *Tree[H]) notFoundFor(id model.NodeID, err error) error {
	if model.CategoryOf(err) == model.CategoryNotFound {
		t.cache.Forget(id)
		return model.NotFound(id)
	}
	return err
}

// withReconnect runs op and, if the backend lost its connection, reconnects
// once and runs op again. A second loss is Unavailable.
func (t *Tree[H]) withReconnect(op func() error) error {
	err := op()
	if !errors.Is(err, model.ErrConnectionLost) {
		return err
	}
	t.log.Warn("accessibility connection lost, reinitializing", "err", err)
	t.cache.Reset()
	t.hasRoot = false
	if rerr := t.backend.Reconnect(); rerr != nil {
		return model.Unavailable("accessibility connection lost", rerr)
	}
	err = op()
	if errors.Is(err, model.ErrConnectionLost) {
		return model.Unavailable("accessibility connection lost again after reinitializing", err)
	}
	return err
}
