package bridge

import (
	"context"
	"time"

	"github.com/mj1618/ax-mcp/internal/metrics"
	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
)

// Provider is the context-aware face of a platform.Provider. Every method
// runs the underlying call on the bridge's worker.
type Provider struct {
	b           *Bridge
	p           platform.Provider
	name        string
	rootTimeout time.Duration
	metrics     *metrics.Metrics
}

// Open builds the platform provider on the worker thread, so that backends
// with thread-affine handles create them where they will be used.
func Open(ctx context.Context, b *Bridge, opts platform.Options, m *metrics.Metrics) (*Provider, error) {
	bootstrap := opts.BootstrapTimeout
	if bootstrap <= 0 {
		bootstrap = platform.DefaultBootstrapTimeout
	}
	p, err := CallTimeout(ctx, b, bootstrap+b.Timeout(), func() (platform.Provider, error) {
		p, err := platform.New(opts)
		if err != nil {
			return nil, err
		}
		if o, ok := p.(platform.Observable); ok {
			o.OnEvict(func(model.NodeID) { m.Evicted() })
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return &Provider{
		b:           b,
		p:           p,
		name:        p.Name(),
		rootTimeout: bootstrap + b.Timeout(),
		metrics:     m,
	}, nil
}

// Wrap bridges an already constructed provider.
func Wrap(b *Bridge, p platform.Provider, bootstrap time.Duration) *Provider {
	if bootstrap <= 0 {
		bootstrap = platform.DefaultBootstrapTimeout
	}
	return &Provider{b: b, p: p, name: p.Name(), rootTimeout: bootstrap + b.Timeout()}
}

// Name is the backend name.
func (bp *Provider) Name() string { return bp.name }

// Root may wait for the bootstrap window, so it gets a longer deadline than
// the other calls.
func (bp *Provider) Root(ctx context.Context) (model.Node, error) {
	return CallTimeout(ctx, bp.b, bp.rootTimeout, func() (model.Node, error) {
		defer bp.observeCache()
		return bp.p.Root()
	})
}

func (bp *Provider) Children(ctx context.Context, id model.NodeID) ([]model.Node, error) {
	return Call(ctx, bp.b, func() ([]model.Node, error) {
		defer bp.observeCache()
		return bp.p.Children(id)
	})
}

func (bp *Provider) Node(ctx context.Context, id model.NodeID) (model.Node, error) {
	return Call(ctx, bp.b, func() (model.Node, error) {
		defer bp.observeCache()
		return bp.p.Node(id)
	})
}

func (bp *Provider) PerformAction(ctx context.Context, id model.NodeID, action model.Action) error {
	_, err := Call(ctx, bp.b, func() (struct{}, error) {
		return struct{}{}, bp.p.PerformAction(id, action)
	})
	return err
}

// Close releases the provider on the worker.
func (bp *Provider) Close(ctx context.Context) error {
	_, err := Call(ctx, bp.b, func() (struct{}, error) {
		return struct{}{}, bp.p.Close()
	})
	return err
}

func (bp *Provider) observeCache() {
	if o, ok := bp.p.(platform.Observable); ok {
		bp.metrics.SetCacheSize(o.CacheLen())
	}
}
