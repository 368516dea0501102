// Package axmcp embeds the accessibility server in a host application.
//
// Start it once the process is up and keep the returned Handle for the
// lifetime of the server. Closing the handle, or cancelling the context
// passed to Start, shuts everything down.
package axmcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mj1618/ax-mcp/internal/bridge"
	"github.com/mj1618/ax-mcp/internal/config"
	"github.com/mj1618/ax-mcp/internal/logging"
	"github.com/mj1618/ax-mcp/internal/metrics"
	"github.com/mj1618/ax-mcp/internal/platform"
	"github.com/mj1618/ax-mcp/internal/safety"
	"github.com/mj1618/ax-mcp/internal/server"

	// Backends register themselves for their own OS.
	_ "github.com/mj1618/ax-mcp/internal/platform/atspi"
	_ "github.com/mj1618/ax-mcp/internal/platform/darwin"
	_ "github.com/mj1618/ax-mcp/internal/platform/mock"
	_ "github.com/mj1618/ax-mcp/internal/platform/uia"
)

// Config is the server configuration. See config.Default.
type Config = config.Config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return config.Default() }

// shutdownTimeout bounds how long Close waits for in-flight work.
const shutdownTimeout = 5 * time.Second

// Handle is a running server.
type Handle struct {
	srv      *server.Server
	provider *bridge.Provider
	bridge   *bridge.Bridge
	log      *slog.Logger

	stop      context.CancelFunc
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Option customises Start.
type Option func(*startOptions)

type startOptions struct {
	logger   *slog.Logger
	announce io.Writer
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *startOptions) { o.logger = l }
}

// WithAnnounce redirects the "[ax-mcp] listening on" line, stderr by default.
func WithAnnounce(w io.Writer) Option {
	return func(o *startOptions) { o.announce = w }
}

// Start validates cfg, starts the accessibility worker and the configured
// transport, and returns once the transport is bound.
func Start(ctx context.Context, cfg Config, opts ...Option) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := startOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		level, _ := logging.ParseLevel(cfg.LogLevel)
		log = logging.New(level, cfg.LogFormat)
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	hooks := platform.HooksFor(cfg.Backend)
	b, err := bridge.New(bridge.Options{
		Timeout:  cfg.RequestTimeout,
		Init:     hooks.Init,
		Teardown: hooks.Teardown,
		Logger:   log,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	p, err := bridge.Open(ctx, b, platform.Options{
		Backend:          cfg.Backend,
		IdentityTTL:      cfg.IdentityTTL,
		BootstrapTimeout: cfg.BootstrapTimeout,
		Logger:           log,
	}, m)
	if err != nil {
		_ = b.Close(context.Background())
		return nil, fmt.Errorf("opening accessibility backend: %w", err)
	}

	d := server.NewDispatcher(server.Options{
		Provider: p,
		Limiter:  safety.NewLimiter(safety.LimiterOptions{Limit: cfg.RateLimit, Window: cfg.RateWindow}),
		Redactor: safety.NewRedactor(cfg.SensitiveRoles()...),
		MaxNodes: cfg.MaxNodes,
		Logger:   log,
		Metrics:  m,
	})

	t, err := newTransport(cfg, m)
	if err != nil {
		closeAll(log, p, b)
		return nil, err
	}

	runCtx, stop := context.WithCancel(ctx)
	h := &Handle{
		srv:      server.Start(runCtx, d, t, o.announce),
		provider: p,
		bridge:   b,
		log:      log,
		stop:     stop,
		closed:   make(chan struct{}),
	}
	go func() {
		select {
		case <-runCtx.Done():
		case <-h.srv.Done():
		}
		_ = h.Close()
	}()
	return h, nil
}

func newTransport(cfg Config, m *metrics.Metrics) (server.Transport, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		return &server.StdioTransport{}, nil
	case config.TransportMCPStdio:
		return &server.MCPStdioTransport{}, nil
	case config.TransportUnix:
		path := cfg.SocketPath
		if path == "" {
			path = config.DefaultSocketPath()
		}
		return server.ListenUnix(path)
	case config.TransportHTTP, config.TransportMCPHTTP:
		opts := server.HTTPOptions{MCP: cfg.Transport == config.TransportMCPHTTP}
		if m != nil {
			opts.Metrics = m.Handler()
		}
		return server.ListenHTTP(cfg.Addr, opts)
	}
	return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
}

// Addr is the bound address: an http:// URL, a unix:// socket path, or the
// stdio transport's name.
func (h *Handle) Addr() string { return h.srv.Addr() }

// Done is closed once the server has fully shut down.
func (h *Handle) Done() <-chan struct{} { return h.closed }

// Close shuts down the transport, releases the native backend and stops the
// worker. It is safe to call more than once. The returned error includes the
// transport's own failure when it stopped by itself.
//
// The stdio transports close os.Stdin to end their pending read. Where the
// platform cannot interrupt that read (some terminals), Close gives up after
// a few seconds and the reading goroutine ends at the next line or EOF.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		defer close(h.closed)
		h.stop()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		errs := []error{h.srv.Shutdown(ctx), h.transportErr()}
		errs = append(errs, closeAllCtx(ctx, h.log, h.provider, h.bridge)...)
		h.closeErr = errors.Join(errs...)
		h.log.Info("server stopped")
	})
	return h.closeErr
}

// transportErr is the transport's own failure, if it stopped with one.
func (h *Handle) transportErr() error {
	select {
	case <-h.srv.Done():
		if err := h.srv.Err(); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
	default:
	}
	return nil
}

func closeAll(log *slog.Logger, p *bridge.Provider, b *bridge.Bridge) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = errors.Join(closeAllCtx(ctx, log, p, b)...)
}

func closeAllCtx(ctx context.Context, log *slog.Logger, p *bridge.Provider, b *bridge.Bridge) []error {
	var errs []error
	if err := p.Close(ctx); err != nil {
		log.Warn("closing accessibility backend", "err", err)
		errs = append(errs, fmt.Errorf("closing backend: %w", err))
	}
	if err := b.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping accessibility worker: %w", err))
	}
	return errs
}
