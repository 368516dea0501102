package platform

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/mj1618/ax-mcp/internal/identity"
)

// Options configures the provider built at startup.
type Options struct {
	// Backend selects a registered backend by name. Empty or "auto" picks the
	// native backend for this OS.
	Backend string

	IdentityTTL      time.Duration
	BootstrapTimeout time.Duration
	Logger           *slog.Logger
}

// CacheOptions translates the identity settings for NewTree.
func (o Options) CacheOptions() []identity.Option {
	return []identity.Option{identity.WithTTL(o.IdentityTTL)}
}

// Factory builds a Provider. It runs on the worker thread.
type Factory func(opts Options) (Provider, error)

// ErrUnsupported is returned when no native backend is compiled in.
var ErrUnsupported = fmt.Errorf("ax-mcp has no native accessibility backend for %s/%s; supported: darwin, linux, windows", runtime.GOOS, runtime.GOARCH)

var (
	factories = map[string]Factory{}
	hooks     = map[string]ThreadHooks{}
)

// ThreadHooks run on the worker thread around a backend's lifetime, e.g. to
// enter and leave a COM apartment.
type ThreadHooks struct {
	Init     func() error
	Teardown func()
}

// NativeBackend is set by the platform-specific package via init().
// See internal/platform/darwin/init.go for the macOS registration.
var NativeBackend string

// Register makes a backend selectable by name. It is called from init().
func Register(name string, f Factory) {
	if _, dup := factories[name]; dup {
		panic("platform: backend registered twice: " + name)
	}
	factories[name] = f
}

// RegisterThreadHooks attaches worker-thread hooks to a backend.
func RegisterThreadHooks(name string, h ThreadHooks) {
	hooks[name] = h
}

// HooksFor returns the thread hooks of the backend New would select.
func HooksFor(backend string) ThreadHooks {
	if backend == "" || backend == "auto" {
		backend = NativeBackend
	}
	return hooks[backend]
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the Provider selected by opts.Backend.
func New(opts Options) (Provider, error) {
	name := opts.Backend
	if name == "" || name == "auto" {
		if NativeBackend == "" {
			return nil, ErrUnsupported
		}
		name = NativeBackend
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %v)", name, Backends())
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return f(opts)
}
