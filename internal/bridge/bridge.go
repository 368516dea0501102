// Package bridge funnels every native accessibility call through one worker
// goroutine locked to its own OS thread.
//
// Native accessibility APIs are blocking, handle-based and often affine to
// the thread that created their handles. Request handlers never call them
// directly: they hand a function to the Bridge and wait for the result with
// a deadline.
//
// Limitation: a native call cannot be cancelled. When a caller's deadline
// passes, the caller gets a Timeout error and the late result is dropped, but
// the worker stays busy until the native call actually returns. A native call
// that never returns leaves the bridge unresponsive (every later call times
// out) until the platform recovers or the process exits.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mj1618/ax-mcp/internal/metrics"
	"github.com/mj1618/ax-mcp/internal/model"
)

// DefaultTimeout is the per-call deadline when none is configured.
const DefaultTimeout = time.Second

const (
	stateQueued int32 = iota
	stateRunning
	stateAbandoned
)

type result struct {
	value any
	err   error
}

type job struct {
	fn    func() (any, error)
	state atomic.Int32
	done  chan result
}

// Options configures a Bridge.
type Options struct {
	// Timeout is the default per-call deadline.
	Timeout time.Duration

	// Init runs on the worker thread before the first job, e.g. to enter a
	// COM apartment. An Init error fails New.
	Init func() error

	// Teardown runs on the worker thread after the last job.
	Teardown func()

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Bridge is a FIFO queue served by a single worker goroutine.
type Bridge struct {
	timeout  time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	teardown func()

	mu     sync.Mutex
	queue  []*job
	closed bool

	notify  chan struct{}
	stopped chan struct{}
}

// New starts the worker and waits for Init to finish.
func New(opts Options) (*Bridge, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	b := &Bridge{
		timeout:  opts.Timeout,
		log:      opts.Logger.With("component", "bridge"),
		metrics:  opts.Metrics,
		teardown: opts.Teardown,
		notify:   make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	ready := make(chan error, 1)
	go b.run(opts.Init, ready)
	if err := <-ready; err != nil {
		return nil, fmt.Errorf("initializing accessibility worker: %w", err)
	}
	return b, nil
}

// Timeout returns the default per-call deadline.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

// Do runs fn on the worker and waits for its result, for at most the
// default timeout or until ctx is done, whichever comes first.
func (b *Bridge) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	return b.DoTimeout(ctx, b.timeout, fn)
}

// DoTimeout is Do with an explicit deadline.
func (b *Bridge) DoTimeout(ctx context.Context, timeout time.Duration, fn func() (any, error)) (any, error) {
	j := &job{fn: fn, done: make(chan result, 1)}
	if err := b.enqueue(j); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-j.done:
		return r.value, r.err
	case <-timer.C:
		return nil, b.abandon(j, model.Errorf(model.CategoryTimeout, "accessibility call did not finish within %s", timeout))
	case <-ctx.Done():
		return nil, b.abandon(j, model.Wrap(model.CategoryTimeout, "request cancelled", ctx.Err()))
	}
}

// Call is the typed form of Do.
func Call[T any](ctx context.Context, b *Bridge, fn func() (T, error)) (T, error) {
	return CallTimeout(ctx, b, b.timeout, fn)
}

// CallTimeout is the typed form of DoTimeout.
func CallTimeout[T any](ctx context.Context, b *Bridge, timeout time.Duration, fn func() (T, error)) (T, error) {
	v, err := b.DoTimeout(ctx, timeout, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Close stops accepting work, fails queued calls, and waits for the worker to
// finish its current call and run Teardown. It returns ctx.Err() if the
// worker is stuck in a native call past ctx's deadline.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, j := range pending {
		if j.state.CompareAndSwap(stateQueued, stateAbandoned) {
			j.done <- result{err: model.Unavailable("server shutting down", nil)}
		}
	}
	b.metrics.SetQueueDepth(0)
	b.wake()

	select {
	case <-b.stopped:
		return nil
	case <-ctx.Done():
		b.log.Warn("worker still busy in a native call at shutdown")
		return ctx.Err()
	}
}

func (b *Bridge) enqueue(j *job) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return model.Unavailable("server shutting down", nil)
	}
	b.queue = append(b.queue, j)
	depth := len(b.queue)
	b.mu.Unlock()

	b.metrics.SetQueueDepth(depth)
	b.wake()
	return nil
}

// abandon marks j as given up. A job still in the queue will never run.
func (b *Bridge) abandon(j *job, err error) error {
	if j.state.CompareAndSwap(stateQueued, stateAbandoned) {
		b.log.Debug("call abandoned before it started", "err", err)
	} else {
		b.log.Warn("call abandoned while running, result will be discarded", "err", err)
	}
	b.metrics.BridgeTimeout()
	return err
}

func (b *Bridge) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// next blocks until a job is available. It returns false once the bridge is
// closed and drained.
func (b *Bridge) next() (*job, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			j := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			depth := len(b.queue)
			b.mu.Unlock()
			b.metrics.SetQueueDepth(depth)
			return j, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil, false
		}
		<-b.notify
	}
}

func (b *Bridge) run(init func() error, ready chan<- error) {
	defer close(b.stopped)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if init != nil {
		if err := init(); err != nil {
			ready <- err
			return
		}
	}
	ready <- nil
	if b.teardown != nil {
		defer b.teardown()
	}

	for {
		j, ok := b.next()
		if !ok {
			return
		}
		if !j.state.CompareAndSwap(stateQueued, stateRunning) {
			continue
		}
		start := time.Now()
		v, err := b.exec(j.fn)
		b.metrics.ObserveBridgeCall(time.Since(start))
		j.done <- result{value: v, err: err}
	}
}

// exec runs fn, turning a panic into an Internal error so the worker keeps
// serving.
func (b *Bridge) exec(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in accessibility worker", "panic", r, "stack", string(debug.Stack()))
			b.metrics.BridgePanic()
			v, err = nil, model.Internal(fmt.Sprintf("accessibility worker panic: %v", r), nil)
		}
	}()
	return fn()
}
