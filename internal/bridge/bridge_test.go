package bridge

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/ax-mcp/internal/model"
)

func newTestBridge(t *testing.T, timeout time.Duration) *Bridge {
	t.Helper()
	b, err := New(Options{Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

// goid returns the current goroutine's id, parsed from its stack header.
func goid() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := strings.Fields(string(buf[:n]))
	id, _ := strconv.ParseInt(fields[1], 10, 64)
	return id
}

func TestCall_ReturnsResult(t *testing.T) {
	b := newTestBridge(t, time.Second)
	got, err := Call(context.Background(), b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCall_PropagatesError(t *testing.T) {
	b := newTestBridge(t, time.Second)
	_, err := Call(context.Background(), b, func() (string, error) {
		return "", model.NotFound("n-1")
	})
	assert.Equal(t, model.CategoryNotFound, model.CategoryOf(err))
}

func TestCall_NilInterfaceResult(t *testing.T) {
	b := newTestBridge(t, time.Second)
	got, err := Call(context.Background(), b, func() (error, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCall_FIFOOnOneGoroutine(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)

	var (
		mu    sync.Mutex
		order []int
		busy  atomic.Int32
		clash atomic.Bool
	)
	// Block the worker so every later call queues up behind it.
	gate := make(chan struct{})
	go func() {
		_, _ = Call(context.Background(), b, func() (struct{}, error) {
			<-gate
			return struct{}{}, nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = Call(context.Background(), b, func() (struct{}, error) {
				if busy.Add(1) > 1 {
					clash.Store(true)
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				busy.Add(-1)
				return struct{}{}, nil
			})
		}(i)
		// Enqueue in a known order.
		time.Sleep(2 * time.Millisecond)
	}
	close(gate)
	wg.Wait()

	assert.False(t, clash.Load(), "two calls ran concurrently")
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v, "calls must run in arrival order")
	}
}

func TestCall_TimeoutDiscardsLateResult(t *testing.T) {
	b := newTestBridge(t, 50*time.Millisecond)
	release := make(chan struct{})

	start := time.Now()
	_, err := Call(context.Background(), b, func() (int, error) {
		<-release
		return 1, nil
	})
	assert.Equal(t, model.CategoryTimeout, model.CategoryOf(err))
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	// The worker is free again once the slow call returns.
	got, err := Call(context.Background(), b, func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestCall_TimedOutQueuedJobNeverRuns(t *testing.T) {
	b := newTestBridge(t, 50*time.Millisecond)
	release := make(chan struct{})
	var ran atomic.Bool

	go func() {
		_, _ = CallTimeout(context.Background(), b, time.Second, func() (int, error) {
			<-release
			return 0, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := Call(context.Background(), b, func() (int, error) {
		ran.Store(true)
		return 0, nil
	})
	assert.Equal(t, model.CategoryTimeout, model.CategoryOf(err))

	close(release)
	_, err = Call(context.Background(), b, func() (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.False(t, ran.Load(), "a call that timed out in the queue must not run")
}

func TestCall_ContextCancel(t *testing.T) {
	b := newTestBridge(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, b, func() (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 0, nil
	})
	assert.Equal(t, model.CategoryTimeout, model.CategoryOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCall_PanicBecomesInternal(t *testing.T) {
	b := newTestBridge(t, time.Second)
	_, err := Call(context.Background(), b, func() (int, error) {
		var m map[string]int
		m["boom"] = 1
		return 0, nil
	})
	assert.Equal(t, model.CategoryInternal, model.CategoryOf(err))

	got, err := Call(context.Background(), b, func() (int, error) { return 7, nil })
	require.NoError(t, err, "worker must survive a panic")
	assert.Equal(t, 7, got)
}

func TestNew_InitAndTeardownRunOnWorker(t *testing.T) {
	var initGID, callGID, teardownGID atomic.Int64
	var torn atomic.Bool
	b, err := New(Options{
		Init: func() error {
			initGID.Store(goid())
			return nil
		},
		Teardown: func() {
			teardownGID.Store(goid())
			torn.Store(true)
		},
	})
	require.NoError(t, err)

	_, err = Call(context.Background(), b, func() (bool, error) {
		callGID.Store(goid())
		return true, nil
	})
	require.NoError(t, err)
	require.NoError(t, b.Close(context.Background()))

	assert.True(t, torn.Load())
	assert.Equal(t, initGID.Load(), callGID.Load())
	assert.Equal(t, initGID.Load(), teardownGID.Load())
}

func TestNew_InitError(t *testing.T) {
	_, err := New(Options{Init: func() error { return errors.New("CoInitializeEx failed") }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CoInitializeEx failed")
}

func TestClose_RejectsNewCalls(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()), "Close is idempotent")

	_, err = Call(context.Background(), b, func() (int, error) { return 0, nil })
	assert.Equal(t, model.CategoryUnavailable, model.CategoryOf(err))
}

func TestClose_GivesUpOnStuckWorker(t *testing.T) {
	b, err := New(Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	release := make(chan struct{})
	defer close(release)

	_, _ = Call(context.Background(), b, func() (int, error) {
		<-release
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Close(ctx), context.DeadlineExceeded)
}
