package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
)

// UnixTransport serves line-delimited JSON on a Unix domain socket, one
// goroutine per connection.
type UnixTransport struct {
	path string
	ln   net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// ListenUnix binds path, replacing a stale socket file left by a previous
// process.
func ListenUnix(path string) (*UnixTransport, error) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if c, err := net.Dial("unix", path); err == nil {
			c.Close()
			return nil, fmt.Errorf("socket %s is in use by another server", path)
		}
		_ = os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return &UnixTransport{path: path, ln: ln, conns: make(map[net.Conn]struct{})}, nil
}

func (t *UnixTransport) Addr() string { return "unix://" + t.path }

func (t *UnixTransport) Serve(ctx context.Context, d *Dispatcher) error {
	defer t.wg.Wait()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		if !t.track(conn) {
			conn.Close()
			return nil
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer t.untrack(conn)
			if err := serveLines(ctx, d, conn, conn); err != nil && !errors.Is(err, net.ErrClosed) {
				d.log.Debug("connection ended", "err", err)
			}
		}()
	}
}

func (t *UnixTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for c := range t.conns {
		c.Close()
	}
	t.mu.Unlock()

	err := t.ln.Close()
	_ = os.Remove(t.path)
	return err
}

func (t *UnixTransport) track(c net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conns[c] = struct{}{}
	return true
}

func (t *UnixTransport) untrack(c net.Conn) {
	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
	c.Close()
}
