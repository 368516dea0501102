package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Server runs one Transport in the background.
type Server struct {
	t      Transport
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	err  error
}

// Start serves t with d until ctx is cancelled or Shutdown is called. The
// bound address is logged and announced on announce (stderr when nil) as
// "[ax-mcp] listening on <addr>".
func Start(ctx context.Context, d *Dispatcher, t Transport, announce io.Writer) *Server {
	if announce == nil {
		announce = os.Stderr
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		t:      t,
		log:    d.log.With("transport", t.Addr()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.log.Info("listening", "addr", t.Addr(), "backend", d.Backend())
	fmt.Fprintf(announce, "[%s] listening on %s\n", ServerName, t.Addr())

	go func() {
		defer close(s.done)
		err := t.Serve(ctx, d)
		if err != nil {
			s.log.Error("transport stopped", "err", err)
		}
		s.err = err
	}()
	return s
}

// Addr is the transport's bound address.
func (s *Server) Addr() string { return s.t.Addr() }

// Done is closed once the transport has stopped serving.
func (s *Server) Done() <-chan struct{} { return s.done }

// Err returns the transport's terminal error, if any. Valid after Done.
func (s *Server) Err() error { return s.err }

// Shutdown closes the transport and waits for in-flight requests to finish
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	var closeErr error
	s.once.Do(func() {
		s.cancel()
		closeErr = s.t.Close()
	})
	select {
	case <-s.done:
		return closeErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for transport %s: %w", s.t.Addr(), ctx.Err())
	}
}
