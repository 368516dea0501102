package server

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// StdioTransport serves line-delimited JSON on a reader/writer pair, by
// default the process's stdin and stdout.
type StdioTransport struct {
	In  io.Reader
	Out io.Writer

	stdin stdinOwner
}

func (t *StdioTransport) Addr() string { return "stdio" }

func (t *StdioTransport) Serve(ctx context.Context, d *Dispatcher) error {
	in, out := t.In, t.Out
	if in == nil {
		if !t.stdin.take() {
			return nil
		}
		in = os.Stdin
		if term.IsTerminal(int(os.Stdin.Fd())) {
			d.log.Info("reading requests from a terminal, send one JSON envelope per line")
		}
	}
	if out == nil {
		out = os.Stdout
	}
	err := serveLines(ctx, d, in, out)
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Close closes In when it is closable, or os.Stdin when Serve is reading it.
func (t *StdioTransport) Close() error {
	if c, ok := t.In.(io.Closer); ok {
		return c.Close()
	}
	return t.stdin.close()
}

// stdinOwner tracks whether a stdio transport substituted os.Stdin, so Close
// can unblock the pending read by closing it.
type stdinOwner struct {
	mu     sync.Mutex
	taken  bool
	closed bool
}

// take records that Serve reads os.Stdin. It reports false once Close ran.
func (s *stdinOwner) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken = !s.closed
	return s.taken
}

func (s *stdinOwner) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.taken {
		return nil
	}
	return os.Stdin.Close()
}
