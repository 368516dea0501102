package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/protocol"
)

// portFallbackRange is how many ports above a busy requested port are tried.
const portFallbackRange = 100

const maxBody = 4 << 20

// HTTPOptions configures an HTTPTransport.
type HTTPOptions struct {
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
	// MCP serves the Model Context Protocol on /mcp instead of the plain
	// envelope endpoint.
	MCP bool
}

// HTTPTransport serves the protocol over loopback HTTP.
type HTTPTransport struct {
	ln   net.Listener
	opts HTTPOptions
	srv  *http.Server
}

// ListenHTTP binds addr. Port 0 lets the OS pick; a busy port falls back to
// the next free one.
func ListenHTTP(addr string, opts HTTPOptions) (*HTTPTransport, error) {
	ln, err := listenWithFallback(addr)
	if err != nil {
		return nil, err
	}
	t := &HTTPTransport{ln: ln, opts: opts}
	t.srv = &http.Server{ReadHeaderTimeout: 10 * time.Second}
	return t, nil
}

func (t *HTTPTransport) Addr() string { return "http://" + t.ln.Addr().String() }

func (t *HTTPTransport) Serve(ctx context.Context, d *Dispatcher) error {
	t.srv.Handler = t.router(d)
	t.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	if err := t.srv.Serve(t.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

func (t *HTTPTransport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.srv.Shutdown(ctx); err != nil {
		return t.srv.Close()
	}
	return nil
}

func (t *HTTPTransport) router(d *Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if t.opts.MCP {
		r.Handle("/mcp", newMCPHTTPHandler(d))
	} else {
		r.Post("/mcp", envelopeHandler(d))
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": d.Backend()})
	})
	if t.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", t.opts.Metrics)
	}
	return r
}

// envelopeHandler answers one envelope per POST. Protocol errors are in the
// body; the HTTP status is 200 whenever a response envelope was produced.
func envelopeHandler(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, protocol.Failure(nil, model.InvalidAction(fmt.Sprintf("request body exceeds %d bytes", maxBody))))
			return
		}
		writeJSON(w, http.StatusOK, d.Handle(r.Context(), body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func listenWithFallback(addr string) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port in %q", addr)
	}
	if port == 0 {
		return net.Listen("tcp", addr)
	}
	var first error
	for p := port; p <= port+portFallbackRange && p <= 65535; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return ln, nil
		}
		if first == nil {
			first = err
		}
	}
	return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+portFallbackRange, first)
}
