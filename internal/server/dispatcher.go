// Package server routes protocol requests to the tree and action logic and
// exposes them over the supported transports.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mj1618/ax-mcp/internal/metrics"
	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/protocol"
	"github.com/mj1618/ax-mcp/internal/safety"
)

// Provider is the bridged tree the dispatcher reads and acts on.
type Provider interface {
	Name() string
	Root(ctx context.Context) (model.Node, error)
	Children(ctx context.Context, id model.NodeID) ([]model.Node, error)
	Node(ctx context.Context, id model.NodeID) (model.Node, error)
	PerformAction(ctx context.Context, id model.NodeID, action model.Action) error
}

// Options configures a Dispatcher.
type Options struct {
	Provider Provider
	Limiter  *safety.Limiter
	Redactor *safety.Redactor

	// MaxNodes is the page size used when a query_tree request has none.
	MaxNodes int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type stage int

const (
	stageReceived stage = iota
	stageVersionChecked
	stageRouted
	stageExecuting
	stageResponded
)

func (s stage) String() string {
	switch s {
	case stageReceived:
		return "received"
	case stageVersionChecked:
		return "version_checked"
	case stageRouted:
		return "routed"
	case stageExecuting:
		return "executing"
	case stageResponded:
		return "responded"
	}
	return "unknown"
}

type route struct {
	run func(ctx context.Context, params json.RawMessage) (any, error)
	// retryable reports whether a Transient failure may be retried. Nil
	// means always.
	retryable func(params json.RawMessage) bool
}

// Dispatcher turns one request into exactly one response. It is safe for
// concurrent use by every transport.
type Dispatcher struct {
	provider Provider
	source   safety.Source
	limiter  *safety.Limiter
	maxNodes int
	log      *slog.Logger
	metrics  *metrics.Metrics
	routes   map[string]route
}

// NewDispatcher builds a Dispatcher over opts.Provider.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Limiter == nil {
		opts.Limiter = safety.NewLimiter(safety.LimiterOptions{})
	}
	if opts.Redactor == nil {
		opts.Redactor = safety.NewRedactor()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		provider: opts.Provider,
		source:   opts.Redactor.Wrap(opts.Provider),
		limiter:  opts.Limiter,
		maxNodes: opts.MaxNodes,
		log:      opts.Logger.With("component", "dispatcher"),
		metrics:  opts.Metrics,
	}
	d.routes = map[string]route{
		protocol.MethodInitialize:    {run: d.initialize},
		protocol.MethodQueryTree:     {run: d.queryTree},
		protocol.MethodGetNode:       {run: d.getNode},
		protocol.MethodPerformAction: {run: d.performAction, retryable: actionRetryable},
		protocol.MethodFindByName:    {run: d.findByName},
	}
	return d
}

// Backend returns the active provider's name.
func (d *Dispatcher) Backend() string { return d.provider.Name() }

// Handle parses one raw request and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) protocol.Response {
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		d.metrics.ObserveRequest("", string(model.CategoryOf(err)), 0)
		return protocol.Failure(nil, err)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch runs req through version check, admission, routing and
// execution.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	start := time.Now()
	log := d.log.With("method", req.Method)
	log.Debug("request", "stage", stageReceived)

	resp := d.dispatch(ctx, log, req)

	status := string(resp.Status)
	if resp.Error != nil {
		status = string(resp.Error.Category)
	}
	d.metrics.ObserveRequest(req.Method, status, time.Since(start))
	log.Debug("request", "stage", stageResponded, "status", status, "duration", time.Since(start))
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, req protocol.Request) protocol.Response {
	if err := protocol.CheckVersion(req.ProtocolVersion); err != nil {
		return protocol.Failure(req.ID, err)
	}
	log.Debug("request", "stage", stageVersionChecked)

	decision := d.limiter.Allow(fingerprint(req))
	if !decision.Allowed {
		d.metrics.Throttled()
		resp := protocol.Failure(req.ID, model.Errorf(model.CategoryThrottled, "rate limit exceeded"))
		resp.RetryAfterMs = retryMillis(decision.RetryAfter)
		return resp
	}

	r, ok := d.routes[req.Method]
	if !ok {
		resp := protocol.Failure(req.ID, model.InvalidAction("unknown method"))
		resp.RetryAfterMs = retryMillis(decision.RetryAfter)
		return resp
	}
	log.Debug("request", "stage", stageRouted)

	log.Debug("request", "stage", stageExecuting)
	result, err := r.run(ctx, req.Params)
	if err != nil && model.CategoryOf(err) == model.CategoryTransient && ctx.Err() == nil &&
		(r.retryable == nil || r.retryable(req.Params)) {
		log.Debug("retrying transient failure", "err", err)
		d.metrics.Retried(req.Method)
		result, err = r.run(ctx, req.Params)
	}

	var resp protocol.Response
	if err != nil {
		if model.CategoryOf(err) == model.CategoryInternal {
			log.Error("request failed", "err", err)
		}
		resp = protocol.Failure(req.ID, err)
	} else {
		resp = protocol.Success(req.ID, result)
	}
	resp.RetryAfterMs = retryMillis(decision.RetryAfter)
	return resp
}

// fingerprint identifies a request for repeat detection. Params are
// compacted so whitespace differences do not defeat it.
func fingerprint(req protocol.Request) string {
	var buf bytes.Buffer
	buf.WriteString(req.Method)
	buf.WriteByte(0)
	if err := json.Compact(&buf, req.Params); err != nil {
		buf.Write(req.Params)
	}
	return buf.String()
}

func retryMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return ms
}

func actionRetryable(params json.RawMessage) bool {
	var p protocol.PerformActionParams
	if err := protocol.DecodeParams(params, &p); err != nil {
		return false
	}
	return !p.Action.Mutating()
}
