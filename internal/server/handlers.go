package server

import (
	"context"
	"encoding/json"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/protocol"
	"github.com/mj1618/ax-mcp/internal/safety"
	"github.com/mj1618/ax-mcp/internal/traverse"
	"github.com/mj1618/ax-mcp/internal/version"
)

// ServerName is reported by initialize and the MCP handshake.
const ServerName = "ax-mcp"

func (d *Dispatcher) initialize(context.Context, json.RawMessage) (any, error) {
	return protocol.InitializeResult{
		ProtocolVersion: protocol.Version,
		Server:          protocol.ServerInfo{Name: ServerName, Version: version.Version},
		Methods:         protocol.Methods,
		Backend:         d.provider.Name(),
	}, nil
}

func (d *Dispatcher) queryTree(ctx context.Context, raw json.RawMessage) (any, error) {
	var p protocol.QueryTreeParams
	if err := protocol.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	q := traverse.Query{MaxDepth: p.MaxDepth, MaxNodes: p.MaxNodes, Token: p.ContinuationToken}
	if q.MaxNodes == 0 {
		q.MaxNodes = d.maxNodes
	}
	page, err := traverse.QueryTree(ctx, d.source, q)
	if err != nil {
		return nil, err
	}
	return protocol.QueryTreeResult{Nodes: page.Nodes, ContinuationToken: page.Token}, nil
}

func (d *Dispatcher) getNode(ctx context.Context, raw json.RawMessage) (any, error) {
	var p protocol.GetNodeParams
	if err := protocol.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.NodeID == "" {
		return nil, model.InvalidAction("node_id is required")
	}
	node, err := d.source.Node(ctx, p.NodeID)
	if err != nil {
		return nil, err
	}
	return protocol.NodeResult{Node: node}, nil
}

func (d *Dispatcher) performAction(ctx context.Context, raw json.RawMessage) (any, error) {
	var p protocol.PerformActionParams
	if err := protocol.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.NodeID == "" {
		return nil, model.InvalidAction("node_id is required")
	}
	if err := safety.Perform(ctx, d.provider, p.NodeID, p.Action); err != nil {
		return nil, err
	}
	d.log.Info("action performed", "node", p.NodeID, "action", p.Action.String())
	return protocol.ActionResult{Success: true}, nil
}

func (d *Dispatcher) findByName(ctx context.Context, raw json.RawMessage) (any, error) {
	var p protocol.FindByNameParams
	if err := protocol.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	nodes, err := traverse.FindByName(ctx, d.source, p.Name)
	if err != nil {
		return nil, err
	}
	return protocol.NodesResult{Nodes: nodes}, nil
}
