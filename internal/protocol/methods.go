package protocol

import "github.com/mj1618/ax-mcp/internal/model"

type QueryTreeParams struct {
	MaxDepth          *int   `json:"max_depth,omitempty"          mapstructure:"max_depth"`
	MaxNodes          int    `json:"max_nodes,omitempty"          mapstructure:"max_nodes"`
	ContinuationToken string `json:"continuation_token,omitempty" mapstructure:"continuation_token"`
}

type GetNodeParams struct {
	NodeID model.NodeID `json:"node_id" mapstructure:"node_id"`
}

type PerformActionParams struct {
	NodeID model.NodeID `json:"node_id" mapstructure:"node_id"`
	Action model.Action `json:"action"  mapstructure:"action"`
}

type FindByNameParams struct {
	Name string `json:"name" mapstructure:"name"`
}

type QueryTreeResult struct {
	Nodes             []model.Node `json:"nodes"                        yaml:"nodes"`
	ContinuationToken string       `json:"continuation_token,omitempty" yaml:"continuation_token,omitempty"`
}

type NodeResult struct {
	Node model.Node `json:"node" yaml:"node"`
}

type ActionResult struct {
	Success bool `json:"success" yaml:"success"`
}

type NodesResult struct {
	Nodes []model.Node `json:"nodes" yaml:"nodes"`
}

type ServerInfo struct {
	Name    string `json:"name"    yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

type InitializeResult struct {
	ProtocolVersion string     `json:"protocol_version" yaml:"protocol_version"`
	Server          ServerInfo `json:"server"           yaml:"server"`
	Methods         []string   `json:"methods"          yaml:"methods"`
	Backend         string     `json:"backend"          yaml:"backend"`
}
