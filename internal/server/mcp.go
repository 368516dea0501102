package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/protocol"
	"github.com/mj1618/ax-mcp/internal/version"
)

// newMCPServer exposes the protocol methods as MCP tools. Every tool call is
// turned into an envelope and goes through the same Dispatcher as the other
// transports, so versioning, throttling and redaction apply unchanged.
func newMCPServer(d *Dispatcher) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(ServerName, version.Version, mcpserver.WithToolCapabilities(false))

	s.AddTool(
		mcp.NewTool(protocol.MethodQueryTree,
			mcp.WithDescription("Read the host application's accessibility tree breadth-first, one page at a time. Pass the returned continuation_token to get the next page."),
			mcp.WithNumber("max_depth", mcp.Description("Levels below the root to include (omit for unlimited)")),
			mcp.WithNumber("max_nodes", mcp.Description("Page size (default 500, at most 5000)")),
			mcp.WithString("continuation_token", mcp.Description("Token from the previous page")),
		),
		toolHandler[protocol.QueryTreeParams](d, protocol.MethodQueryTree),
	)
	s.AddTool(
		mcp.NewTool(protocol.MethodGetNode,
			mcp.WithDescription("Read one node by id"),
			mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id from an earlier response")),
		),
		toolHandler[protocol.GetNodeParams](d, protocol.MethodGetNode),
	)
	s.AddTool(
		mcp.NewTool(protocol.MethodPerformAction,
			mcp.WithDescription("Perform an accessibility action on a node. The action must be one the node lists in its actions."),
			mcp.WithString("node_id", mcp.Required(), mcp.Description("Target node id")),
			mcp.WithObject("action", mcp.Required(),
				mcp.Description(`Action object, e.g. {"type":"press"}, {"type":"set_value","value":"hi"}, {"type":"scroll","x":0,"y":-3}, {"type":"custom","name":"AXShowDefaultUI"}`)),
		),
		toolHandler[protocol.PerformActionParams](d, protocol.MethodPerformAction),
	)
	s.AddTool(
		mcp.NewTool(protocol.MethodFindByName,
			mcp.WithDescription("Find nodes whose name contains the given text, ignoring case"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Text to search for")),
		),
		toolHandler[protocol.FindByNameParams](d, protocol.MethodFindByName),
	)
	return s
}

// toolHandler decodes tool arguments into P, dispatches them as method and
// renders the envelope as YAML text.
func toolHandler[P any](d *Dispatcher, method string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params P
		if err := decodeArguments(request.GetArguments(), &params); err != nil {
			return toolResult(protocol.Failure(nil, err)), nil
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return toolResult(protocol.Failure(nil, model.Internal("encoding tool arguments", err))), nil
		}
		resp := d.Dispatch(ctx, protocol.Request{
			ProtocolVersion: protocol.Version,
			Method:          method,
			Params:          raw,
		})
		return toolResult(resp), nil
	}
}

func decodeArguments(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return model.Internal("building argument decoder", err)
	}
	if err := dec.Decode(args); err != nil {
		return model.InvalidAction(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// toolText is the YAML rendering of a response.
type toolText struct {
	Result       any                 `yaml:"result,omitempty"`
	Error        *protocol.ErrorBody `yaml:"error,omitempty"`
	RetryAfterMs int64               `yaml:"retry_after_ms,omitempty"`
}

func toolResult(resp protocol.Response) *mcp.CallToolResult {
	b, err := yaml.Marshal(toolText{Result: resp.Result, Error: resp.Error, RetryAfterMs: resp.RetryAfterMs})
	if err != nil {
		b = []byte(fmt.Sprintf("error:\n  category: %s\n  message: %q\n", model.CategoryInternal, err.Error()))
	}
	if resp.Status == protocol.StatusError {
		return mcp.NewToolResultError(string(b))
	}
	return mcp.NewToolResultText(string(b))
}

func newMCPHTTPHandler(d *Dispatcher) http.Handler {
	return mcpserver.NewStreamableHTTPServer(newMCPServer(d), mcpserver.WithStateLess(true))
}

// MCPStdioTransport speaks the Model Context Protocol on stdin and stdout.
type MCPStdioTransport struct {
	In  io.Reader
	Out io.Writer

	stdin stdinOwner
}

func (t *MCPStdioTransport) Addr() string { return "mcp-stdio" }

func (t *MCPStdioTransport) Serve(ctx context.Context, d *Dispatcher) error {
	in, out := t.In, t.Out
	if in == nil {
		if !t.stdin.take() {
			return nil
		}
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	err := mcpserver.NewStdioServer(newMCPServer(d)).Listen(ctx, in, out)
	if err != nil && (ctx.Err() != nil || errors.Is(err, os.ErrClosed)) {
		return nil
	}
	return err
}

func (t *MCPStdioTransport) Close() error {
	if c, ok := t.In.(io.Closer); ok {
		return c.Close()
	}
	return t.stdin.close()
}
