package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/output"
	"github.com/mj1618/ax-mcp/internal/protocol"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Send one request to a running server and print the response",
	Long: `Send a single request envelope to a running ax-mcp server over HTTP or a
Unix socket, and print the response envelope.

Methods: initialize, query_tree, get_node, perform_action, find_by_name.

Examples:
  ax-mcp call query_tree '{"max_depth":1}' --url http://127.0.0.1:7420
  ax-mcp call perform_action '{"node_id":"n-1a2b3c4d5e6f","action":{"type":"press"}}' --socket /tmp/ax-mcp-123.sock
  ax-mcp call find_by_name '{"name":"volume"}' --url http://127.0.0.1:7420 --format json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().String("url", "", "HTTP server address, e.g. http://127.0.0.1:7420 (the /mcp path is added if missing)")
	callCmd.Flags().String("socket", "", "Unix socket path of the server")
	callCmd.Flags().String("protocol-version", protocol.Version, "Protocol version to send")
	callCmd.Flags().String("id", "", "Request id echoed back by the server")
	callCmd.Flags().Duration("timeout", 10*time.Second, "Overall deadline for the call")
	callCmd.Flags().Int("retries", 0, "Times to retry a throttled request, waiting the server's retry hint")
}

// callResponse mirrors protocol.Response with printable fields.
type callResponse struct {
	ProtocolVersion string              `json:"protocol_version"         yaml:"protocol_version"`
	ID              any                 `json:"id,omitempty"             yaml:"id,omitempty"`
	Status          protocol.Status     `json:"status"                   yaml:"status"`
	Result          any                 `json:"result,omitempty"         yaml:"result,omitempty"`
	Error           *protocol.ErrorBody `json:"error,omitempty"          yaml:"error,omitempty"`
	RetryAfterMs    int64               `json:"retry_after_ms,omitempty" yaml:"retry_after_ms,omitempty"`
}

func runCall(cmd *cobra.Command, args []string) error {
	rawURL, _ := cmd.Flags().GetString("url")
	socket, _ := cmd.Flags().GetString("socket")
	version, _ := cmd.Flags().GetString("protocol-version")
	id, _ := cmd.Flags().GetString("id")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")

	send, err := sender(rawURL, socket)
	if err != nil {
		return err
	}
	body, err := buildRequest(version, id, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var resp callResponse
	for attempt := 0; ; attempt++ {
		raw, err := send(ctx, body)
		if err != nil {
			return err
		}
		resp = callResponse{}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if !throttled(resp) || attempt >= retries {
			break
		}
		select {
		case <-time.After(time.Duration(resp.RetryAfterMs) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := output.Print(resp); err != nil {
		return err
	}
	if resp.Status == protocol.StatusError && resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Category, resp.Error.Message)
	}
	return nil
}

func throttled(resp callResponse) bool {
	return resp.Error != nil && resp.Error.Category == model.CategoryThrottled && resp.RetryAfterMs > 0
}

// buildRequest encodes the envelope for method and its optional params.
func buildRequest(version, id string, args []string) ([]byte, error) {
	req := protocol.Request{ProtocolVersion: version, Method: args[0]}
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			return nil, fmt.Errorf("params must be a JSON object, got %q", args[1])
		}
		req.Params = json.RawMessage(args[1])
	}
	if id != "" {
		req.ID = json.RawMessage(strconv.Quote(id))
	}
	return json.Marshal(req)
}

type sendFunc func(ctx context.Context, body []byte) ([]byte, error)

func sender(rawURL, socket string) (sendFunc, error) {
	switch {
	case rawURL != "" && socket != "":
		return nil, errors.New("use either --url or --socket, not both")
	case rawURL != "":
		u, err := endpoint(rawURL)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, body []byte) ([]byte, error) { return sendHTTP(ctx, u, body) }, nil
	case socket != "":
		return func(ctx context.Context, body []byte) ([]byte, error) { return sendUnix(ctx, socket, body) }, nil
	}
	return nil, errors.New("--url or --socket is required")
}

// endpoint adds the /mcp path to a bare server address.
func endpoint(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid --url: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/mcp"
	}
	return u.String(), nil
}

func sendHTTP(ctx context.Context, u string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func sendUnix(ctx context.Context, path string, body []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(append(body, '\n')); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return bytes.TrimSpace(line), nil
}
