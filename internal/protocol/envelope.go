// Package protocol defines the transport-independent request/response
// envelope and its versioning rules.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mj1618/ax-mcp/internal/model"
)

// Version is the protocol version this server speaks.
const Version = "1.0"

// SupportedMajor is the only major version accepted.
const SupportedMajor = 1

// Method names.
const (
	MethodInitialize    = "initialize"
	MethodQueryTree     = "query_tree"
	MethodGetNode       = "get_node"
	MethodPerformAction = "perform_action"
	MethodFindByName    = "find_by_name"
)

// Methods lists the operations in the order initialize reports them.
var Methods = []string{MethodQueryTree, MethodGetNode, MethodPerformAction, MethodFindByName}

// Request is one client request. ID is optional and echoed back verbatim so
// clients can match responses on a shared connection.
type Request struct {
	ProtocolVersion string          `json:"protocol_version"`
	ID              json.RawMessage `json:"id,omitempty"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Status is the outcome tag of a Response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorBody is the structured error of a failed request.
type ErrorBody struct {
	Category model.Category `json:"category" yaml:"category"`
	Message  string         `json:"message"  yaml:"message"`
}

// Response is the single reply to a Request.
type Response struct {
	ProtocolVersion string          `json:"protocol_version"`
	ID              json.RawMessage `json:"id,omitempty"`
	Status          Status          `json:"status"`
	Result          any             `json:"result,omitempty"`
	Error           *ErrorBody      `json:"error,omitempty"`
	RetryAfterMs    int64           `json:"retry_after_ms,omitempty"`
}

// Success builds a success response.
func Success(id json.RawMessage, result any) Response {
	return Response{ProtocolVersion: Version, ID: id, Status: StatusSuccess, Result: result}
}

// Failure builds an error response from err's category and message.
func Failure(id json.RawMessage, err error) Response {
	return Response{
		ProtocolVersion: Version,
		ID:              id,
		Status:          StatusError,
		Error:           &ErrorBody{Category: model.CategoryOf(err), Message: model.MessageOf(err)},
	}
}

// ParseRequest decodes one request.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&req); err != nil {
		return Request{}, model.Errorf(model.CategoryInvalidAction, "malformed request: %v", err)
	}
	return req, nil
}

// CheckVersion accepts any 1.x version and rejects everything else.
func CheckVersion(v string) error {
	if v == "" {
		return model.Errorf(model.CategoryVersionMismatch, "protocol_version is required (server speaks %s)", Version)
	}
	majorStr, _, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return model.Errorf(model.CategoryVersionMismatch, "malformed protocol_version %q", v)
	}
	if major != SupportedMajor {
		return model.Errorf(model.CategoryVersionMismatch, "unsupported protocol version %s (server speaks %s)", v, Version)
	}
	return nil
}

// DecodeParams unmarshals raw params into v. Missing or null params leave v
// at its zero value. Unknown fields are ignored for minor-version
// compatibility.
func DecodeParams(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return model.InvalidAction(fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}
