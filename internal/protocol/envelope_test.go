package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mj1618/ax-mcp/internal/model"
)

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{"1.0", false},
		{"1.7", false},
		{"1", false},
		{"1.0.3", false},
		{"9.0", true},
		{"0.9", true},
		{"", true},
		{"one.zero", true},
	}
	for _, tt := range tests {
		err := CheckVersion(tt.version)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckVersion(%q) = %v, wantErr %v", tt.version, err, tt.wantErr)
		}
		if err != nil && model.CategoryOf(err) != model.CategoryVersionMismatch {
			t.Errorf("CheckVersion(%q) category = %s", tt.version, model.CategoryOf(err))
		}
	}
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"protocol_version":"1.0","id":7,"method":"get_node","params":{"node_id":"n-1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != MethodGetNode || string(req.ID) != "7" {
		t.Fatalf("unexpected request %+v", req)
	}
	var p GetNodeParams
	if err := DecodeParams(req.Params, &p); err != nil {
		t.Fatal(err)
	}
	if p.NodeID != "n-1" {
		t.Errorf("node_id = %q", p.NodeID)
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	_, err := ParseRequest([]byte(`{"method":`))
	if model.CategoryOf(err) != model.CategoryInvalidAction {
		t.Errorf("expected InvalidAction, got %v", err)
	}
}

func TestDecodeParams(t *testing.T) {
	var q QueryTreeParams
	if err := DecodeParams(nil, &q); err != nil {
		t.Errorf("missing params: %v", err)
	}
	if err := DecodeParams(json.RawMessage(" null "), &q); err != nil {
		t.Errorf("null params: %v", err)
	}
	if err := DecodeParams(json.RawMessage(`{"max_depth":1,"future_field":true}`), &q); err != nil {
		t.Errorf("unknown fields should be ignored: %v", err)
	}
	if q.MaxDepth == nil || *q.MaxDepth != 1 {
		t.Errorf("max_depth = %v", q.MaxDepth)
	}

	var a PerformActionParams
	err := DecodeParams(json.RawMessage(`{"node_id":"n-1","action":{"type":"warp"}}`), &a)
	if model.CategoryOf(err) != model.CategoryInvalidAction {
		t.Errorf("unknown action type should be InvalidAction, got %v", err)
	}
}

func TestResponseWireForm(t *testing.T) {
	data, err := json.Marshal(Failure(nil, model.NotFound("n-9")))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"protocol_version":"1.0","status":"error","error":{"category":"NotFound","message":"node n-9 not found"}}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}

	data, err = json.Marshal(Success(json.RawMessage(`"abc"`), ActionResult{Success: true}))
	if err != nil {
		t.Fatal(err)
	}
	want = `{"protocol_version":"1.0","id":"abc","status":"success","result":{"success":true}}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestFailure_UncategorisedIsInternal(t *testing.T) {
	resp := Failure(nil, errors.New("kaboom"))
	if resp.Error.Category != model.CategoryInternal || resp.Error.Message != "kaboom" {
		t.Errorf("unexpected error body %+v", resp.Error)
	}
}
