package output

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/protocol"
)

// capture runs fn with stdout redirected and returns what it wrote.
func capture(t *testing.T, fn func() error) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := fn()
	w.Close()
	os.Stdout = old

	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func sampleNode() model.Node {
	return model.Node{
		ID:       "n-0a1b2c3d4e5f",
		Role:     model.RoleButton,
		Name:     "OK",
		Bounds:   &model.Rect{X: 10, Y: 20, Width: 100, Height: 30, Unit: model.UnitPixel},
		Actions:  []model.Action{model.Press()},
		Children: []model.NodeID{},
	}
}

func TestPrintYAML(t *testing.T) {
	out := capture(t, func() error {
		return PrintYAML(protocol.NodeResult{Node: sampleNode()})
	})

	// YAML output should be multi-line
	if strings.Count(out, "\n") <= 1 {
		t.Errorf("YAML output should be multi-line, got:\n%s", out)
	}

	var decoded struct {
		Node struct {
			ID      string `yaml:"id"`
			Role    string `yaml:"role"`
			Actions []struct {
				Type string `yaml:"type"`
			} `yaml:"actions"`
		} `yaml:"node"`
	}
	if err := yaml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded.Node.Role != "button" {
		t.Errorf("role: got %q, want %q", decoded.Node.Role, "button")
	}
	if len(decoded.Node.Actions) != 1 || decoded.Node.Actions[0].Type != "press" {
		t.Errorf("actions: got %+v", decoded.Node.Actions)
	}
}

func TestPrint_UsesOutputFormat(t *testing.T) {
	defer func(f Format) { OutputFormat = f }(OutputFormat)

	OutputFormat = FormatJSON
	out := capture(t, func() error { return Print(protocol.ActionResult{Success: true}) })
	if out != "{\"success\":true}\n" {
		t.Errorf("json: got %q", out)
	}

	OutputFormat = FormatYAML
	out = capture(t, func() error { return Print(protocol.ActionResult{Success: true}) })
	if out != "success: true\n" {
		t.Errorf("yaml: got %q", out)
	}

	OutputFormat = "xml"
	if err := Print(protocol.ActionResult{}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"agent", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	// Empty picks a format based on stdout; either is acceptable here.
	if f, err := ParseFormat(""); err != nil || (f != FormatYAML && f != FormatJSON) {
		t.Errorf("ParseFormat(\"\") = %q, %v", f, err)
	}
}
