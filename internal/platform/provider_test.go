package platform_test

import (
	"errors"
	"testing"

	"github.com/mj1618/ax-mcp/internal/platform"
	_ "github.com/mj1618/ax-mcp/internal/platform/mock"
)

func TestNew_MockBackend(t *testing.T) {
	p, err := platform.New(platform.Options{Backend: "mock"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.Name() != "mock" {
		t.Errorf("Name() = %q", p.Name())
	}
	root, err := p.Root()
	if err != nil {
		t.Fatal(err)
	}
	if root.Name != "Demo" {
		t.Errorf("root name = %q", root.Name)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := platform.New(platform.Options{Backend: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNew_UnsupportedPlatform(t *testing.T) {
	orig := platform.NativeBackend
	platform.NativeBackend = ""
	defer func() { platform.NativeBackend = orig }()

	_, err := platform.New(platform.Options{})
	if !errors.Is(err, platform.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got: %v", err)
	}
}

func TestBackends_ListsMock(t *testing.T) {
	found := false
	for _, name := range platform.Backends() {
		if name == "mock" {
			found = true
		}
	}
	if !found {
		t.Errorf("mock backend not registered: %v", platform.Backends())
	}
}

func TestHooksFor(t *testing.T) {
	called := false
	platform.RegisterThreadHooks("hooked-test", platform.ThreadHooks{Init: func() error { called = true; return nil }})

	h := platform.HooksFor("hooked-test")
	if h.Init == nil {
		t.Fatal("expected Init hook")
	}
	if err := h.Init(); err != nil || !called {
		t.Errorf("Init() = %v, called = %v", err, called)
	}
	if h := platform.HooksFor("mock"); h.Init != nil || h.Teardown != nil {
		t.Error("mock backend has no thread hooks")
	}
}
