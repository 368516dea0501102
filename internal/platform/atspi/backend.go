//go:build linux

package atspi

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/godbus/dbus/v5"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
)

// textLimit caps how much of a Text interface is read into a node value.
const textLimit = 4096

// AT-SPI state bits (AtspiStateType).
const (
	stateEditable   = 7
	stateFocusable  = 11
	stateHorizontal = 14
	stateDefunct    = 6
	stateVertical   = 29
)

type states []uint32

func (s states) has(bit int) bool {
	word := bit / 32
	return word < len(s) && s[word]&(1<<(uint(bit)%32)) != 0
}

type actionInfo struct {
	Name        string
	Description string
	KeyBinding  string
}

type extents struct {
	X, Y, Width, Height int32
}

// Backend reads the host application's subtree from the AT-SPI registry.
// It is only used from the worker thread.
type Backend struct {
	pid  int
	log  *slog.Logger
	conn *dbus.Conn
	app  Ref
}

// NewBackend returns a backend for the application owned by pid. The bus
// connection is opened lazily by Root.
func NewBackend(pid int, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Backend{pid: pid, log: log.With("backend", backendName)}
}

func (b *Backend) Name() string { return backendName }

// Root finds the registry entry whose connection belongs to our process.
// Until the toolkit registers it, Root fails and the provider keeps retrying.
func (b *Backend) Root() (Ref, error) {
	if b.conn == nil {
		conn, err := dialA11yBus()
		if err != nil {
			return Ref{}, err
		}
		b.conn = conn
	}
	if b.app.Name != "" {
		return b.app, nil
	}

	apps, err := b.childRefs(Ref{Name: registryName, Path: rootPath})
	if err != nil {
		return Ref{}, err
	}
	for _, app := range apps {
		pid, err := b.ownerPID(app.Name)
		if err != nil {
			b.log.Debug("skipping registry entry", "app", app.Name, "err", err)
			continue
		}
		if pid == b.pid {
			b.app = app
			b.log.Debug("found application on accessibility bus", "bus_name", app.Name, "apps", len(apps))
			return app, nil
		}
	}
	return Ref{}, fmt.Errorf("process %d is not registered with AT-SPI (%d applications on the bus)", b.pid, len(apps))
}

func (b *Backend) ownerPID(name string) (int, error) {
	var pid uint32
	bus := Ref{Name: "org.freedesktop.DBus", Path: "/org/freedesktop/DBus"}
	if err := call(b.conn, bus, "org.freedesktop.DBus.GetConnectionUnixProcessID", []any{name}, &pid); err != nil {
		return 0, err
	}
	return int(pid), nil
}

func (b *Backend) Children(h Ref) ([]Ref, error) {
	return b.childRefs(h)
}

func (b *Backend) childRefs(h Ref) ([]Ref, error) {
	var count int32
	if err := property(b.conn, h, ifaceAccessible+".ChildCount", &count); err != nil {
		return nil, err
	}
	kids := make([]Ref, 0, count)
	for i := int32(0); i < count; i++ {
		var kid Ref
		if err := call(b.conn, h, ifaceAccessible+".GetChildAtIndex", []any{i}, &kid); err != nil {
			return nil, err
		}
		if kid.Path == "" || kid.Path == "/org/a11y/atspi/null" {
			continue
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

// element is everything read about one object for a snapshot or an action.
type element struct {
	role    model.Role
	ifaces  map[string]bool
	states  states
	actions []actionInfo
}

func (b *Backend) inspect(h Ref) (element, error) {
	var e element
	var role uint32
	if err := call(b.conn, h, ifaceAccessible+".GetRole", nil, &role); err != nil {
		return e, err
	}
	e.role = model.MapATSPIRole(role)

	var st []uint32
	if err := call(b.conn, h, ifaceAccessible+".GetState", nil, &st); err != nil {
		return e, err
	}
	e.states = st
	if e.states.has(stateDefunct) {
		return e, fmt.Errorf("%s is defunct: %w", h, model.ErrNotFound)
	}

	var ifaces []string
	if err := call(b.conn, h, ifaceAccessible+".GetInterfaces", nil, &ifaces); err != nil {
		return e, err
	}
	e.ifaces = make(map[string]bool, len(ifaces))
	for _, i := range ifaces {
		e.ifaces[i] = true
	}

	if e.ifaces[ifaceAction] {
		if err := call(b.conn, h, ifaceAction+".GetActions", nil, &e.actions); err != nil {
			return e, err
		}
	}
	return e, nil
}

func (b *Backend) Attributes(h Ref) (model.Attributes, error) {
	e, err := b.inspect(h)
	if err != nil {
		return model.Attributes{}, err
	}
	attrs := model.Attributes{Role: e.role, Actions: capabilities(e)}
	if err := property(b.conn, h, ifaceAccessible+".Name", &attrs.Name); err != nil {
		return attrs, err
	}
	if err := property(b.conn, h, ifaceAccessible+".Description", &attrs.Description); err != nil {
		return attrs, err
	}

	if e.ifaces[ifaceComponent] {
		var r extents
		if err := call(b.conn, h, ifaceComponent+".GetExtents", []any{uint32(0)}, &r); err == nil {
			attrs.Bounds = platform.Normalize(platform.Frame{
				X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height),
				Unit: model.UnitPixel,
			}, 0)
		}
	}

	switch {
	case e.ifaces[ifaceValue]:
		var v float64
		if err := property(b.conn, h, ifaceValue+".CurrentValue", &v); err == nil {
			attrs.Value = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case e.ifaces[ifaceText]:
		var text string
		if err := call(b.conn, h, ifaceText+".GetText", []any{int32(0), int32(textLimit)}, &text); err == nil {
			attrs.Value = text
		}
	}
	return attrs, nil
}

// IdentityKey is the full object reference; AT-SPI references are already
// unique per element.
func (b *Backend) IdentityKey(h Ref) string { return h.String() }

func (b *Backend) SameElement(x, y Ref) bool { return x == y }

func (b *Backend) Alive(h Ref) bool {
	if b.conn == nil {
		return false
	}
	var st []uint32
	err := call(b.conn, h, ifaceAccessible+".GetState", nil, &st)
	if err != nil {
		return model.CategoryOf(err) != model.CategoryNotFound
	}
	return !states(st).has(stateDefunct)
}

// Release is a no-op: references hold no server-side resources.
func (b *Backend) Release(Ref) {}

func (b *Backend) Reconnect() error {
	b.closeConn()
	conn, err := dialA11yBus()
	if err != nil {
		return err
	}
	b.conn = conn
	return nil
}

func (b *Backend) Close() error {
	b.closeConn()
	return nil
}

func (b *Backend) closeConn() {
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn = nil
	b.app = Ref{}
}
