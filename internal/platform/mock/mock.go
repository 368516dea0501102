// Package mock provides an in-memory accessibility backend. It is used by the
// tests and by `ax-mcp serve --backend mock`.
package mock

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
)

const backendName = "mock"

func init() {
	platform.Register(backendName, func(opts platform.Options) (platform.Provider, error) {
		return NewProvider(New(DemoTree()), opts), nil
	})
}

// NewProvider wraps b in a platform.Tree.
func NewProvider(b *Backend, opts platform.Options) *platform.Tree[*Element] {
	return platform.NewTree[*Element](b, platform.TreeOptions{
		BootstrapTimeout: opts.BootstrapTimeout,
		Logger:           opts.Logger,
		Cache:            opts.CacheOptions(),
	})
}

var serial atomic.Uint64

// Element is one node of the in-memory tree.
type Element struct {
	Role        model.Role
	Name        string
	Value       string
	Description string
	Bounds      *model.Rect
	Actions     []model.Action

	// Range semantics for sliders and spin buttons.
	Min, Max, Step float64

	Children []*Element

	key     string
	parent  *Element
	removed bool
	presses int
}

func newElement(role model.Role, name string, actions []model.Action, children ...*Element) *Element {
	e := &Element{
		Role:    role,
		Name:    name,
		Actions: actions,
		key:     strconv.FormatUint(serial.Add(1), 10),
	}
	for _, c := range children {
		c.parent = e
	}
	e.Children = children
	return e
}

// App builds an application root.
func App(name string, children ...*Element) *Element {
	return newElement(model.RoleApplication, name, nil, children...)
}

// Window builds a window.
func Window(name string, children ...*Element) *Element {
	return newElement(model.RoleWindow, name, []model.Action{model.Focus()}, children...)
}

// Group builds a generic container.
func Group(name string, children ...*Element) *Element {
	return newElement(model.RoleGroup, name, nil, children...)
}

// Button builds a button supporting focus and press.
func Button(name string) *Element {
	return newElement(model.RoleButton, name, []model.Action{model.Focus(), model.Press()})
}

// Slider builds a slider supporting focus, increment, decrement and
// set_value.
func Slider(name string, value, min, max, step float64) *Element {
	e := newElement(model.RoleSlider, name, []model.Action{
		model.Focus(), model.Increment(), model.Decrement(), model.SetValue(""),
	})
	e.Min, e.Max, e.Step = min, max, step
	e.Value = formatNumber(value)
	return e
}

// TextField builds an editable text field.
func TextField(name, value string) *Element {
	e := newElement(model.RoleTextField, name, []model.Action{model.Focus(), model.SetValue("")})
	e.Value = value
	return e
}

// PasswordField builds a secure text field.
func PasswordField(name, value string) *Element {
	e := TextField(name, value)
	e.Role = model.RolePasswordField
	return e
}

// Text builds a static label.
func Text(value string) *Element {
	e := newElement(model.RoleStaticText, value, nil)
	e.Value = value
	return e
}

// List builds a scrollable list.
func List(name string, items ...*Element) *Element {
	return newElement(model.RoleList, name, []model.Action{model.Focus(), model.Scroll(0, 0)}, items...)
}

// Item builds a list item.
func Item(name string) *Element {
	return newElement(model.RoleListItem, name, []model.Action{model.Focus(), model.Press(), model.ContextMenu()})
}

// WithBounds sets the element's frame in pixels and returns it.
func (e *Element) WithBounds(x, y, w, h float64) *Element {
	e.Bounds = platform.Normalize(platform.Frame{X: x, Y: y, Width: w, Height: h, Unit: model.UnitPixel}, 0)
	return e
}

// WithActions adds actions to the element and returns it.
func (e *Element) WithActions(actions ...model.Action) *Element {
	e.Actions = append(e.Actions, actions...)
	return e
}

// Presses reports how many times the element was pressed.
func (e *Element) Presses() int { return e.presses }

// DemoTree is the tree served by the mock backend when no other is supplied.
func DemoTree() *Element {
	items := make([]*Element, 0, 20)
	for i := 1; i <= 20; i++ {
		items = append(items, Item(fmt.Sprintf("Item %d", i)))
	}
	return App("Demo",
		Window("Main",
			Group("Toolbar",
				Button("Save").WithBounds(10, 10, 80, 24),
				Button("Open").WithBounds(100, 10, 80, 24),
			),
			Slider("Volume", 5, 0, 10, 1).WithBounds(10, 50, 200, 20),
			TextField("Username", "").WithBounds(10, 80, 200, 24),
			PasswordField("Password", "hunter2").WithBounds(10, 110, 200, 24),
			List("Results", items...).WithBounds(10, 140, 300, 400),
			Text("Ready"),
		).WithBounds(0, 0, 800, 600),
	)
}

// Call identifies a backend entry point for fault injection.
type Call string

const (
	CallRoot       Call = "root"
	CallChildren   Call = "children"
	CallAttributes Call = "attributes"
	CallPerform    Call = "perform"
	CallReconnect  Call = "reconnect"
)

// Performed records one action that reached the backend.
type Performed struct {
	Element string
	Action  model.Action
}

// Backend is an in-memory platform.Backend. It is safe to mutate the tree
// from a test goroutine while the worker reads it.
type Backend struct {
	mu        sync.Mutex
	root      *Element
	faults    map[Call][]error
	rootDelay int
	delay     time.Duration
	lost      bool
	closed    bool
	calls     map[Call]int
	performed []Performed
	released  int
	reconnect int
}

// New returns a backend serving root.
func New(root *Element) *Backend {
	return &Backend{
		root:   root,
		faults: make(map[Call][]error),
		calls:  make(map[Call]int),
	}
}

func (b *Backend) Name() string { return backendName }

// Inject queues errs to be returned, one per call, by the next calls of c.
func (b *Backend) Inject(c Call, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[c] = append(b.faults[c], errs...)
}

// RegisterRootAfter makes the first n Root calls report that the tree is not
// registered yet.
func (b *Backend) RegisterRootAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rootDelay = n
}

// SetDelay makes every call sleep for d.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// DropConnection makes every call fail with a lost connection until Reconnect.
func (b *Backend) DropConnection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lost = true
}

// Calls reports how many times c was invoked.
func (b *Backend) Calls(c Call) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[c]
}

// Performed returns every action that reached the backend.
func (b *Backend) Performed() []Performed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Performed(nil), b.performed...)
}

// Reconnects reports how many times Reconnect was called.
func (b *Backend) Reconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reconnect
}

// Released reports how many handles the identity cache gave back.
func (b *Backend) Released() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Remove detaches e from the tree. Its handles stop being alive.
func (b *Backend) Remove(e *Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p := e.parent; p != nil {
		for i, c := range p.Children {
			if c == e {
				p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
				break
			}
		}
	}
	markRemoved(e)
}

// Append adds child under parent.
func (b *Backend) Append(parent, child *Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	child.parent = parent
	parent.Children = append(parent.Children, child)
}

// Update runs fn with the tree locked.
func (b *Backend) Update(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

func markRemoved(e *Element) {
	e.removed = true
	for _, c := range e.Children {
		markRemoved(c)
	}
}

// enter records the call and returns the injected fault, if any. Callers hold
// b.mu.
func (b *Backend) enter(c Call) error {
	b.calls[c]++
	if b.delay > 0 {
		d := b.delay
		b.mu.Unlock()
		time.Sleep(d)
		b.mu.Lock()
	}
	if b.closed {
		return fmt.Errorf("mock backend closed: %w", model.ErrConnectionLost)
	}
	if b.lost {
		return fmt.Errorf("mock bus disconnected: %w", model.ErrConnectionLost)
	}
	if q := b.faults[c]; len(q) > 0 {
		b.faults[c] = q[1:]
		return q[0]
	}
	return nil
}

func (b *Backend) Root() (*Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(CallRoot); err != nil {
		return nil, err
	}
	if b.rootDelay > 0 {
		b.rootDelay--
		return nil, fmt.Errorf("application tree not registered yet")
	}
	if b.root == nil || b.root.removed {
		return nil, fmt.Errorf("application tree not registered")
	}
	return b.root, nil
}

func (b *Backend) Children(h *Element) ([]*Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(CallChildren); err != nil {
		return nil, err
	}
	if h.removed {
		return nil, model.ErrNotFound
	}
	return append([]*Element(nil), h.Children...), nil
}

func (b *Backend) Attributes(h *Element) (model.Attributes, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(CallAttributes); err != nil {
		return model.Attributes{}, err
	}
	if h.removed {
		return model.Attributes{}, model.ErrNotFound
	}
	var bounds *model.Rect
	if h.Bounds != nil {
		r := *h.Bounds
		bounds = &r
	}
	return model.Attributes{
		Role:        h.Role,
		Name:        h.Name,
		Value:       h.Value,
		Description: h.Description,
		Bounds:      bounds,
		Actions:     append([]model.Action(nil), h.Actions...),
	}, nil
}

func (b *Backend) Perform(h *Element, a model.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(CallPerform); err != nil {
		return err
	}
	if h.removed {
		return model.ErrNotFound
	}
	b.performed = append(b.performed, Performed{Element: h.Name, Action: a})
	switch a.Type {
	case model.ActionPress:
		h.presses++
	case model.ActionIncrement:
		return h.step(1)
	case model.ActionDecrement:
		return h.step(-1)
	case model.ActionSetValue:
		if h.Role == model.RoleSlider || h.Role == model.RoleSpinButton {
			v, err := strconv.ParseFloat(a.Value, 64)
			if err != nil {
				return model.InvalidAction(fmt.Sprintf("%q is not a number", a.Value))
			}
			h.Value = formatNumber(h.clamp(v))
			return nil
		}
		h.Value = a.Value
	}
	return nil
}

func (e *Element) step(dir float64) error {
	v, err := strconv.ParseFloat(e.Value, 64)
	if err != nil {
		return fmt.Errorf("element %q has non-numeric value %q", e.Name, e.Value)
	}
	step := e.Step
	if step == 0 {
		step = 1
	}
	e.Value = formatNumber(e.clamp(v + dir*step))
	return nil
}

func (e *Element) clamp(v float64) float64 {
	if e.Max > e.Min {
		v = max(e.Min, min(e.Max, v))
	}
	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (b *Backend) IdentityKey(h *Element) string { return h.key }

func (b *Backend) SameElement(x, y *Element) bool { return x == y }

func (b *Backend) Alive(h *Element) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !h.removed && !b.closed
}

func (b *Backend) Release(*Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released++
}

func (b *Backend) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnect++
	if q := b.faults[CallReconnect]; len(q) > 0 {
		b.faults[CallReconnect] = q[1:]
		return q[0]
	}
	b.lost = false
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
