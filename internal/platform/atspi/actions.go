//go:build linux

package atspi

import (
	"math"
	"strconv"
	"strings"

	"github.com/mj1618/ax-mcp/internal/model"
)

var pressNames = map[string]bool{
	"click":    true,
	"press":    true,
	"activate": true,
	"toggle":   true,
	"jump":     true,
}

var menuNames = map[string]bool{
	"showmenu":  true,
	"show menu": true,
	"menu":      true,
	"popup":     true,
}

// fromActionName maps a toolkit action name to an Action.
func fromActionName(name string) model.Action {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case pressNames[n]:
		return model.Press()
	case menuNames[n]:
		return model.ContextMenu()
	}
	return model.Custom(name)
}

// capabilities derives the advertised actions from an element's interfaces,
// states and Action entries.
func capabilities(e element) []model.Action {
	var out []model.Action
	for _, a := range e.actions {
		if a.Name != "" {
			out = append(out, fromActionName(a.Name))
		}
	}
	if e.ifaces[ifaceComponent] && e.states.has(stateFocusable) {
		out = append(out, model.Focus())
	}
	if e.ifaces[ifaceValue] {
		out = append(out, model.Increment(), model.Decrement(), model.SetValue(""))
	}
	if e.ifaces[ifaceEditableText] && e.states.has(stateEditable) {
		out = append(out, model.SetValue(""))
	}
	if e.role == model.RoleScrollArea {
		out = append(out, model.Scroll(0, 0))
	}
	return model.Capabilities(out...)
}

// actionIndex finds the Action-interface index that performs a.
func actionIndex(actions []actionInfo, a model.Action) int {
	for i, info := range actions {
		if fromActionName(info.Name).Matches(a) {
			return i
		}
	}
	return -1
}

type rangeValue struct {
	current, min, max, step float64
}

// stepped returns the value n steps away from current, clamped to the range.
// A zero increment falls back to a tenth of the range, or 1.
func (r rangeValue) stepped(n float64) float64 {
	step := r.step
	if step <= 0 {
		step = (r.max - r.min) / 10
	}
	if step <= 0 {
		step = 1
	}
	return r.clamp(r.current + n*step)
}

func (r rangeValue) clamp(v float64) float64 {
	if r.max > r.min {
		v = math.Max(r.min, math.Min(r.max, v))
	}
	return v
}

func (b *Backend) Perform(h Ref, action model.Action) error {
	e, err := b.inspect(h)
	if err != nil {
		return err
	}
	switch action.Type {
	case model.ActionFocus:
		return b.grabFocus(h)
	case model.ActionIncrement:
		return b.step(h, 1)
	case model.ActionDecrement:
		return b.step(h, -1)
	case model.ActionSetValue:
		return b.setValue(h, e, action.Value)
	case model.ActionScroll:
		return b.scroll(h, action.X, action.Y)
	}

	i := actionIndex(e.actions, action)
	if i < 0 {
		return model.Errorf(model.CategoryInvalidAction, "%s is not offered by this element", action)
	}
	var ok bool
	if err := call(b.conn, h, ifaceAction+".DoAction", []any{int32(i)}, &ok); err != nil {
		return err
	}
	if !ok {
		return model.Errorf(model.CategoryInvalidAction, "application rejected %s", action)
	}
	return nil
}

func (b *Backend) grabFocus(h Ref) error {
	var ok bool
	if err := call(b.conn, h, ifaceComponent+".GrabFocus", nil, &ok); err != nil {
		return err
	}
	if !ok {
		return model.Transient("application did not take focus", nil)
	}
	return nil
}

func (b *Backend) readRange(h Ref) (rangeValue, error) {
	var r rangeValue
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"CurrentValue", &r.current},
		{"MinimumValue", &r.min},
		{"MaximumValue", &r.max},
		{"MinimumIncrement", &r.step},
	} {
		if err := property(b.conn, h, ifaceValue+"."+p.name, p.dst); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (b *Backend) step(h Ref, n float64) error {
	r, err := b.readRange(h)
	if err != nil {
		return err
	}
	return setProperty(b.conn, h, ifaceValue+".CurrentValue", r.stepped(n))
}

func (b *Backend) setValue(h Ref, e element, text string) error {
	if e.ifaces[ifaceEditableText] {
		var ok bool
		if err := call(b.conn, h, ifaceEditableText+".SetTextContents", []any{text}, &ok); err != nil {
			return err
		}
		if !ok {
			return model.InvalidAction("application rejected the new text")
		}
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return model.Errorf(model.CategoryInvalidAction, "value %q is not a number", text)
	}
	r, err := b.readRange(h)
	if err != nil {
		return err
	}
	return setProperty(b.conn, h, ifaceValue+".CurrentValue", r.clamp(v))
}

// scroll moves the scroll bars under a scroll area. dy lines go to the
// vertical bar and dx to the horizontal one.
func (b *Backend) scroll(h Ref, dx, dy float64) error {
	if dx == 0 && dy == 0 {
		dy = 1
	}
	kids, err := b.childRefs(h)
	if err != nil {
		return err
	}
	moved := false
	for _, k := range kids {
		e, err := b.inspect(k)
		if err != nil || e.role != model.RoleScrollBar || !e.ifaces[ifaceValue] {
			continue
		}
		n := dy
		if e.states.has(stateHorizontal) && !e.states.has(stateVertical) {
			n = dx
		}
		if n == 0 {
			continue
		}
		if err := b.step(k, n); err != nil {
			return err
		}
		moved = true
	}
	if !moved {
		return model.InvalidAction("scroll area has no scroll bar in that direction")
	}
	return nil
}
