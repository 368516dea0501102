//go:build windows

package uia

import (
	"math"
	"strconv"
	"strings"
	"unsafe"

	"github.com/go-ole/go-ole"

	"github.com/mj1618/ax-mcp/internal/model"
)

// UI Automation pattern ids.
const (
	patternInvoke         = 10000
	patternValue          = 10002
	patternRangeValue     = 10003
	patternScroll         = 10004
	patternExpandCollapse = 10005
	patternToggle         = 10015
)

// Pattern vtable slots. Every pattern's first method is its main verb.
const (
	slotInvoke           = 3
	slotValueSetValue    = 3
	slotValueCurrent     = 4
	slotValueIsReadOnly  = 5
	slotRangeSetValue    = 3
	slotRangeCurrent     = 4
	slotRangeIsReadOnly  = 5
	slotRangeMaximum     = 6
	slotRangeMinimum     = 7
	slotRangeSmallChange = 9
	slotScroll           = 3
	slotExpand           = 3
	slotCollapse         = 4
	slotToggle           = 3
)

// ScrollAmount values.
const (
	scrollSmallDecrement = 1
	scrollNoAmount       = 2
	scrollSmallIncrement = 4
)

// maxScrollSteps bounds how many line steps one scroll action sends.
const maxScrollSteps = 50

const (
	actionExpand   = "expand"
	actionCollapse = "collapse"
)

type patterns struct {
	invoke, value, rangeValue, scroll, expand, toggle *ole.IUnknown
}

func (b *Backend) patterns(h *element) patterns {
	get := func(id int32) *ole.IUnknown {
		var p *ole.IUnknown
		if err := invoke(h.unk, slotGetCurrentPattern, "GetCurrentPattern", uintptr(id), uintptr(unsafe.Pointer(&p))); err != nil {
			return nil
		}
		return p
	}
	return patterns{
		invoke:     get(patternInvoke),
		value:      get(patternValue),
		rangeValue: get(patternRangeValue),
		scroll:     get(patternScroll),
		expand:     get(patternExpandCollapse),
		toggle:     get(patternToggle),
	}
}

func (p patterns) release() {
	for _, u := range []*ole.IUnknown{p.invoke, p.value, p.rangeValue, p.scroll, p.expand, p.toggle} {
		release(u)
	}
}

func (p patterns) value() string {
	if p.rangeValue != nil {
		if v, err := doubleProp(p.rangeValue, slotRangeCurrent, "RangeValue.CurrentValue"); err == nil {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if p.value != nil {
		if v, err := bstr(p.value, slotValueCurrent, "Value.CurrentValue"); err == nil {
			return v
		}
	}
	return ""
}

func (p patterns) actions() []model.Action {
	var out []model.Action
	if p.invoke != nil || p.toggle != nil {
		out = append(out, model.Press())
	}
	if p.rangeValue != nil {
		if ro, err := boolProp(p.rangeValue, slotRangeIsReadOnly, "RangeValue.IsReadOnly"); err == nil && !ro {
			out = append(out, model.Increment(), model.Decrement(), model.SetValue(""))
		}
	} else if p.value != nil {
		if ro, err := boolProp(p.value, slotValueIsReadOnly, "Value.IsReadOnly"); err == nil && !ro {
			out = append(out, model.SetValue(""))
		}
	}
	if p.scroll != nil {
		out = append(out, model.Scroll(0, 0))
	}
	if p.expand != nil {
		out = append(out, model.Custom(actionExpand), model.Custom(actionCollapse))
	}
	return out
}

func doubleProp(obj *ole.IUnknown, slot int, op string) (float64, error) {
	var v float64
	if err := invoke(obj, slot, op, uintptr(unsafe.Pointer(&v))); err != nil {
		return 0, err
	}
	return v, nil
}

func (b *Backend) Perform(h *element, action model.Action) error {
	if h.isRoot() {
		return model.InvalidAction("the application root has no actions")
	}
	if action.Type == model.ActionFocus {
		return invoke(h.unk, slotSetFocus, "SetFocus")
	}
	p := b.patterns(h)
	defer p.release()

	switch action.Type {
	case model.ActionPress:
		if p.invoke != nil {
			return invoke(p.invoke, slotInvoke, "Invoke")
		}
		if p.toggle != nil {
			return invoke(p.toggle, slotToggle, "Toggle")
		}
	case model.ActionIncrement, model.ActionDecrement:
		if p.rangeValue != nil {
			dir := 1.0
			if action.Type == model.ActionDecrement {
				dir = -1
			}
			return stepRange(p.rangeValue, dir)
		}
	case model.ActionSetValue:
		if p.rangeValue != nil {
			v, err := strconv.ParseFloat(strings.TrimSpace(action.Value), 64)
			if err != nil {
				return model.Errorf(model.CategoryInvalidAction, "value %q is not a number", action.Value)
			}
			return setRange(p.rangeValue, v)
		}
		if p.value != nil {
			s := ole.SysAllocString(action.Value)
			defer ole.SysFreeString(s)
			return invoke(p.value, slotValueSetValue, "Value.SetValue", uintptr(unsafe.Pointer(s)))
		}
	case model.ActionScroll:
		if p.scroll != nil {
			return scrollBy(p.scroll, action.X, action.Y)
		}
	case model.ActionCustom:
		if p.expand != nil && action.Name == actionExpand {
			return invoke(p.expand, slotExpand, "Expand")
		}
		if p.expand != nil && action.Name == actionCollapse {
			return invoke(p.expand, slotCollapse, "Collapse")
		}
	}
	return model.Errorf(model.CategoryInvalidAction, "%s is not available on this element", action)
}

type rangeBounds struct {
	min, max, step float64
}

// next returns current moved by dir steps and clamped. A zero small change
// falls back to a tenth of the range.
func (r rangeBounds) next(current, dir float64) float64 {
	step := r.step
	if step <= 0 {
		step = (r.max - r.min) / 10
	}
	if step <= 0 {
		step = 1
	}
	return r.clamp(current + dir*step)
}

func (r rangeBounds) clamp(v float64) float64 {
	if r.max > r.min {
		v = math.Max(r.min, math.Min(r.max, v))
	}
	return v
}

func readBounds(rv *ole.IUnknown) (rangeBounds, error) {
	var r rangeBounds
	var err error
	if r.min, err = doubleProp(rv, slotRangeMinimum, "RangeValue.Minimum"); err != nil {
		return r, err
	}
	if r.max, err = doubleProp(rv, slotRangeMaximum, "RangeValue.Maximum"); err != nil {
		return r, err
	}
	r.step, err = doubleProp(rv, slotRangeSmallChange, "RangeValue.SmallChange")
	return r, err
}

func stepRange(rv *ole.IUnknown, dir float64) error {
	r, err := readBounds(rv)
	if err != nil {
		return err
	}
	cur, err := doubleProp(rv, slotRangeCurrent, "RangeValue.CurrentValue")
	if err != nil {
		return err
	}
	return invoke(rv, slotRangeSetValue, "RangeValue.SetValue", uintptr(math.Float64bits(r.next(cur, dir))))
}

func setRange(rv *ole.IUnknown, v float64) error {
	r, err := readBounds(rv)
	if err != nil {
		return err
	}
	return invoke(rv, slotRangeSetValue, "RangeValue.SetValue", uintptr(math.Float64bits(r.clamp(v))))
}

// scrollSteps turns a line delta into a ScrollAmount and a repeat count.
// Positive deltas scroll down or right.
func scrollSteps(delta float64) (amount uintptr, count int) {
	n := int(math.Round(math.Abs(delta)))
	if n == 0 {
		return scrollNoAmount, 0
	}
	if n > maxScrollSteps {
		n = maxScrollSteps
	}
	if delta > 0 {
		return scrollSmallIncrement, n
	}
	return scrollSmallDecrement, n
}

func scrollBy(sp *ole.IUnknown, dx, dy float64) error {
	if dx == 0 && dy == 0 {
		dy = 1
	}
	hAmount, hCount := scrollSteps(dx)
	vAmount, vCount := scrollSteps(dy)
	for i := 0; i < max(hCount, vCount); i++ {
		h, v := uintptr(scrollNoAmount), uintptr(scrollNoAmount)
		if i < hCount {
			h = hAmount
		}
		if i < vCount {
			v = vAmount
		}
		if err := invoke(sp, slotScroll, "Scroll", h, v); err != nil {
			return err
		}
	}
	return nil
}
