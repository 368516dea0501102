//go:build windows

package uia

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
)

const rootKey = "root"

// element is a UI Automation element, or the synthetic root when unk is nil.
// rid is the element's runtime id rendered as a string.
type element struct {
	unk *ole.IUnknown
	rid string
}

func (e *element) isRoot() bool { return e.unk == nil }

// Backend reads the host process's windows through UI Automation. It must
// only be used from the COM apartment thread that created it.
type Backend struct {
	pid    uint32
	log    *slog.Logger
	auto   *ole.IUnknown
	walker *ole.IUnknown
}

// NewBackend creates the automation object. It must run on a thread that has
// entered a COM apartment.
func NewBackend(log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	b := &Backend{pid: windows.GetCurrentProcessId(), log: log.With("backend", backendName)}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) connect() error {
	auto, err := ole.CreateInstance(clsidCUIAutomation, iidIUIAutomation)
	if err != nil {
		return model.Unavailable("creating CUIAutomation", err)
	}
	var walker *ole.IUnknown
	if err := invoke(auto, slotControlViewWalker, "ControlViewWalker", uintptr(unsafe.Pointer(&walker))); err != nil {
		auto.Release()
		return err
	}
	b.auto, b.walker = auto, walker
	return nil
}

func (b *Backend) Name() string { return backendName }

// Root returns the synthetic root once the process owns a visible window.
func (b *Backend) Root() (*element, error) {
	if len(topLevelWindows(b.pid)) == 0 {
		return nil, fmt.Errorf("process %d has no visible top-level windows yet", b.pid)
	}
	return &element{rid: rootKey}, nil
}

func (b *Backend) Children(h *element) ([]*element, error) {
	if h.isRoot() {
		return b.windows()
	}
	var kids []*element
	var cur *ole.IUnknown
	if err := invoke(b.walker, slotGetFirstChildElement, "GetFirstChildElement",
		uintptr(unsafe.Pointer(h.unk)), uintptr(unsafe.Pointer(&cur))); err != nil {
		return nil, err
	}
	for cur != nil {
		kid, err := b.wrap(cur)
		if err != nil {
			releaseAll(kids)
			return nil, err
		}
		kids = append(kids, kid)
		var next *ole.IUnknown
		if err := invoke(b.walker, slotGetNextSiblingElem, "GetNextSiblingElement",
			uintptr(unsafe.Pointer(cur)), uintptr(unsafe.Pointer(&next))); err != nil {
			releaseAll(kids)
			return nil, err
		}
		cur = next
	}
	return kids, nil
}

func (b *Backend) windows() ([]*element, error) {
	var kids []*element
	for _, hwnd := range topLevelWindows(b.pid) {
		var unk *ole.IUnknown
		if err := invoke(b.auto, slotElementFromHandle, "ElementFromHandle",
			uintptr(hwnd), uintptr(unsafe.Pointer(&unk))); err != nil {
			if model.CategoryOf(err) == model.CategoryNotFound {
				continue
			}
			releaseAll(kids)
			return nil, err
		}
		kid, err := b.wrap(unk)
		if err != nil {
			releaseAll(kids)
			return nil, err
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

// wrap takes ownership of unk and reads its runtime id.
func (b *Backend) wrap(unk *ole.IUnknown) (*element, error) {
	var sa *ole.SafeArray
	if err := invoke(unk, slotGetRuntimeID, "GetRuntimeId", uintptr(unsafe.Pointer(&sa))); err != nil {
		unk.Release()
		return nil, err
	}
	var parts []int32
	if sa != nil {
		conv := ole.SafeArrayConversion{Array: sa}
		for _, v := range conv.ToValueArray() {
			if n, ok := v.(int32); ok {
				parts = append(parts, n)
			}
		}
		conv.Release()
	}
	return &element{unk: unk, rid: runtimeKey(parts)}, nil
}

func runtimeKey(parts []int32) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.FormatInt(int64(p), 10)
	}
	return strings.Join(s, ".")
}

func releaseAll(els []*element) {
	for _, e := range els {
		release(e.unk)
	}
}

func (b *Backend) Attributes(h *element) (model.Attributes, error) {
	if h.isRoot() {
		return model.Attributes{Role: model.RoleApplication, Name: processName()}, nil
	}
	var controlType int32
	if err := invoke(h.unk, slotCurrentControlType, "CurrentControlType", uintptr(unsafe.Pointer(&controlType))); err != nil {
		return model.Attributes{}, err
	}
	attrs := model.Attributes{Role: model.MapUIAControlType(controlType)}

	var err error
	if attrs.Name, err = bstr(h.unk, slotCurrentName, "CurrentName"); err != nil {
		return attrs, err
	}
	if attrs.Description, err = bstr(h.unk, slotCurrentHelpText, "CurrentHelpText"); err != nil {
		return attrs, err
	}
	if password, err := boolProp(h.unk, slotCurrentIsPassword, "CurrentIsPassword"); err == nil && password {
		attrs.Role = model.RolePasswordField
	}

	var r windows.Rect
	if err := invoke(h.unk, slotCurrentBoundingRectangle, "CurrentBoundingRectangle", uintptr(unsafe.Pointer(&r))); err == nil {
		attrs.Bounds = platform.Normalize(platform.FrameFromEdges(
			float64(r.Left), float64(r.Top), float64(r.Right), float64(r.Bottom), model.UnitPixel), 0)
	}

	if focusable, err := boolProp(h.unk, slotCurrentIsKeyboardFocusable, "CurrentIsKeyboardFocusable"); err == nil && focusable {
		attrs.Actions = append(attrs.Actions, model.Focus())
	}
	p := b.patterns(h)
	defer p.release()
	attrs.Value = p.value()
	attrs.Actions = append(attrs.Actions, p.actions()...)
	return attrs, nil
}

// IdentityKey is the runtime id, which UI Automation keeps unique per element
// for its lifetime.
func (b *Backend) IdentityKey(h *element) string { return h.rid }

func (b *Backend) SameElement(x, y *element) bool { return x.rid == y.rid }

func (b *Backend) Alive(h *element) bool {
	if h.isRoot() {
		return true
	}
	var controlType int32
	err := invoke(h.unk, slotCurrentControlType, "CurrentControlType", uintptr(unsafe.Pointer(&controlType)))
	return model.CategoryOf(err) != model.CategoryNotFound
}

func (b *Backend) Release(h *element) {
	release(h.unk)
	h.unk = nil
}

// Reconnect recreates the automation object.
func (b *Backend) Reconnect() error {
	b.disconnect()
	return b.connect()
}

func (b *Backend) Close() error {
	b.disconnect()
	return nil
}

func (b *Backend) disconnect() {
	release(b.walker)
	release(b.auto)
	b.walker, b.auto = nil, nil
}

func processName() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
}

var (
	enumOnce sync.Once
	enumProc uintptr
)

type windowCollector struct {
	pid  uint32
	hwnd []windows.HWND
}

// topLevelWindows lists the visible top-level windows owned by pid.
func topLevelWindows(pid uint32) []windows.HWND {
	enumOnce.Do(func() {
		enumProc = windows.NewCallback(func(hwnd windows.HWND, param uintptr) uintptr {
			c := (*windowCollector)(unsafe.Pointer(param))
			var owner uint32
			if _, err := windows.GetWindowThreadProcessId(hwnd, &owner); err == nil && owner == c.pid && windows.IsWindowVisible(hwnd) {
				c.hwnd = append(c.hwnd, hwnd)
			}
			return 1
		})
	})
	c := &windowCollector{pid: pid}
	_ = windows.EnumWindows(enumProc, unsafe.Pointer(c))
	return c.hwnd
}
