//go:build windows

package uia

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"

	"github.com/mj1618/ax-mcp/internal/model"
)

var (
	clsidCUIAutomation = ole.NewGUID("{FF48DBA4-60EF-4201-AA87-54103EEF594E}")
	iidIUIAutomation   = ole.NewGUID("{30CBE57D-D9D0-452A-AB13-7AC5AC4825EE}")
)

// IUIAutomation vtable slots.
const (
	slotElementFromHandle    = 6
	slotControlViewWalker    = 14
	slotGetFirstChildElement = 4
	slotGetNextSiblingElem   = 6
)

// IUIAutomationElement vtable slots.
const (
	slotSetFocus                   = 3
	slotGetRuntimeID               = 4
	slotGetCurrentPattern          = 16
	slotCurrentControlType         = 21
	slotCurrentName                = 23
	slotCurrentIsKeyboardFocusable = 27
	slotCurrentHelpText            = 31
	slotCurrentIsPassword          = 35
	slotCurrentBoundingRectangle   = 43
)

// HRESULTs with a specific meaning for clients.
const (
	hrElementNotEnabled   = 0x80040200
	hrElementNotAvailable = 0x80040201
	hrNotSupported        = 0x80040204
	hrTimeout             = 0x80131505
	hrNotImpl             = 0x80004001
	hrAccessDenied        = 0x80070005
	hrRPCServerDied       = 0x80010007
	hrRPCDisconnected     = 0x80010108
	hrObjNotConnected     = 0x800401FD
)

// invoke calls the method at slot on a COM object's vtable.
func invoke(obj *ole.IUnknown, slot int, op string, args ...uintptr) error {
	vtbl := (*[64]uintptr)(unsafe.Pointer(obj.RawVTable))
	hr, _, _ := syscall.SyscallN(vtbl[slot], append([]uintptr{uintptr(unsafe.Pointer(obj))}, args...)...)
	return hresult(op, hr)
}

// hresult maps a failed HRESULT onto an error category.
func hresult(op string, hr uintptr) error {
	if int32(hr) >= 0 {
		return nil
	}
	cause := ole.NewError(hr)
	switch uint32(hr) {
	case hrElementNotAvailable:
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	case hrElementNotEnabled:
		return model.Wrap(model.CategoryInvalidAction, op+": element is disabled", cause)
	case hrNotSupported, hrNotImpl:
		return model.Wrap(model.CategoryInvalidAction, op+": not supported by this element", cause)
	case hrTimeout:
		return model.Transient(op+": application did not respond", cause)
	case hrAccessDenied:
		return model.Wrap(model.CategoryPermissionDenied, op+": access denied", cause)
	case hrRPCServerDied, hrRPCDisconnected, hrObjNotConnected:
		return fmt.Errorf("%s: %w: %v", op, model.ErrConnectionLost, cause)
	}
	return model.Internal(op, cause)
}

// bstr reads a BSTR property and frees it.
func bstr(obj *ole.IUnknown, slot int, op string) (string, error) {
	var p *uint16
	if err := invoke(obj, slot, op, uintptr(unsafe.Pointer(&p))); err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}
	s := ole.BstrToString(p)
	_ = ole.SysFreeString((*int16)(unsafe.Pointer(p)))
	return s, nil
}

func boolProp(obj *ole.IUnknown, slot int, op string) (bool, error) {
	var v int32
	if err := invoke(obj, slot, op, uintptr(unsafe.Pointer(&v))); err != nil {
		return false, err
	}
	return v != 0, nil
}

func release(obj *ole.IUnknown) {
	if obj != nil {
		obj.Release()
	}
}
