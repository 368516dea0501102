//go:build darwin && cgo

package darwin

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework CoreGraphics -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
#include <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>

static AXError ax_perform(AXUIElementRef el, const char *action) {
    CFStringRef name = CFStringCreateWithCString(NULL, action, kCFStringEncodingUTF8);
    AXError err = AXUIElementPerformAction(el, name);
    CFRelease(name);
    return err;
}

static int cg_move_mouse(float x, float y) {
    CGEventRef move = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
    if (!move) return -1;
    CGEventPost(kCGHIDEventTap, move);
    CFRelease(move);
    return 0;
}

// cg_scroll posts one scroll-wheel event in line units. Positive dy scrolls
// up, positive dx scrolls left.
static int cg_scroll(int dy, int dx) {
    CGEventRef scroll = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitLine, 2, dy, dx);
    if (!scroll) return -1;
    CGEventPost(kCGHIDEventTap, scroll);
    CFRelease(scroll);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/mj1618/ax-mcp/internal/model"
)

// Perform runs an action the element has already been checked to advertise.
func (b *Backend) Perform(h *element, action model.Action) error {
	if err := b.checkTrusted(); err != nil {
		return err
	}
	switch action.Type {
	case model.ActionFocus:
		return b.setFocused(h)
	case model.ActionSetValue:
		return b.setValue(h, action.Value)
	case model.ActionScroll:
		return b.scroll(h, action.X, action.Y)
	}
	name := toAXAction(action)
	if name == "" {
		return model.Errorf(model.CategoryInvalidAction, "%s has no AX equivalent", action.Type)
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return axError(name, C.ax_perform(h.ref, cname))
}

// scroll moves the pointer to the element centre and posts a wheel event
// there. dx and dy count lines; positive dy scrolls down, positive dx right.
func (b *Backend) scroll(h *element, dx, dy float64) error {
	r := b.frame(h)
	if r == nil {
		return model.InvalidAction("element has no on-screen frame to scroll")
	}
	if dx == 0 && dy == 0 {
		dy = 1
	}
	cx, cy := r.Center()
	if C.cg_move_mouse(C.float(cx), C.float(cy)) != 0 {
		return model.Transient(fmt.Sprintf("moving pointer to (%.0f, %.0f)", cx, cy), nil)
	}
	if C.cg_scroll(C.int(-math.Round(dy)), C.int(-math.Round(dx))) != 0 {
		return model.Transient("posting scroll event", nil)
	}
	return nil
}
