//go:build darwin && cgo

package darwin

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
#include <stdlib.h>

static AXError ax_set_bool(AXUIElementRef el, const char *attr, int v) {
    CFStringRef name = CFStringCreateWithCString(NULL, attr, kCFStringEncodingUTF8);
    AXError err = AXUIElementSetAttributeValue(el, name, v ? kCFBooleanTrue : kCFBooleanFalse);
    CFRelease(name);
    return err;
}

static AXError ax_set_string(AXUIElementRef el, const char *attr, const char *v) {
    CFStringRef name = CFStringCreateWithCString(NULL, attr, kCFStringEncodingUTF8);
    CFStringRef value = CFStringCreateWithCString(NULL, v, kCFStringEncodingUTF8);
    AXError err = AXUIElementSetAttributeValue(el, name, value);
    CFRelease(value);
    CFRelease(name);
    return err;
}

static AXError ax_set_number(AXUIElementRef el, const char *attr, double v) {
    CFStringRef name = CFStringCreateWithCString(NULL, attr, kCFStringEncodingUTF8);
    CFNumberRef value = CFNumberCreate(NULL, kCFNumberDoubleType, &v);
    AXError err = AXUIElementSetAttributeValue(el, name, value);
    CFRelease(value);
    CFRelease(name);
    return err;
}
*/
import "C"

import (
	"strconv"
	"strings"
	"unsafe"

	"github.com/mj1618/ax-mcp/internal/model"
)

func (b *Backend) setFocused(h *element) error {
	attr := C.CString("AXFocused")
	defer C.free(unsafe.Pointer(attr))
	return axError("setting AXFocused", C.ax_set_bool(h.ref, attr, 1))
}

// setValue writes AXValue. Range controls take a number; everything else
// takes the text as given.
func (b *Backend) setValue(h *element, text string) error {
	attr := C.CString("AXValue")
	defer C.free(unsafe.Pointer(attr))

	role, err := b.text(h, "AXRole")
	if err != nil {
		return err
	}
	subrole, _ := b.text(h, "AXSubrole")
	switch model.MapAXRole(role, subrole) {
	case model.RoleSlider, model.RoleSpinButton, model.RoleProgressBar:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return model.Errorf(model.CategoryInvalidAction, "value %q is not a number", text)
		}
		return axError("setting AXValue", C.ax_set_number(h.ref, attr, C.double(v)))
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	return axError("setting AXValue", C.ax_set_string(h.ref, attr, ctext))
}
