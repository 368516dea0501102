//go:build darwin && cgo

package darwin

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation -framework Foundation
#include <ApplicationServices/ApplicationServices.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>

static CFStringRef ax_cfstr(const char *s) {
    return CFStringCreateWithCString(NULL, s, kCFStringEncodingUTF8);
}

static char *ax_cstring(CFStringRef s) {
    if (s == NULL) return NULL;
    CFIndex len = CFStringGetLength(s);
    CFIndex max = CFStringGetMaximumSizeForEncoding(len, kCFStringEncodingUTF8) + 1;
    char *buf = malloc(max);
    if (!CFStringGetCString(s, buf, max, kCFStringEncodingUTF8)) {
        free(buf);
        return NULL;
    }
    return buf;
}

// ax_copy_text reads attr as text. Numbers are formatted and booleans become
// "true"/"false"; *out stays NULL for other value types.
static AXError ax_copy_text(AXUIElementRef el, const char *attr, char **out) {
    *out = NULL;
    CFStringRef name = ax_cfstr(attr);
    CFTypeRef value = NULL;
    AXError err = AXUIElementCopyAttributeValue(el, name, &value);
    CFRelease(name);
    if (err != kAXErrorSuccess || value == NULL) return err;
    CFTypeID t = CFGetTypeID(value);
    if (t == CFStringGetTypeID()) {
        *out = ax_cstring((CFStringRef)value);
    } else if (t == CFNumberGetTypeID()) {
        double d = 0;
        CFNumberGetValue((CFNumberRef)value, kCFNumberDoubleType, &d);
        *out = malloc(64);
        snprintf(*out, 64, "%.15g", d);
    } else if (t == CFBooleanGetTypeID()) {
        *out = strdup(CFBooleanGetValue((CFBooleanRef)value) ? "true" : "false");
    }
    CFRelease(value);
    return kAXErrorSuccess;
}

static AXError ax_copy_children(AXUIElementRef el, AXUIElementRef **out, int *count) {
    *out = NULL;
    *count = 0;
    CFTypeRef kids = NULL;
    AXError err = AXUIElementCopyAttributeValue(el, kAXChildrenAttribute, &kids);
    if (err != kAXErrorSuccess || kids == NULL) return err;
    CFIndex n = CFArrayGetCount((CFArrayRef)kids);
    if (n > 0) {
        *out = malloc(sizeof(AXUIElementRef) * n);
        for (CFIndex i = 0; i < n; i++) {
            AXUIElementRef k = (AXUIElementRef)CFArrayGetValueAtIndex((CFArrayRef)kids, i);
            CFRetain(k);
            (*out)[i] = k;
        }
        *count = (int)n;
    }
    CFRelease(kids);
    return kAXErrorSuccess;
}

static int ax_frame(AXUIElementRef el, double *x, double *y, double *w, double *h) {
    CFTypeRef pos = NULL, size = NULL;
    CGPoint p;
    CGSize s;
    int ok = 0;
    if (AXUIElementCopyAttributeValue(el, kAXPositionAttribute, &pos) == kAXErrorSuccess &&
        AXUIElementCopyAttributeValue(el, kAXSizeAttribute, &size) == kAXErrorSuccess &&
        AXValueGetValue((AXValueRef)pos, kAXValueCGPointType, &p) &&
        AXValueGetValue((AXValueRef)size, kAXValueCGSizeType, &s)) {
        *x = p.x; *y = p.y; *w = s.width; *h = s.height;
        ok = 1;
    }
    if (pos) CFRelease(pos);
    if (size) CFRelease(size);
    return ok;
}

static AXError ax_copy_actions(AXUIElementRef el, char ***out, int *count) {
    *out = NULL;
    *count = 0;
    CFArrayRef names = NULL;
    AXError err = AXUIElementCopyActionNames(el, &names);
    if (err != kAXErrorSuccess || names == NULL) return err;
    CFIndex n = CFArrayGetCount(names);
    if (n > 0) {
        *out = calloc(n, sizeof(char *));
        for (CFIndex i = 0; i < n; i++) {
            (*out)[i] = ax_cstring((CFStringRef)CFArrayGetValueAtIndex(names, i));
        }
        *count = (int)n;
    }
    CFRelease(names);
    return kAXErrorSuccess;
}

static void ax_free_strings(char **s, int n) {
    for (int i = 0; i < n; i++) free(s[i]);
    free(s);
}

static int ax_settable(AXUIElementRef el, const char *attr) {
    Boolean settable = false;
    CFStringRef name = ax_cfstr(attr);
    AXError err = AXUIElementIsAttributeSettable(el, name, &settable);
    CFRelease(name);
    return err == kAXErrorSuccess && settable;
}

static AXError ax_window_count(AXUIElementRef el, long *n) {
    CFIndex count = 0;
    AXError err = AXUIElementGetAttributeValueCount(el, kAXWindowsAttribute, &count);
    *n = (long)count;
    return err;
}

static AXUIElementRef ax_app(pid_t pid) { return AXUIElementCreateApplication(pid); }
static CFHashCode ax_hash(AXUIElementRef el) { return CFHash(el); }
static int ax_equal(AXUIElementRef a, AXUIElementRef b) { return CFEqual(a, b); }
static void ax_release(AXUIElementRef el) { CFRelease(el); }
*/
import "C"

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"unsafe"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
)

// element owns one retained AXUIElementRef.
type element struct {
	ref C.AXUIElementRef
}

// Backend reads the AX tree of one process. It is only used from the worker
// thread.
type Backend struct {
	pid      int
	log      *slog.Logger
	warnOnce sync.Once
}

func newBackend(pid int, log *slog.Logger) *Backend {
	return &Backend{pid: pid, log: log.With("backend", backendName)}
}

func (b *Backend) Name() string { return backendName }

// Root returns the application element once the app has at least one
// window; before that the tree is considered unregistered.
func (b *Backend) Root() (*element, error) {
	if err := b.checkTrusted(); err != nil {
		return nil, err
	}
	ref := C.ax_app(C.pid_t(b.pid))
	if ref == nil {
		return nil, fmt.Errorf("AXUIElementCreateApplication(%d) returned nil", b.pid)
	}
	var n C.long
	if code := C.ax_window_count(ref, &n); code != C.kAXErrorSuccess || n == 0 {
		C.ax_release(ref)
		if code == C.kAXErrorAPIDisabled {
			return nil, axError("reading windows", code)
		}
		return nil, fmt.Errorf("application %d has no accessible windows yet", b.pid)
	}
	return &element{ref: ref}, nil
}

func (b *Backend) Children(h *element) ([]*element, error) {
	var refs *C.AXUIElementRef
	var count C.int
	code := C.ax_copy_children(h.ref, &refs, &count)
	if code == C.kAXErrorNoValue || code == C.kAXErrorAttributeUnsupported {
		return nil, nil
	}
	if code != C.kAXErrorSuccess {
		return nil, axError("reading children", code)
	}
	if count == 0 {
		return nil, nil
	}
	defer C.free(unsafe.Pointer(refs))
	kids := make([]*element, 0, int(count))
	for _, ref := range unsafe.Slice(refs, int(count)) {
		kids = append(kids, &element{ref: ref})
	}
	return kids, nil
}

func (b *Backend) Attributes(h *element) (model.Attributes, error) {
	axRole, err := b.text(h, "AXRole")
	if err != nil {
		return model.Attributes{}, err
	}
	subrole, _ := b.text(h, "AXSubrole")
	title, _ := b.text(h, "AXTitle")
	desc, _ := b.text(h, "AXDescription")
	help, _ := b.text(h, "AXHelp")
	value, _ := b.text(h, "AXValue")

	attrs := model.Attributes{
		Role:        model.MapAXRole(axRole, subrole),
		Name:        title,
		Value:       value,
		Description: help,
	}
	if attrs.Name == "" {
		attrs.Name = desc
	} else {
		attrs.Description = desc
	}

	attrs.Bounds = b.frame(h)
	attrs.Actions = b.actions(h, attrs.Role)
	return attrs, nil
}

// actions lists what h can do: its AX actions, plus focus and set_value when
// the matching attributes are settable. Elements that report nothing fall
// back to the defaults for their role.
func (b *Backend) actions(h *element, role model.Role) []model.Action {
	var names **C.char
	var count C.int
	var out []model.Action
	if C.ax_copy_actions(h.ref, &names, &count) == C.kAXErrorSuccess && count > 0 {
		for _, cs := range unsafe.Slice(names, int(count)) {
			if cs != nil {
				out = append(out, fromAXAction(C.GoString(cs)))
			}
		}
		C.ax_free_strings(names, count)
	}
	if b.settable(h, "AXFocused") {
		out = append(out, model.Focus())
	}
	if b.settable(h, "AXValue") {
		out = append(out, model.SetValue(""))
	}
	if role == model.RoleScrollArea {
		out = append(out, model.Scroll(0, 0))
	}
	if len(out) == 0 {
		return model.DefaultActions(role)
	}
	return out
}

var axActions = map[string]model.Action{
	"AXPress":     model.Press(),
	"AXIncrement": model.Increment(),
	"AXDecrement": model.Decrement(),
	"AXShowMenu":  model.ContextMenu(),
}

func fromAXAction(name string) model.Action {
	if a, ok := axActions[name]; ok {
		return a
	}
	return model.Custom(name)
}

func toAXAction(a model.Action) string {
	if a.Type == model.ActionCustom {
		return a.Name
	}
	for name, known := range axActions {
		if known.Type == a.Type {
			return name
		}
	}
	return ""
}

func (b *Backend) text(h *element, attr string) (string, error) {
	cattr := C.CString(attr)
	defer C.free(unsafe.Pointer(cattr))
	var out *C.char
	code := C.ax_copy_text(h.ref, cattr, &out)
	if out != nil {
		defer C.free(unsafe.Pointer(out))
	}
	switch code {
	case C.kAXErrorSuccess:
		if out == nil {
			return "", nil
		}
		return C.GoString(out), nil
	case C.kAXErrorNoValue, C.kAXErrorAttributeUnsupported:
		return "", nil
	}
	return "", axError("reading "+attr, code)
}

// frame reads AXPosition and AXSize. AX already reports global points from
// the top-left of the primary display.
func (b *Backend) frame(h *element) *model.Rect {
	var x, y, w, hh C.double
	if C.ax_frame(h.ref, &x, &y, &w, &hh) == 0 {
		return nil
	}
	return platform.Normalize(platform.Frame{
		X: float64(x), Y: float64(y), Width: float64(w), Height: float64(hh),
		Origin: platform.OriginTopLeft,
		Unit:   model.UnitDIP,
	}, 0)
}

func (b *Backend) settable(h *element, attr string) bool {
	cattr := C.CString(attr)
	defer C.free(unsafe.Pointer(cattr))
	return C.ax_settable(h.ref, cattr) != 0
}

// IdentityKey buckets elements by CFHash; SameElement settles collisions.
func (b *Backend) IdentityKey(h *element) string {
	return strconv.FormatUint(uint64(C.ax_hash(h.ref)), 16)
}

func (b *Backend) SameElement(x, y *element) bool {
	return C.ax_equal(x.ref, y.ref) != 0
}

func (b *Backend) Alive(h *element) bool {
	_, err := b.text(h, "AXRole")
	return model.CategoryOf(err) != model.CategoryNotFound
}

func (b *Backend) Release(h *element) {
	if h.ref != nil {
		C.ax_release(h.ref)
		h.ref = nil
	}
}

// Reconnect is a no-op: AX has no session to re-establish.
func (b *Backend) Reconnect() error { return nil }

func (b *Backend) Close() error { return nil }

// axError maps an AXError code to an error category.
func axError(op string, code C.AXError) error {
	switch code {
	case C.kAXErrorSuccess:
		return nil
	case C.kAXErrorInvalidUIElement:
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	case C.kAXErrorAPIDisabled:
		return model.Errorf(model.CategoryPermissionDenied, "%s: accessibility API disabled. %s", op, permissionHelp)
	case C.kAXErrorCannotComplete:
		return model.Transient(op+": application did not respond", nil)
	case C.kAXErrorActionUnsupported, C.kAXErrorAttributeUnsupported, C.kAXErrorIllegalArgument:
		return model.Errorf(model.CategoryInvalidAction, "%s: not supported by this element", op)
	}
	return model.Internal(fmt.Sprintf("%s: AXError %d", op, int(code)), nil)
}
