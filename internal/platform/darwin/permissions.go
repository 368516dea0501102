//go:build darwin && cgo

package darwin

/*
#cgo LDFLAGS: -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>

static int is_trusted() {
    return AXIsProcessTrusted();
}
*/
import "C"

import "github.com/mj1618/ax-mcp/internal/model"

const permissionHelp = "Grant permission at: System Settings > Privacy & Security > Accessibility. " +
	"Add the application hosting this server, then restart it."

// checkTrusted reports PermissionDenied while the process is not trusted for
// accessibility. The first denial is logged once with instructions; the
// check is repeated on every call so a later grant takes effect.
func (b *Backend) checkTrusted() error {
	if C.is_trusted() != 0 {
		return nil
	}
	b.warnOnce.Do(func() {
		b.log.Warn("accessibility permission required", "help", permissionHelp)
	})
	return model.Errorf(model.CategoryPermissionDenied, "accessibility permission required. %s", permissionHelp)
}
