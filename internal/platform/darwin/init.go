//go:build darwin && cgo

package darwin

import (
	"os"

	"github.com/mj1618/ax-mcp/internal/platform"
)

const backendName = "ax"

func init() {
	platform.NativeBackend = backendName
	platform.Register(backendName, func(opts platform.Options) (platform.Provider, error) {
		b := newBackend(os.Getpid(), opts.Logger)
		return platform.NewTree[*element](b, platform.TreeOptions{
			BootstrapTimeout: opts.BootstrapTimeout,
			Logger:           opts.Logger,
			Cache:            opts.CacheOptions(),
		}), nil
	})
}
