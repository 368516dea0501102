//go:build linux

package atspi

import (
	"os"

	"github.com/mj1618/ax-mcp/internal/platform"
)

const backendName = "atspi"

func init() {
	platform.NativeBackend = backendName
	platform.Register(backendName, func(opts platform.Options) (platform.Provider, error) {
		b := NewBackend(os.Getpid(), opts.Logger)
		return platform.NewTree[Ref](b, platform.TreeOptions{
			BootstrapTimeout: opts.BootstrapTimeout,
			Logger:           opts.Logger,
			Cache:            opts.CacheOptions(),
		}), nil
	})
}
