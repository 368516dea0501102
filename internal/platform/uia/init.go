//go:build windows

package uia

import (
	"github.com/go-ole/go-ole"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
)

const backendName = "uia"

// sFalse is returned by CoInitializeEx when the thread is already in the
// requested apartment.
const sFalse = 1

func init() {
	platform.NativeBackend = backendName
	platform.RegisterThreadHooks(backendName, platform.ThreadHooks{
		Init:     enterApartment,
		Teardown: ole.CoUninitialize,
	})
	platform.Register(backendName, func(opts platform.Options) (platform.Provider, error) {
		b, err := NewBackend(opts.Logger)
		if err != nil {
			return nil, err
		}
		return platform.NewTree[*element](b, platform.TreeOptions{
			BootstrapTimeout: opts.BootstrapTimeout,
			Logger:           opts.Logger,
			Cache:            opts.CacheOptions(),
		}), nil
	})
}

// enterApartment puts the worker thread in a single-threaded apartment.
func enterApartment() error {
	err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED)
	if oe, ok := err.(*ole.OleError); ok && oe.Code() == sFalse {
		return nil
	}
	if err != nil {
		return model.Internal("CoInitializeEx", err)
	}
	return nil
}
