// Package darwin is the macOS accessibility backend, built on the AX API in
// ApplicationServices. It needs cgo; without it the package is empty and no
// native backend is registered.
package darwin
