// Package atspi is the Linux accessibility backend. It talks to the AT-SPI2
// registry over the accessibility D-Bus and exposes the host process's
// application subtree.
package atspi
