//go:build linux

package atspi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mj1618/ax-mcp/internal/model"
)

const (
	busName      = "org.a11y.Bus"
	busPath      = "/org/a11y/bus"
	registryName = "org.a11y.atspi.Registry"
	rootPath     = dbus.ObjectPath("/org/a11y/atspi/accessible/root")

	ifaceAccessible   = "org.a11y.atspi.Accessible"
	ifaceAction       = "org.a11y.atspi.Action"
	ifaceComponent    = "org.a11y.atspi.Component"
	ifaceEditableText = "org.a11y.atspi.EditableText"
	ifaceText         = "org.a11y.atspi.Text"
	ifaceValue        = "org.a11y.atspi.Value"

	// callTimeout bounds a single D-Bus round trip so a hung application
	// cannot pin the worker forever.
	callTimeout = 2 * time.Second
)

// Ref is an AT-SPI object reference: the owning connection's bus name and
// the object path. It is the D-Bus "(so)" struct.
type Ref struct {
	Name string
	Path dbus.ObjectPath
}

func (r Ref) String() string { return r.Name + string(r.Path) }

// dialA11yBus asks the session bus for the accessibility bus address and
// connects to it.
func dialA11yBus() (*dbus.Conn, error) {
	session, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	defer session.Close()
	if err := session.Auth(nil); err != nil {
		return nil, fmt.Errorf("authenticating on session bus: %w", err)
	}
	if err := session.Hello(); err != nil {
		return nil, fmt.Errorf("session bus hello: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var addr string
	if err := session.Object(busName, busPath).CallWithContext(ctx, busName+".GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("looking up accessibility bus (is at-spi2-core running?): %w", err)
	}
	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to accessibility bus %s: %w", addr, err)
	}
	return conn, nil
}

// call invokes iface.method on ref and stores the reply into out.
func call(conn *dbus.Conn, ref Ref, method string, args []any, out ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	c := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, method, 0, args...)
	if c.Err != nil {
		return classify(method, c.Err)
	}
	if len(out) == 0 {
		return nil
	}
	if err := c.Store(out...); err != nil {
		return model.Internal("decoding "+method+" reply", err)
	}
	return nil
}

func property(conn *dbus.Conn, ref Ref, name string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	iface, member := splitMember(name)
	c := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, iface, member)
	if c.Err != nil {
		return classify(name, c.Err)
	}
	var v dbus.Variant
	if err := c.Store(&v); err != nil {
		return model.Internal("decoding "+name, err)
	}
	if err := dbus.Store([]any{v.Value()}, out); err != nil {
		return model.Internal("decoding "+name, err)
	}
	return nil
}

func setProperty(conn *dbus.Conn, ref Ref, name string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	iface, member := splitMember(name)
	c := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, "org.freedesktop.DBus.Properties.Set", 0,
		iface, member, dbus.MakeVariant(value))
	return classify(name, c.Err)
}

func splitMember(name string) (iface, member string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// classify maps a D-Bus failure onto an error category. A vanished peer or a
// closed bus is reported as a lost connection so the provider reconnects.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dbus.ErrClosed) {
		return fmt.Errorf("%s: %w", op, model.ErrConnectionLost)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Transient(op+": no reply from application", err)
	}
	name := errorName(err)
	switch name {
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner",
		"org.freedesktop.DBus.Error.Disconnected":
		return fmt.Errorf("%s: %w: %v", op, model.ErrConnectionLost, err)
	case "org.freedesktop.DBus.Error.UnknownObject":
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	case "org.freedesktop.DBus.Error.NoReply",
		"org.freedesktop.DBus.Error.Timeout",
		"org.freedesktop.DBus.Error.LimitsExceeded":
		return model.Transient(op+": application busy", err)
	case "org.freedesktop.DBus.Error.AccessDenied":
		return model.Wrap(model.CategoryPermissionDenied, op+": access denied", err)
	case "org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownProperty",
		"org.freedesktop.DBus.Error.InvalidArgs":
		return model.Wrap(model.CategoryInvalidAction, op+": not supported by this element", err)
	}
	return model.Internal(op, err)
}

func errorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) {
		return pe.Name
	}
	return ""
}
