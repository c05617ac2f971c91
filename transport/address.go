// Package transport provides the external collaborators a sans-I/O
// dbus.Connection needs in order to actually talk to a bus: something that
// owns a socket and moves bytes. None of this package is exercised by the
// dbus package's own tests; it exists so a caller has a ready-made way to
// drive the state machines instead of wiring raw syscalls themselves.
package transport

import (
	"os"
	"strings"
)

const sessionBusAddressEnv = "DBUS_SESSION_BUS_ADDRESS"

// Address is a parsed D-Bus server address, e.g.
// "unix:path=/run/user/1000/bus" or "unix:abstract=/tmp/dbus-xyz,guid=...".
// Only the unix transport is represented; tcp: and other transports found
// in the wild are rejected explicitly rather than silently mishandled.
type Address struct {
	Path     string // set when the path= key is present
	Abstract string // set when the abstract= key is present (Linux only)
}

// SessionBusAddress reads DBUS_SESSION_BUS_ADDRESS and parses the first
// address in it (a session bus address can list several, semicolon-
// separated, fallback candidates; this layer only needs the first to work).
func SessionBusAddress() (Address, error) {
	raw := os.Getenv(sessionBusAddressEnv)
	if raw == "" {
		return Address{}, errNoSessionBusAddress
	}
	first := strings.SplitN(raw, ";", 2)[0]
	return ParseAddress(first)
}

// ParseAddress parses a single "transport:key=value,key=value" address.
func ParseAddress(s string) (Address, error) {
	const prefix = "unix:"
	if !strings.HasPrefix(s, prefix) {
		return Address{}, errUnsupportedTransport(s)
	}
	var addr Address
	for _, kv := range strings.Split(s[len(prefix):], ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "path":
			addr.Path = parts[1]
		case "abstract":
			addr.Abstract = parts[1]
		}
	}
	if addr.Path == "" && addr.Abstract == "" {
		return Address{}, errMalformedAddress(s)
	}
	return addr, nil
}
