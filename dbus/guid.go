package dbus

import (
	"encoding/hex"
)

// guidLength is the number of hex characters in a server GUID.
const guidLength = 32

// GUID is the 32-character hex identifier a D-Bus server returns at the end
// of a successful SASL EXTERNAL handshake. The zero value is not a valid
// GUID; a GUID is only ever produced by parseGUID, which the Auth state
// machine calls on the hex part of the server's "OK <hex>\r\n" line (see
// Auth.SatisfyRead).
type GUID struct {
	hex string
}

// parseGUID validates and wraps the 32 hex characters returned between the
// "OK " prefix and the trailing "\r\n" of the auth handshake.
func parseGUID(b []byte) (GUID, error) {
	if len(b) != guidLength {
		return GUID{}, protoErrf("guid", "expected %d hex characters, got %d", guidLength, len(b))
	}
	if _, err := hex.DecodeString(string(b)); err != nil {
		return GUID{}, protoErrf("guid", "not valid hex: %w", err)
	}
	return GUID{hex: string(b)}, nil
}

// Valid reports whether g was produced by a successful handshake.
func (g GUID) Valid() bool { return g.hex != "" }

// String returns the 32-character hex form, or "" for the zero value.
func (g GUID) String() string { return g.hex }
