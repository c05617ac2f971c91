package dbus

import (
	"bytes"
)

// AuthWant reports what an Auth state machine needs next.
type AuthWant int

const (
	// AuthWantWrite means Satisfy expects to be called with write
	// capacity available; use NextWrite to get the bytes to send.
	AuthWantWrite AuthWant = iota
	// AuthWantRead means Satisfy expects new bytes from the transport.
	AuthWantRead
	// AuthWantDone means the handshake is complete; GUID returns the
	// server's identifier.
	AuthWantDone
)

type authState int

const (
	authWritingZero authState = iota
	authWritingAuthExternal
	authReadingData
	authWritingData
	authReadingGUID
	authWritingBegin
	authDone
)

// Auth drives the minimal SASL EXTERNAL handshake: a
// single leading NUL byte, a bare AUTH EXTERNAL command, a DATA round-trip
// (the empty-data reply, since the peer's uid is already known to the
// kernel via the socket credentials rather than sent inline), the server's
// OK line carrying its GUID, and a final BEGIN that switches the connection
// into raw message mode. It performs no I/O; the caller drives it through
// Wants/NextWrite/Satisfy exactly as it drives Reader and Writer. Short
// reads and writes are handled per state: wpos tracks how much of the
// current command has been written, and inbuf accumulates received bytes
// until a full CRLF-terminated line is available.
type Auth struct {
	state authState
	guid  GUID
	inbuf []byte
	wpos  int
}

// NewAuth starts a handshake authenticating as the given numeric uid. The
// uid itself is not written to the wire by this state machine — it is
// conveyed to the peer by the kernel via the connected socket's
// credentials — but the parameter is kept so callers have one obvious
// place to note which identity a Connection is authenticating as.
func NewAuth(uid string) *Auth {
	return &Auth{
		state: authWritingZero,
	}
}

// Wants reports whether the caller should write, read, or is done.
func (a *Auth) Wants() AuthWant {
	switch a.state {
	case authWritingZero, authWritingAuthExternal, authWritingData, authWritingBegin:
		return AuthWantWrite
	case authReadingData, authReadingGUID:
		return AuthWantRead
	default:
		return AuthWantDone
	}
}

// pendingWrite returns the full command the current state emits.
func (a *Auth) pendingWrite() ([]byte, error) {
	switch a.state {
	case authWritingZero:
		return []byte{0}, nil
	case authWritingAuthExternal:
		return []byte("AUTH EXTERNAL\r\n"), nil
	case authWritingData:
		return []byte("DATA\r\n"), nil
	case authWritingBegin:
		return []byte("BEGIN\r\n"), nil
	default:
		return nil, contractErrf("auth_next_write", "no write pending in state %d", a.state)
	}
}

// NextWrite returns the bytes the caller must write next: the unwritten
// remainder of the current state's command. It is only valid to call this
// when Wants() == AuthWantWrite.
func (a *Auth) NextWrite() ([]byte, error) {
	full, err := a.pendingWrite()
	if err != nil {
		return nil, err
	}
	return full[a.wpos:], nil
}

// SatisfyWrite records that n bytes of NextWrite were written. The state
// only transitions once the current command has been written in full; a
// short write leaves the machine in place with its cursor advanced.
func (a *Auth) SatisfyWrite(n int) error {
	full, err := a.pendingWrite()
	if err != nil {
		return err
	}
	if n < 0 || a.wpos+n > len(full) {
		return contractErrf("auth_satisfy_write", "satisfied %d bytes, only %d pending", n, len(full)-a.wpos)
	}
	a.wpos += n
	if a.wpos < len(full) {
		return nil
	}
	a.wpos = 0
	switch a.state {
	case authWritingZero:
		a.state = authWritingAuthExternal
	case authWritingAuthExternal:
		a.state = authReadingData
	case authWritingData:
		a.state = authReadingGUID
	case authWritingBegin:
		a.state = authDone
	}
	// A server that pipelined its next line behind the previous one has
	// already landed it in inbuf; consume it now rather than making the
	// caller wait on a read that will never produce bytes.
	if a.Wants() == AuthWantRead {
		return a.consumeBufferedLine()
	}
	return nil
}

// SatisfyRead feeds newly-received bytes in. All bytes are buffered; once a
// complete CRLF-terminated line is available it is consumed and the state
// advances. Returns the number of bytes accepted, which is always len(data).
func (a *Auth) SatisfyRead(data []byte) (int, error) {
	if a.Wants() != AuthWantRead {
		return 0, contractErrf("auth_satisfy_read", "no read pending in state %d", a.state)
	}
	a.inbuf = append(a.inbuf, data...)
	if err := a.consumeBufferedLine(); err != nil {
		return 0, err
	}
	return len(data), nil
}

// consumeBufferedLine processes one complete line out of inbuf, if present.
func (a *Auth) consumeBufferedLine() error {
	idx := bytes.Index(a.inbuf, []byte("\r\n"))
	if idx < 0 {
		return nil
	}
	line := a.inbuf[:idx]

	switch a.state {
	case authReadingData:
		if !bytes.Equal(line, []byte("DATA")) {
			return authErrf("auth_read_data", "expected exactly DATA, got %q", line)
		}
		a.state = authWritingData
	case authReadingGUID:
		if !bytes.HasPrefix(line, []byte("OK ")) {
			return authErrf("auth_read_guid", "unexpected server line %q", line)
		}
		g, err := parseGUID(line[len("OK "):])
		if err != nil {
			return authErrf("auth_read_guid", "%w", err)
		}
		a.guid = g
		a.state = authWritingBegin
	}

	a.inbuf = append([]byte(nil), a.inbuf[idx+2:]...)
	return nil
}

// takeLeftover surrenders any bytes received beyond the handshake's final
// line. A conforming server sends nothing before our BEGIN, so this is
// almost always empty, but bytes that did arrive belong to the message
// stream and must not be dropped on the phase transition.
func (a *Auth) takeLeftover() []byte {
	b := a.inbuf
	a.inbuf = nil
	return b
}

// GUID returns the server's identifier once the handshake has completed.
func (a *Auth) GUID() GUID { return a.guid }

// Done reports whether the handshake has completed successfully.
func (a *Auth) Done() bool { return a.state == authDone }
