package transport

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"dbuscore/dbus"
)

// Blocking is the simplest possible collaborator: a single raw AF_UNIX
// socket driven with blocking Read/Write syscalls, one at a time, exactly
// as directed by a dbus.Connection's Wants().
type Blocking struct {
	fd          int
	log         *logrus.Entry
	readBufSize int
}

// DialBlocking opens a connected AF_UNIX SOCK_STREAM socket to addr. By
// default reads use a 4096-byte buffer; pass WithReadBufferSize to override
// it, e.g. for a bus known to send large ListNames-style replies.
func DialBlocking(addr Address, opts ...DialOption) (*Blocking, error) {
	cfg := newConfig(opts)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	sa := &unix.SockaddrUnix{Name: addr.Path}
	if addr.Abstract != "" {
		// The leading NUL marks a Linux abstract socket name.
		sa = &unix.SockaddrUnix{Name: "\x00" + addr.Abstract}
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Blocking{
		fd:          fd,
		log:         logrus.WithField("transport", "blocking"),
		readBufSize: cfg.readBufSize,
	}, nil
}

func (b *Blocking) Read(p []byte) (int, error) {
	n, err := unix.Read(b.fd, p)
	if err != nil {
		b.log.WithError(err).Debug("read failed")
		return n, err
	}
	return n, nil
}

func (b *Blocking) Write(p []byte) (int, error) {
	n, err := unix.Write(b.fd, p)
	if err != nil {
		b.log.WithError(err).Debug("write failed")
		return n, err
	}
	return n, nil
}

// Close releases the underlying file descriptor.
func (b *Blocking) Close() error {
	return unix.Close(b.fd)
}

// readWriter is the minimal shape Step needs, satisfied by Blocking and by
// Ring's ringReadWriter adapter.
type readWriter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Step performs exactly one blocking syscall in whichever direction conn
// currently wants, and applies its result to conn. It returns any events
// produced by a read (nil for a write step) and is the building block a
// caller loops on to drive a whole connection lifecycle, including the
// authentication handshake. bufSize sizes the read buffer allocated for a
// read step; see Blocking.Step and Ring.Step, which supply their owning
// socket's configured size.
func step(conn *dbus.Connection, rw readWriter, bufSize int) ([]dbus.Event, error) {
	switch conn.Wants() {
	case dbus.ConnWantWrite:
		out, err := conn.NextWrite()
		if err != nil {
			return nil, err
		}
		n, err := rw.Write(out)
		if err != nil {
			return nil, err
		}
		return nil, conn.SatisfyWrite(n)
	default:
		buf := make([]byte, bufSize)
		n, err := rw.Read(buf)
		if err != nil {
			return nil, err
		}
		return conn.SatisfyRead(buf[:n])
	}
}

// Step performs exactly one blocking syscall in whichever direction conn
// currently wants, using rw's generic readWriter shape and the package
// default read buffer size. Prefer a concrete collaborator's own Step method
// (Blocking.Step, Ring.Step) when one is available, since it honors that
// collaborator's configured buffer size.
func Step(conn *dbus.Connection, rw readWriter) ([]dbus.Event, error) {
	return step(conn, rw, defaultReadBufSize)
}

// Step is like the package-level Step but uses b's configured read buffer
// size (see WithReadBufferSize).
func (b *Blocking) Step(conn *dbus.Connection) ([]dbus.Event, error) {
	return step(conn, b, b.readBufSize)
}
