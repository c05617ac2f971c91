package transport

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"dbuscore/dbus"
)

// Poller multiplexes several connections over one epoll instance, each
// driven the same single-step way as Blocking: on each readiness
// notification it performs exactly the syscall the Connection currently
// wants, never more.
type Poller struct {
	epfd      int
	socks     map[int32]*pollEntry
	timeoutMs int
}

type pollEntry struct {
	conn *dbus.Connection
	sock *Blocking
}

// NewPoller creates an epoll instance. By default RunOnce blocks
// indefinitely; pass WithPollTimeout to bound it.
func NewPoller(opts ...DialOption) (*Poller, error) {
	cfg := newConfig(opts)
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Poller{epfd: epfd, socks: make(map[int32]*pollEntry), timeoutMs: cfg.pollTimeoutMs}, nil
}

// Register adds sock to the poll set, to be driven on behalf of conn.
func (p *Poller) Register(conn *dbus.Connection, sock *Blocking) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT,
		Fd:     int32(sock.fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, sock.fd, &ev); err != nil {
		return err
	}
	p.socks[int32(sock.fd)] = &pollEntry{conn: conn, sock: sock}
	return nil
}

// Unregister removes sock from the poll set.
func (p *Poller) Unregister(sock *Blocking) error {
	delete(p.socks, int32(sock.fd))
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, sock.fd, nil)
}

// maxEpollEvents bounds one RunOnce call's epoll_wait batch.
const maxEpollEvents = 32

// RunOnce blocks up to the Poller's configured timeout (see WithPollTimeout;
// indefinitely by default) waiting for any registered socket to become
// ready, then performs exactly one Step per ready socket and returns every
// event produced across all of them, tagged with which connection produced
// each.
func (p *Poller) RunOnce() (map[*dbus.Connection][]dbus.Event, error) {
	events := make([]unix.EpollEvent, maxEpollEvents)
	n, err := unix.EpollWait(p.epfd, events, p.timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make(map[*dbus.Connection][]dbus.Event)
	for i := 0; i < n; i++ {
		entry, ok := p.socks[events[i].Fd]
		if !ok {
			continue
		}
		evs, err := entry.sock.Step(entry.conn)
		if err != nil {
			logrus.WithError(err).WithField("fd", events[i].Fd).Warn("connection step failed")
			continue
		}
		if len(evs) > 0 {
			out[entry.conn] = append(out[entry.conn], evs...)
		}
	}
	return out, nil
}

// Close releases the epoll file descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
