package transport

import (
	"dbuscore/dbus"
)

// Ring is a documented stand-in for an io_uring-backed collaborator. It
// does not wrap the real kernel interface; it models the same
// submission/completion shape (a queue of pending operations and a queue of
// their results, decoupled from the calling goroutine) on top of a Blocking
// socket and a worker goroutine, so that call sites written against Ring's
// API are the ones that would change if a real io_uring binding were wired
// in later.
type Ring struct {
	sock *Blocking

	submit   chan ringOp
	complete chan ringResult
	done     chan struct{}
}

type ringOpKind int

const (
	ringOpRead ringOpKind = iota
	ringOpWrite
)

type ringOp struct {
	kind ringOpKind
	buf  []byte
}

type ringResult struct {
	n   int
	err error
}

// NewRing starts a worker goroutine that serializes submitted operations
// against sock one at a time, mimicking a single completion queue.
func NewRing(sock *Blocking) *Ring {
	r := &Ring{
		sock:     sock,
		submit:   make(chan ringOp),
		complete: make(chan ringResult),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Ring) loop() {
	for {
		select {
		case op := <-r.submit:
			var n int
			var err error
			switch op.kind {
			case ringOpRead:
				n, err = r.sock.Read(op.buf)
			case ringOpWrite:
				n, err = r.sock.Write(op.buf)
			}
			r.complete <- ringResult{n: n, err: err}
		case <-r.done:
			return
		}
	}
}

// SubmitRead queues a read into buf and blocks for its completion. A real
// io_uring collaborator would let many of these be in flight before
// draining the completion queue; this stand-in completes one at a time,
// which is sufficient for driving a single dbus.Connection.
func (r *Ring) SubmitRead(buf []byte) (int, error) {
	r.submit <- ringOp{kind: ringOpRead, buf: buf}
	res := <-r.complete
	return res.n, res.err
}

// SubmitWrite queues a write of buf and blocks for its completion.
func (r *Ring) SubmitWrite(buf []byte) (int, error) {
	r.submit <- ringOp{kind: ringOpWrite, buf: buf}
	res := <-r.complete
	return res.n, res.err
}

// Close stops the worker goroutine and the underlying socket.
func (r *Ring) Close() error {
	close(r.done)
	return r.sock.Close()
}

// ringReadWriter adapts Ring to the readWriter shape Step expects.
type ringReadWriter struct{ r *Ring }

func (w ringReadWriter) Read(p []byte) (int, error)  { return w.r.SubmitRead(p) }
func (w ringReadWriter) Write(p []byte) (int, error) { return w.r.SubmitWrite(p) }

// Step performs one Connection step through the ring, same contract as
// Blocking.Step but routed through the submission/completion queue. It uses
// the underlying socket's configured read buffer size.
func (r *Ring) Step(conn *dbus.Connection) ([]dbus.Event, error) {
	return step(conn, ringReadWriter{r}, r.sock.readBufSize)
}
