package dbus

import (
	"golang.org/x/exp/maps"
)

// ConnWant reports what a Connection needs next, composing the Auth phase
// and the steady-state Reader/Writer phase behind one contract.
// The policy is write-first: if there is anything queued to write,
// the caller is told to write before reading, since a server that is
// waiting on our next command will not produce output.
type ConnWant int

const (
	ConnWantWrite ConnWant = iota
	ConnWantRead
)

type connPhase int

const (
	connAuthenticating connPhase = iota
	connReady
)

// EventKind classifies a message a Connection produced from incoming
// bytes.
type EventKind int

const (
	EventReply EventKind = iota
	EventSignal
	EventCall
	EventUnmatchedReturn
)

// Event pairs a decoded Message with how the Connection classified it.
type Event struct {
	Kind    EventKind
	Message Message
}

// Connection composes Auth, Reader and Writer into the full lifecycle:
// Connecting (handled by a transport before a Connection exists) →
// Authenticating → ReadWrite. It assigns a serial to every outgoing message
// and matches incoming METHOD_RETURN/ERROR messages back to the calls that
// expect a reply by REPLY_SERIAL. Connection performs no I/O.
type Connection struct {
	auth   *Auth
	reader *Reader
	writer *Writer
	phase  connPhase

	// preAuth holds messages encoded by Enqueue before the handshake
	// finished; they transfer to the writer on the phase transition, in
	// enqueue order.
	preAuth [][]byte

	nextSerial uint32
	pending    map[uint32]struct{}
}

// NewConnection starts a connection that will authenticate as uid before
// exchanging messages. Enqueue may be called at any point; messages queued
// during the handshake are held back and released the moment it completes.
func NewConnection(uid string) *Connection {
	return &Connection{
		auth:       NewAuth(uid),
		reader:     NewReader(),
		writer:     NewWriter(),
		phase:      connAuthenticating,
		nextSerial: 1,
		pending:    make(map[uint32]struct{}),
	}
}

// Wants reports whether the caller should write or read next.
func (c *Connection) Wants() ConnWant {
	if c.phase == connAuthenticating {
		if c.auth.Wants() == AuthWantWrite {
			return ConnWantWrite
		}
		return ConnWantRead
	}
	if c.writer.Wants() {
		return ConnWantWrite
	}
	return ConnWantRead
}

// NextWrite returns the bytes to write next.
func (c *Connection) NextWrite() ([]byte, error) {
	if c.phase == connAuthenticating {
		return c.auth.NextWrite()
	}
	return c.writer.Pending(), nil
}

// SatisfyWrite records that n bytes of NextWrite were written. The final
// handshake write (BEGIN) completes authentication, at which point the
// connection flips to the ReadWrite phase and releases any messages queued
// during the handshake.
func (c *Connection) SatisfyWrite(n int) error {
	if c.phase == connAuthenticating {
		if err := c.auth.SatisfyWrite(n); err != nil {
			return err
		}
		if c.auth.Done() {
			return c.becomeReady()
		}
		return nil
	}
	return c.writer.Satisfy(n)
}

// becomeReady transitions Authenticating → ReadWrite: pre-auth messages
// move to the writer in enqueue order, and any bytes the transport read
// past the handshake's final line are handed to the message reader. Events
// those bytes complete surface on the next SatisfyRead call.
func (c *Connection) becomeReady() error {
	c.phase = connReady
	for _, raw := range c.preAuth {
		c.writer.Enqueue(raw)
	}
	c.preAuth = nil
	if left := c.auth.takeLeftover(); len(left) > 0 {
		return c.reader.Satisfy(left)
	}
	return nil
}

// SatisfyRead feeds newly-read bytes in and returns any events produced:
// zero or more fully decoded messages, classified by how they relate to
// outstanding calls. During authentication it returns no events; the
// handshake completes on its final write, not a read (see SatisfyWrite).
func (c *Connection) SatisfyRead(data []byte) ([]Event, error) {
	if c.phase == connAuthenticating {
		_, err := c.auth.SatisfyRead(data)
		return nil, err
	}

	if err := c.reader.Satisfy(data); err != nil {
		return nil, err
	}
	var events []Event
	for c.reader.Wants() == ReaderHasMessage {
		msg, err := c.reader.Take()
		if err != nil {
			return events, err
		}
		events = append(events, c.classify(msg))
	}
	return events, nil
}

func (c *Connection) classify(msg Message) Event {
	switch msg.Kind {
	case KindMethodReturn, KindError:
		if msg.HasReplySerial {
			if _, ok := c.pending[msg.ReplySerial]; ok {
				delete(c.pending, msg.ReplySerial)
				return Event{Kind: EventReply, Message: msg}
			}
		}
		return Event{Kind: EventUnmatchedReturn, Message: msg}
	case KindSignal:
		return Event{Kind: EventSignal, Message: msg}
	default:
		return Event{Kind: EventCall, Message: msg}
	}
}

// Enqueue assigns msg a serial (serials start at 1 and wrap back to 1 after
// exhausting uint32), encodes it, and queues it for
// writing: to the writer once the handshake has completed, or to the
// pre-auth holding buffer until then. It returns the assigned serial so the
// caller can correlate a later EventReply.
func (c *Connection) Enqueue(msg Message) (uint32, error) {
	serial := c.nextSerial
	msg.Serial = serial

	raw, err := EncodeMessage(msg)
	if err != nil {
		return 0, err
	}
	c.nextSerial++
	if c.nextSerial == 0 {
		c.nextSerial = 1
	}
	if c.phase == connAuthenticating {
		c.preAuth = append(c.preAuth, raw)
	} else {
		c.writer.Enqueue(raw)
	}

	if msg.Kind == KindMethodCall && msg.Flags&FlagNoReplyExpected == 0 {
		c.pending[serial] = struct{}{}
	}
	return serial, nil
}

// PendingSerials returns the serials of outstanding calls awaiting a reply,
// for diagnostics.
func (c *Connection) PendingSerials() []uint32 {
	return maps.Keys(c.pending)
}

// GUID returns the server's identifier; valid once the handshake has
// completed.
func (c *Connection) GUID() GUID { return c.auth.GUID() }

// Ready reports whether the handshake has completed and the connection is
// exchanging messages.
func (c *Connection) Ready() bool { return c.phase == connReady }
