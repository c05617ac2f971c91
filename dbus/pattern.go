package dbus

// pattern-style helpers for the small set of messages every session-bus
// client sends early in its life, plus the predicates used to recognize
// their replies and related signals.

const busName = "org.freedesktop.DBus"
const busPath ObjectPath = "/org/freedesktop/DBus"
const busInterface = "org.freedesktop.DBus"

// RequestNameFlag mirrors org.freedesktop.DBus.RequestName's flags
// argument.
type RequestNameFlag uint32

const (
	RequestNameAllowReplacement RequestNameFlag = 1 << 0
	RequestNameReplaceExisting  RequestNameFlag = 1 << 1
	RequestNameDoNotQueue       RequestNameFlag = 1 << 2
)

// Hello builds the mandatory first call every client must send and whose
// reply carries the client's assigned unique bus name. Serial is left 0;
// Connection.Enqueue assigns it.
func Hello() Message {
	return Message{
		Kind:        KindMethodCall,
		Path:        busPath,
		Interface:   busInterface,
		Member:      "Hello",
		Destination: busName,
	}
}

// RequestName builds a call to acquire a well-known bus name.
func RequestName(name string, flags RequestNameFlag) Message {
	return Message{
		Kind:        KindMethodCall,
		Path:        busPath,
		Interface:   busInterface,
		Member:      "RequestName",
		Destination: busName,
		Body: []Value{
			NewString(name),
			NewUInt32(uint32(flags)),
		},
	}
}

// ListNames builds a call enumerating all names currently on the bus.
func ListNames() Message {
	return Message{
		Kind:        KindMethodCall,
		Path:        busPath,
		Interface:   busInterface,
		Member:      "ListNames",
		Destination: busName,
	}
}

// AddMatch builds a call registering a signal match rule, e.g.
// "type='signal',interface='org.freedesktop.DBus'".
func AddMatch(rule string) Message {
	return Message{
		Kind:        KindMethodCall,
		Path:        busPath,
		Interface:   busInterface,
		Member:      "AddMatch",
		Destination: busName,
		Body:        []Value{NewString(rule)},
	}
}

// GetManagedObjects builds the standard ObjectManager introspection call
// used to discover BlueZ (and other) object trees in one round trip.
func GetManagedObjects(dest string, path ObjectPath) Message {
	return Message{
		Kind:        KindMethodCall,
		Path:        path,
		Interface:   "org.freedesktop.DBus.ObjectManager",
		Member:      "GetManagedObjects",
		Destination: dest,
	}
}

// MatchSignal returns a predicate matching signals from the given
// interface and member, for use against EventSignal messages.
func MatchSignal(iface, member string) func(Message) bool {
	return func(m Message) bool {
		return m.Kind == KindSignal && m.Interface == iface && m.Member == member
	}
}

// ReplyBody copies a successful reply's body values into into, positionally
// by index, failing if the arities differ.
func ReplyBody(msg Message, into ...*Value) error {
	if len(into) != len(msg.Body) {
		return contractErrf("reply_body", "expected %d body values, reply has %d", len(into), len(msg.Body))
	}
	for i, v := range into {
		*v = msg.Body[i]
	}
	return nil
}
