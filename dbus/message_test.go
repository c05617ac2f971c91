package dbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMessageRoundTripMethodCall(t *testing.T) {
	m := Message{
		Kind:        KindMethodCall,
		Serial:      1,
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "Hello",
		Destination: "org.freedesktop.DBus",
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageRoundTripWithBody(t *testing.T) {
	m := Message{
		Kind:        KindMethodCall,
		Serial:      2,
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "RequestName",
		Destination: "org.freedesktop.DBus",
		Body: []Value{
			NewString("com.example.Test"),
			NewUInt32(4),
		},
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageRoundTripSignal(t *testing.T) {
	m := Message{
		Kind:      KindSignal,
		Serial:    5,
		Path:      "/org/freedesktop/DBus",
		Interface: "org.freedesktop.DBus",
		Member:    "NameOwnerChanged",
		Body: []Value{
			NewString("com.example.Test"),
			NewString(""),
			NewString(":1.42"),
		},
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageRoundTripError(t *testing.T) {
	m := Message{
		Kind:           KindError,
		Serial:         9,
		ErrorName:      "org.freedesktop.DBus.Error.NameHasNoOwner",
		HasReplySerial: true,
		ReplySerial:    3,
		Destination:    ":1.7",
		Body:           []Value{NewString("no such name")},
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeMessageRejectsMismatchedHeterogeneousArray(t *testing.T) {
	m := Message{
		Kind:   KindMethodCall,
		Path:   "/x",
		Member: "M",
		Body: []Value{
			NewArray(Type{Kind: TypeString}, NewString("ok"), NewInt32(1)),
		},
	}
	if _, err := EncodeMessage(m); err == nil {
		t.Fatal("expected an error encoding a heterogeneous array body value")
	}
}

func TestDecodeMessageRejectsMissingRequiredFields(t *testing.T) {
	m := Message{Kind: KindMethodCall, Serial: 1} // missing Path/Member
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatal("expected an error decoding a method call without PATH/MEMBER")
	}
}

func TestDecodeMessageRejectsBigEndian(t *testing.T) {
	m := Message{Kind: KindMethodCall, Serial: 1, Path: "/x", Member: "M"}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] = 'B'
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatal("expected an error decoding a big-endian message")
	}
}

// buildWithExtraField assembles a method-call message by hand so tests can
// inject header-field codes EncodeMessage would never emit.
func buildWithExtraField(t *testing.T, code byte) []byte {
	t.Helper()
	buf := &encodingBuffer{}
	buf.WriteByte('l')
	buf.WriteByte(KindMethodCall)
	buf.WriteByte(0)
	buf.WriteByte(protocolVersion)
	buf.WriteU32(0) // body length
	buf.WriteU32(1) // serial
	fieldsLenOff := buf.Len()
	buf.WriteU32(0)
	fieldsStart := buf.Len()
	if err := encodeHeaderField(buf, fieldPath, Type{Kind: TypeObjectPath}, NewObjectPath("/x")); err != nil {
		t.Fatal(err)
	}
	if err := encodeHeaderField(buf, fieldMember, Type{Kind: TypeString}, NewString("M")); err != nil {
		t.Fatal(err)
	}
	if err := encodeHeaderField(buf, code, Type{Kind: TypeUInt32}, NewUInt32(99)); err != nil {
		t.Fatal(err)
	}
	buf.SetU32(fieldsLenOff, uint32(buf.Len()-fieldsStart))
	buf.Align(8)
	return buf.Bytes()
}

func TestDecodeMessageIgnoresUnknownHeaderField(t *testing.T) {
	raw := buildWithExtraField(t, 200)
	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decoding a message with an unknown header field: %v", err)
	}
	if m.Path != "/x" || m.Member != "M" {
		t.Fatalf("recognized fields lost around the unknown one: %+v", m)
	}
}

func TestDecodeMessageRejectsHeaderFieldCodeZero(t *testing.T) {
	raw := buildWithExtraField(t, 0)
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatal("expected an error for the INVALID header field code 0")
	}
}

func TestMessageHeaderLengthIsAligned(t *testing.T) {
	m := Message{
		Kind:        KindMethodCall,
		Serial:      1,
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "Hello",
		Destination: "org.freedesktop.DBus",
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	fieldsLen := le32(raw[12:16])
	bodyOffset := align8(16 + int(fieldsLen))
	if bodyOffset%8 != 0 {
		t.Fatalf("body offset %d is not 8-byte aligned", bodyOffset)
	}
	if len(raw) != bodyOffset {
		t.Fatalf("message with empty body should end exactly at the aligned body offset, got len=%d want=%d", len(raw), bodyOffset)
	}
}
