package dbus

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Wire-level scenarios checked against literal bytes rather than just
// structural round trips.

func TestScenarioHelloCallEncoding(t *testing.T) {
	m := Hello()
	m.Serial = 1
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	wantPrefix := []byte{0x6C, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x6D, 0x00, 0x00, 0x00}
	if !bytes.Equal(raw[:16], wantPrefix) {
		t.Fatalf("fixed header = % X, want % X", raw[:16], wantPrefix)
	}
	fieldsLen := le32(raw[12:16])
	if fieldsLen != 0x6D {
		t.Fatalf("header fields length = %d, want 0x6D (109)", fieldsLen)
	}
	if len(raw) != align8(16+int(fieldsLen)) {
		t.Fatalf("total length = %d, want %d (header padded to 8, no body)", len(raw), align8(16+int(fieldsLen)))
	}

	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Hello round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioSignatureParseStructNesting(t *testing.T) {
	types, err := ParseSignature([]byte("(isad(gh))"))
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 {
		t.Fatalf("got %d complete types, want exactly 1 (the outer struct)", len(types))
	}
	want := Type{Kind: TypeStruct, Fields: []Type{
		{Kind: TypeInt32},
		{Kind: TypeString},
		{Kind: TypeArray, Elem: &Type{Kind: TypeDouble}},
		{Kind: TypeStruct, Fields: []Type{{Kind: TypeSignature}, {Kind: TypeUnixFD}}},
	}}
	if diff := cmp.Diff(want, types[0]); diff != "" {
		t.Errorf("parsed signature mismatch (-want +got):\n%s", diff)
	}
	if got := EmitSignature(types); got != "(isad(gh))" {
		t.Errorf("EmitSignature = %q, want %q", got, "(isad(gh))")
	}
}

func TestScenarioByteRoundTripIntAndString(t *testing.T) {
	m := Message{
		Kind:   KindMethodCall,
		Serial: 1,
		Path:   "/x",
		Member: "M",
		Body:   []Value{NewInt32(5), NewString("hi")},
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	bodyLen := le32(raw[4:8])
	if bodyLen != 11 {
		t.Fatalf("body length = %d, want 11 (4 for int32 + 4 len + 2 chars + 1 NUL)", bodyLen)
	}
	fieldsLen := le32(raw[12:16])
	bodyOffset := align8(16 + int(fieldsLen))
	if bodyOffset%8 != 0 {
		t.Fatalf("body offset %d is not 8-byte aligned", bodyOffset)
	}

	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioEmptyStringArrayEncoding(t *testing.T) {
	elem := Type{Kind: TypeString}
	v := NewArray(elem)
	buf := &encodingBuffer{}
	if err := EncodeValue(buf, Type{Kind: TypeArray, Elem: &elem}, v); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	if len(raw) != 4 {
		t.Fatalf("empty string array encoded to %d bytes, want exactly 4 (no padding needed)", len(raw))
	}
	if !bytes.Equal(raw, []byte{0, 0, 0, 0}) {
		t.Fatalf("empty array bytes = % X, want 00 00 00 00", raw)
	}
}

func TestScenarioPropertiesChangedSignalParse(t *testing.T) {
	m := Message{
		Kind:      KindSignal,
		Serial:    1,
		Path:      "/org/local/X",
		Interface: "org.freedesktop.DBus.Properties",
		Member:    "PropertiesChanged",
		Body: []Value{
			NewString("org.X"),
			NewArray(Type{Kind: TypeDictEntry, Fields: []Type{{Kind: TypeString}, {Kind: TypeVariant}}}),
			NewArray(Type{Kind: TypeString}),
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
	if len(got.Body) != 3 {
		t.Fatalf("got %d body values, want 3", len(got.Body))
	}
	if got.Body[0].Str != "org.X" {
		t.Errorf("body[0] = %q, want %q", got.Body[0].Str, "org.X")
	}
	if len(got.Body[1].Array) != 0 {
		t.Errorf("body[1] (dict array) should be empty, got %d entries", len(got.Body[1].Array))
	}
	if len(got.Body[2].Array) != 0 {
		t.Errorf("body[2] (string array) should be empty, got %d entries", len(got.Body[2].Array))
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("PropertiesChanged round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioAuthInterleaveByteAtATime(t *testing.T) {
	a := NewAuth("1000")
	writeAll(t, a) // past WritingZero
	writeAll(t, a) // past WritingAuthExternal, now ReadingData

	dataLine := "DATA\r\n"
	for i := 0; i < len(dataLine); i++ {
		if a.Wants() != AuthWantRead {
			t.Fatalf("Wants() = %v mid-DATA-line, want Read", a.Wants())
		}
		if _, err := a.SatisfyRead([]byte{dataLine[i]}); err != nil {
			t.Fatal(err)
		}
	}
	if a.Wants() != AuthWantWrite {
		t.Fatalf("Wants() after DATA line = %v, want Write", a.Wants())
	}
	writeAll(t, a)

	guidHex := "0123456789abcdef0123456789abcdef"[:32]
	guidLine := "OK " + guidHex + "\r\n"
	chunks := [][]byte{[]byte(guidLine[:20]), []byte(guidLine[20:])}
	for _, chunk := range chunks {
		if a.Wants() != AuthWantRead {
			t.Fatalf("Wants() = %v mid-GUID-line, want Read", a.Wants())
		}
		if _, err := a.SatisfyRead(chunk); err != nil {
			t.Fatal(err)
		}
	}
	if a.Wants() != AuthWantWrite {
		t.Fatalf("Wants() after OK line = %v, want Write for BEGIN", a.Wants())
	}
	writeAll(t, a)
	if !a.Done() || a.GUID().String() != guidHex {
		t.Fatalf("expected Done with GUID %q, got done=%v guid=%q", guidHex, a.Done(), a.GUID().String())
	}
}
