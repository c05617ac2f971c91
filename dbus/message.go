package dbus

// Message kinds, the byte at header offset 1.
const (
	KindMethodCall   byte = 1
	KindMethodReturn byte = 2
	KindError        byte = 3
	KindSignal       byte = 4
)

// Message flags, the byte at header offset 2.
const (
	FlagNoReplyExpected      byte = 0x1
	FlagNoAutoStart          byte = 0x2
	FlagAllowInteractiveAuth byte = 0x4
)

// protocolVersion is the only version this package speaks.
const protocolVersion byte = 1

// Header field codes.
const (
	fieldPath        byte = 1
	fieldInterface   byte = 2
	fieldMember      byte = 3
	fieldErrorName   byte = 4
	fieldReplySerial byte = 5
	fieldDestination byte = 6
	fieldSender      byte = 7
	fieldSignature   byte = 8
	fieldUnixFDs     byte = 9
)

// Message is a fully decoded D-Bus message, or one under construction for
// sending. Serial is 0 for a message not yet handed to a Connection;
// Connection.Enqueue is the only thing that assigns a nonzero Serial (see
// Hello and RequestName in pattern.go, which build messages with Serial
// left at its zero value).
//
// Presence of Path, Interface, Member, ErrorName, Destination and Sender is
// represented by non-emptiness, since the D-Bus grammar never allows an
// empty value for any of them. ReplySerial and UnixFDs can legitimately be
// zero, so their presence is tracked by the paired Has* flag.
type Message struct {
	Kind  byte
	Flags byte

	Serial uint32

	Path      ObjectPath
	Interface string
	Member    string
	ErrorName string

	HasReplySerial bool
	ReplySerial    uint32

	Destination string
	Sender      string

	HasUnixFDs bool
	UnixFDs    uint32

	Body []Value
}

// bodySignature derives the wire SIGNATURE header field from the actual
// body values rather than requiring the caller to keep it in sync by hand.
func bodySignature(body []Value) (string, []Type, error) {
	types := make([]Type, 0, len(body))
	for _, v := range body {
		t, err := SignatureOf(v)
		if err != nil {
			return "", nil, err
		}
		types = append(types, t)
	}
	return EmitSignature(types), types, nil
}

// EncodeMessage serializes m to its complete wire form: the 16-byte fixed
// header, the a(yv) header-fields array, alignment padding to an 8-byte
// boundary, then the body. Both the header-fields length and the body
// length are unknown until their regions are fully emitted, so both are
// written as zero and patched afterward via encodingBuffer.SetU32, the same
// length-patch mechanism used for arrays.
func EncodeMessage(m Message) ([]byte, error) {
	sig, types, err := bodySignature(m.Body)
	if err != nil {
		return nil, err
	}

	buf := &encodingBuffer{}
	buf.WriteByte('l') // little-endian
	buf.WriteByte(m.Kind)
	buf.WriteByte(m.Flags)
	buf.WriteByte(protocolVersion)
	buf.WriteU32(0) // body length, patched below
	buf.WriteU32(m.Serial)

	fieldsLenOff := buf.Len()
	buf.WriteU32(0) // header fields array length, patched below
	fieldsStart := buf.Len()

	if m.Path != "" {
		if err := encodeHeaderField(buf, fieldPath, Type{Kind: TypeObjectPath}, Value{Kind: TypeObjectPath, Str: string(m.Path)}); err != nil {
			return nil, err
		}
	}
	if m.Interface != "" {
		if err := encodeHeaderField(buf, fieldInterface, Type{Kind: TypeString}, NewString(m.Interface)); err != nil {
			return nil, err
		}
	}
	if m.Member != "" {
		if err := encodeHeaderField(buf, fieldMember, Type{Kind: TypeString}, NewString(m.Member)); err != nil {
			return nil, err
		}
	}
	if m.ErrorName != "" {
		if err := encodeHeaderField(buf, fieldErrorName, Type{Kind: TypeString}, NewString(m.ErrorName)); err != nil {
			return nil, err
		}
	}
	if m.HasReplySerial {
		if err := encodeHeaderField(buf, fieldReplySerial, Type{Kind: TypeUInt32}, NewUInt32(m.ReplySerial)); err != nil {
			return nil, err
		}
	}
	if m.Destination != "" {
		if err := encodeHeaderField(buf, fieldDestination, Type{Kind: TypeString}, NewString(m.Destination)); err != nil {
			return nil, err
		}
	}
	if m.Sender != "" {
		if err := encodeHeaderField(buf, fieldSender, Type{Kind: TypeString}, NewString(m.Sender)); err != nil {
			return nil, err
		}
	}
	if sig != "" {
		if err := encodeHeaderField(buf, fieldSignature, Type{Kind: TypeSignature}, NewSignature(sig)); err != nil {
			return nil, err
		}
	}
	if m.HasUnixFDs {
		if err := encodeHeaderField(buf, fieldUnixFDs, Type{Kind: TypeUInt32}, NewUInt32(m.UnixFDs)); err != nil {
			return nil, err
		}
	}
	buf.SetU32(fieldsLenOff, uint32(buf.Len()-fieldsStart))

	buf.Align(8)
	bodyStart := buf.Len()
	for i, v := range m.Body {
		if err := EncodeValue(buf, types[i], v); err != nil {
			return nil, encodeErrf("encode_message", "body value %d: %w", i, err)
		}
	}
	buf.SetU32(4, uint32(buf.Len()-bodyStart))

	return buf.Bytes(), nil
}

// encodeHeaderField writes one a(yv) element: a BYTE field code followed by
// a VARIANT holding the field's value, with the struct's natural 8-byte
// alignment applied first.
func encodeHeaderField(buf *encodingBuffer, code byte, t Type, v Value) error {
	buf.Align(8)
	buf.WriteByte(code)
	encodeWireSignatureString(buf, EmitType(t))
	buf.Align(Alignment(t))
	return EncodeValue(buf, t, v)
}

// DecodeMessage parses a complete message from raw, which must cover
// exactly one message starting at offset 0 (the reader FSM is responsible
// for sizing that slice; see reader.go).
func DecodeMessage(raw []byte) (Message, error) {
	d := newDecodingBuffer(raw)

	endian, err := d.NextByte()
	if err != nil {
		return Message{}, err
	}
	if endian != 'l' {
		return Message{}, protoErrf("decode_message", "unsupported endianness %q", endian)
	}
	kind, err := d.NextByte()
	if err != nil {
		return Message{}, err
	}
	flags, err := d.NextByte()
	if err != nil {
		return Message{}, err
	}
	version, err := d.NextByte()
	if err != nil {
		return Message{}, err
	}
	if version != protocolVersion {
		return Message{}, protoErrf("decode_message", "unsupported protocol version %d", version)
	}
	bodyLen, err := d.NextU32()
	if err != nil {
		return Message{}, err
	}
	serial, err := d.NextU32()
	if err != nil {
		return Message{}, err
	}

	m := Message{Kind: kind, Flags: flags, Serial: serial}

	fieldsLen, err := d.NextU32()
	if err != nil {
		return Message{}, err
	}
	fieldsEnd := d.pos + int(fieldsLen)
	var sig string
	for d.pos < fieldsEnd {
		if err := d.Align(8); err != nil {
			return Message{}, err
		}
		if d.pos >= fieldsEnd {
			break
		}
		code, err := d.NextByte()
		if err != nil {
			return Message{}, err
		}
		if code == 0 {
			return Message{}, protoErrf("decode_message", "header field code 0 is invalid")
		}
		fsig, err := decodeWireSignatureString(d)
		if err != nil {
			return Message{}, err
		}
		ftypes, err := ParseSignature([]byte(fsig))
		if err != nil {
			return Message{}, err
		}
		if len(ftypes) != 1 {
			return Message{}, protoErrf("decode_message", "header field %d has non-singular signature %q", code, fsig)
		}
		if err := d.Align(Alignment(ftypes[0])); err != nil {
			return Message{}, err
		}
		v, err := DecodeValue(d, ftypes[0])
		if err != nil {
			return Message{}, err
		}
		switch code {
		case fieldPath:
			m.Path = ObjectPath(v.Str)
		case fieldInterface:
			m.Interface = v.Str
		case fieldMember:
			m.Member = v.Str
		case fieldErrorName:
			m.ErrorName = v.Str
		case fieldReplySerial:
			m.HasReplySerial = true
			m.ReplySerial = v.UInt32
		case fieldDestination:
			m.Destination = v.Str
		case fieldSender:
			m.Sender = v.Str
		case fieldSignature:
			sig = v.Str
		case fieldUnixFDs:
			m.HasUnixFDs = true
			m.UnixFDs = v.UInt32
		}
	}
	if d.pos != fieldsEnd {
		return Message{}, protoErrf("decode_message", "header fields overran declared length")
	}

	if err := validateRequiredFields(m); err != nil {
		return Message{}, err
	}

	if err := d.Align(8); err != nil {
		return Message{}, err
	}
	bodyTypes, err := ParseSignature([]byte(sig))
	if err != nil {
		return Message{}, err
	}
	bodyStart := d.pos
	for _, t := range bodyTypes {
		v, err := DecodeValue(d, t)
		if err != nil {
			return Message{}, err
		}
		m.Body = append(m.Body, v)
	}
	if d.pos-bodyStart != int(bodyLen) {
		return Message{}, protoErrf("decode_message", "body length mismatch: header says %d, consumed %d", bodyLen, d.pos-bodyStart)
	}
	if !d.IsEOF() {
		return Message{}, protoErrf("decode_message", "%d trailing bytes after body", d.LenRemaining())
	}

	return m, nil
}

// validateRequiredFields enforces the per-kind mandatory header fields:
// METHOD_CALL needs PATH and MEMBER, METHOD_RETURN and ERROR
// need REPLY_SERIAL, ERROR additionally needs ERROR_NAME, SIGNAL needs PATH,
// INTERFACE and MEMBER.
func validateRequiredFields(m Message) error {
	switch m.Kind {
	case KindMethodCall:
		if m.Path == "" || m.Member == "" {
			return protoErrf("decode_message", "method call missing required PATH/MEMBER fields")
		}
	case KindMethodReturn:
		if !m.HasReplySerial {
			return protoErrf("decode_message", "method return missing required REPLY_SERIAL field")
		}
	case KindError:
		if !m.HasReplySerial || m.ErrorName == "" {
			return protoErrf("decode_message", "error missing required REPLY_SERIAL/ERROR_NAME fields")
		}
	case KindSignal:
		if m.Path == "" || m.Interface == "" || m.Member == "" {
			return protoErrf("decode_message", "signal missing required PATH/INTERFACE/MEMBER fields")
		}
	default:
		return protoErrf("decode_message", "unknown message kind %d", m.Kind)
	}
	return nil
}
