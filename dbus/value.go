package dbus

import "unicode/utf8"

func isValidUTF8(s string) bool { return utf8.ValidString(s) }

// ObjectPath is a D-Bus object path. This layer validates it as UTF-8 only;
// the stricter object-path grammar is left to higher layers.
type ObjectPath string

// Value is a tagged union mirroring the complete-type set. An Array value
// always carries its element type explicitly in ArrayElem so that an empty
// array remains well-typed; a Struct's field types follow its contained
// Values in declaration order; a Variant carries an inner Value whose type
// is derived on encode and read inline on decode.
type Value struct {
	Kind byte

	Byte   byte
	Bool   bool
	Int16  int16
	UInt16 uint16
	Int32  int32
	UInt32 uint32
	Int64  int64
	UInt64 uint64
	Double float64
	UnixFD uint32

	// Str carries String, ObjectPath and Signature payloads.
	Str string

	// Struct carries Struct fields in order, or exactly two entries
	// (key, value) for a DictEntry.
	Struct []Value

	// ArrayElem is the declared element type of an Array value.
	ArrayElem Type
	Array     []Value

	// Variant carries the inner value of a Variant.
	Variant *Value
}

func NewByte(v byte) Value       { return Value{Kind: TypeByte, Byte: v} }
func NewBool(v bool) Value       { return Value{Kind: TypeBool, Bool: v} }
func NewInt16(v int16) Value     { return Value{Kind: TypeInt16, Int16: v} }
func NewUInt16(v uint16) Value   { return Value{Kind: TypeUInt16, UInt16: v} }
func NewInt32(v int32) Value     { return Value{Kind: TypeInt32, Int32: v} }
func NewUInt32(v uint32) Value   { return Value{Kind: TypeUInt32, UInt32: v} }
func NewInt64(v int64) Value     { return Value{Kind: TypeInt64, Int64: v} }
func NewUInt64(v uint64) Value   { return Value{Kind: TypeUInt64, UInt64: v} }
func NewDouble(v float64) Value  { return Value{Kind: TypeDouble, Double: v} }
func NewUnixFD(v uint32) Value   { return Value{Kind: TypeUnixFD, UnixFD: v} }
func NewString(v string) Value   { return Value{Kind: TypeString, Str: v} }
func NewObjectPath(v ObjectPath) Value {
	return Value{Kind: TypeObjectPath, Str: string(v)}
}
func NewSignature(v string) Value { return Value{Kind: TypeSignature, Str: v} }
func NewStruct(fields ...Value) Value {
	return Value{Kind: TypeStruct, Struct: fields}
}
func NewDictEntry(key, val Value) Value {
	return Value{Kind: TypeDictEntry, Struct: []Value{key, val}}
}
func NewArray(elem Type, items ...Value) Value {
	return Value{Kind: TypeArray, ArrayElem: elem, Array: items}
}
func NewVariant(inner Value) Value {
	return Value{Kind: TypeVariant, Variant: &inner}
}

// EncodeValue writes v to buf using t to resolve the array element type and
// (for header-field and top-level body values) the value's own declared
// type. Callers encode top-level values with t equal to SignatureOf(v).
func EncodeValue(buf *encodingBuffer, t Type, v Value) error {
	buf.Align(Alignment(t))
	switch t.Kind {
	case TypeByte:
		buf.WriteByte(v.Byte)
	case TypeBool:
		if v.Bool {
			buf.WriteU32(1)
		} else {
			buf.WriteU32(0)
		}
	case TypeInt16:
		buf.WriteU16(uint16(v.Int16))
	case TypeUInt16:
		buf.WriteU16(v.UInt16)
	case TypeInt32:
		buf.WriteU32(uint32(v.Int32))
	case TypeUInt32:
		buf.WriteU32(v.UInt32)
	case TypeInt64:
		buf.WriteU64(uint64(v.Int64))
	case TypeUInt64:
		buf.WriteU64(v.UInt64)
	case TypeDouble:
		buf.WriteF64(v.Double)
	case TypeUnixFD:
		buf.WriteU32(v.UnixFD)
	case TypeString, TypeObjectPath:
		encodeWireString(buf, v.Str)
	case TypeSignature:
		encodeWireSignatureString(buf, v.Str)
	case TypeStruct:
		return encodeStructFields(buf, t.Fields, v.Struct)
	case TypeDictEntry:
		return encodeStructFields(buf, t.Fields, v.Struct)
	case TypeArray:
		return encodeArray(buf, *t.Elem, v.Array)
	case TypeVariant:
		return encodeVariant(buf, *v.Variant)
	default:
		return encodeErrf("encode_value", "unknown type code %q", t.Kind)
	}
	return nil
}

func encodeStructFields(buf *encodingBuffer, fieldTypes []Type, fields []Value) error {
	if len(fieldTypes) != len(fields) {
		return encodeErrf("encode_struct", "expected %d fields, got %d", len(fieldTypes), len(fields))
	}
	for i, ft := range fieldTypes {
		if err := EncodeValue(buf, ft, fields[i]); err != nil {
			return err
		}
	}
	return nil
}

// encodeArray records the offset of the 4-byte length word, pads to the
// element alignment, emits elements, then patches the length to the
// number of bytes written since the post-padding anchor, not the element
// count. The array length is the one place in the wire format where a
// length describes "bytes after me" rather than a region with a prefix.
func encodeArray(buf *encodingBuffer, elem Type, items []Value) error {
	buf.Align(4)
	lenOff := buf.Len()
	buf.WriteU32(0)
	buf.Align(Alignment(elem))
	bodyStart := buf.Len()
	for i, item := range items {
		if err := EncodeValue(buf, elem, item); err != nil {
			return encodeErrf("encode_array", "element %d: %w", i, err)
		}
	}
	buf.SetU32(lenOff, uint32(buf.Len()-bodyStart))
	return nil
}

func encodeVariant(buf *encodingBuffer, inner Value) error {
	t, err := SignatureOf(inner)
	if err != nil {
		return err
	}
	encodeWireSignatureString(buf, EmitType(t))
	return EncodeValue(buf, t, inner)
}

func encodeWireString(buf *encodingBuffer, s string) {
	buf.WriteU32(uint32(len(s)))
	buf.WriteBytes([]byte(s))
	buf.WriteByte(0)
}

// encodeWireSignatureString writes the SIGNATURE complete-type form: a
// 1-byte length (no alignment), the bytes, then a trailing NUL. This is the
// same low-level shape used both for a body/header SIGNATURE value and for
// a Variant's inline type prefix.
func encodeWireSignatureString(buf *encodingBuffer, s string) {
	buf.WriteByte(byte(len(s)))
	buf.WriteBytes([]byte(s))
	buf.WriteByte(0)
}

// DecodeValue reads a value of type t from buf.
func DecodeValue(buf *decodingBuffer, t Type) (Value, error) {
	return decodeValue(buf, t, 0)
}

// decodeValue is the recursion-bounded implementation behind DecodeValue.
// depth counts nesting through Struct/DictEntry fields, Array elements and
// Variant payloads; it is the wire-decode counterpart to
// parseCompleteType's depth guard and exists for the same reason — a
// malicious or corrupt message can nest Variants (or Struct/Array types)
// arbitrarily deeply, and each level of DecodeValue recursion costs a Go
// stack frame, so unbounded nesting is a stack-exhaustion vector rather
// than just a slow parse. The bound is shared with signature parsing
// (maxTypeDepth).
func decodeValue(buf *decodingBuffer, t Type, depth int) (Value, error) {
	if depth > maxTypeDepth {
		return Value{}, protoErrf("decode_value", "type nesting exceeds %d", maxTypeDepth)
	}
	if err := buf.Align(Alignment(t)); err != nil {
		return Value{}, err
	}
	switch t.Kind {
	case TypeByte:
		b, err := buf.NextByte()
		return Value{Kind: TypeByte, Byte: b}, err
	case TypeBool:
		u, err := buf.NextU32()
		return Value{Kind: TypeBool, Bool: u != 0}, err
	case TypeInt16:
		v, err := buf.NextI16()
		return Value{Kind: TypeInt16, Int16: v}, err
	case TypeUInt16:
		v, err := buf.NextU16()
		return Value{Kind: TypeUInt16, UInt16: v}, err
	case TypeInt32:
		v, err := buf.NextI32()
		return Value{Kind: TypeInt32, Int32: v}, err
	case TypeUInt32:
		v, err := buf.NextU32()
		return Value{Kind: TypeUInt32, UInt32: v}, err
	case TypeInt64:
		v, err := buf.NextI64()
		return Value{Kind: TypeInt64, Int64: v}, err
	case TypeUInt64:
		v, err := buf.NextU64()
		return Value{Kind: TypeUInt64, UInt64: v}, err
	case TypeDouble:
		v, err := buf.NextF64()
		return Value{Kind: TypeDouble, Double: v}, err
	case TypeUnixFD:
		v, err := buf.NextU32()
		return Value{Kind: TypeUnixFD, UnixFD: v}, err
	case TypeString, TypeObjectPath:
		s, err := decodeWireString(buf)
		return Value{Kind: t.Kind, Str: s}, err
	case TypeSignature:
		s, err := decodeWireSignatureString(buf)
		return Value{Kind: TypeSignature, Str: s}, err
	case TypeStruct:
		fields, err := decodeStructFields(buf, t.Fields, depth+1)
		return Value{Kind: TypeStruct, Struct: fields}, err
	case TypeDictEntry:
		fields, err := decodeStructFields(buf, t.Fields, depth+1)
		return Value{Kind: TypeDictEntry, Struct: fields}, err
	case TypeArray:
		items, err := decodeArray(buf, *t.Elem, depth+1)
		return Value{Kind: TypeArray, ArrayElem: *t.Elem, Array: items}, err
	case TypeVariant:
		return decodeVariant(buf, depth+1)
	default:
		return Value{}, protoErrf("decode_value", "unknown type code %q", t.Kind)
	}
}

func decodeStructFields(buf *decodingBuffer, fieldTypes []Type, depth int) ([]Value, error) {
	fields := make([]Value, 0, len(fieldTypes))
	for _, ft := range fieldTypes {
		v, err := decodeValue(buf, ft, depth)
		if err != nil {
			return nil, err
		}
		fields = append(fields, v)
	}
	return fields, nil
}

// decodeArray reverses encodeArray: read the byte length, align to the
// element type, then consume exactly that many bytes producing elements. A
// zero length legally produces no elements, but the alignment padding
// before the (empty) element region must still have been applied.
func decodeArray(buf *decodingBuffer, elem Type, depth int) ([]Value, error) {
	n, err := buf.NextU32()
	if err != nil {
		return nil, err
	}
	if err := buf.Align(Alignment(elem)); err != nil {
		return nil, err
	}
	end := buf.pos + int(n)
	if end > len(buf.buf) {
		return nil, protoErrf("decode_array", "array claims %d bytes, only %d remain", n, buf.LenRemaining())
	}
	var items []Value
	for buf.pos < end {
		v, err := decodeValue(buf, elem, depth)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if buf.pos != end {
		return nil, protoErrf("decode_array", "element decode overran declared array length")
	}
	return items, nil
}

func decodeWireString(buf *decodingBuffer) (string, error) {
	n, err := buf.NextU32()
	if err != nil {
		return "", err
	}
	b, err := buf.NextN(int(n))
	if err != nil {
		return "", err
	}
	s := string(b)
	if !isValidUTF8(s) {
		return "", protoErrf("decode_string", "not valid UTF-8")
	}
	if _, err := buf.NextByte(); err != nil {
		return "", protoErrf("decode_string", "missing trailing NUL: %w", err)
	}
	return s, nil
}

func decodeWireSignatureString(buf *decodingBuffer) (string, error) {
	n, err := buf.NextByte()
	if err != nil {
		return "", err
	}
	b, err := buf.NextN(int(n))
	if err != nil {
		return "", err
	}
	s := string(b)
	if _, err := buf.NextByte(); err != nil {
		return "", protoErrf("decode_signature", "missing trailing NUL: %w", err)
	}
	return s, nil
}

// decodeVariant reads the inline type prefix (a signature of exactly one
// complete type) and then the value itself. A multi-type signature inside a
// variant is malformed. depth is the nesting depth already
// consumed by the Variant wrapper itself, so a chain of nested Variants
// trips decodeValue's bound instead of recursing unbounded.
func decodeVariant(buf *decodingBuffer, depth int) (Value, error) {
	sig, err := decodeWireSignatureString(buf)
	if err != nil {
		return Value{}, err
	}
	types, err := ParseSignature([]byte(sig))
	if err != nil {
		return Value{}, err
	}
	if len(types) != 1 {
		return Value{}, protoErrf("decode_variant", "variant signature must be exactly one complete type, got %d", len(types))
	}
	inner, err := decodeValue(buf, types[0], depth)
	if err != nil {
		return Value{}, err
	}
	return NewVariant(inner), nil
}
