package dbus

import (
	lru "github.com/hashicorp/golang-lru"
)

// Type codes, the single-byte alphabet a D-Bus signature is built from.
const (
	TypeByte       byte = 'y'
	TypeBool       byte = 'b'
	TypeInt16      byte = 'n'
	TypeUInt16     byte = 'q'
	TypeInt32      byte = 'i'
	TypeUInt32     byte = 'u'
	TypeInt64      byte = 'x'
	TypeUInt64     byte = 't'
	TypeDouble     byte = 'd'
	TypeUnixFD     byte = 'h'
	TypeString     byte = 's'
	TypeObjectPath byte = 'o'
	TypeSignature  byte = 'g'
	TypeVariant    byte = 'v'
	TypeStruct     byte = '('
	TypeArray      byte = 'a'
	TypeDictEntry  byte = '{'
)

// maxTypeDepth bounds recursive-descent parsing against malicious or
// accidental deeply-nested signatures.
const maxTypeDepth = 64

// Type is a complete D-Bus type descriptor: a resolved node in the D-Bus
// type tree. Struct and DictEntry carry their member
// types in Fields (DictEntry always has exactly two: key then value); Array
// carries its single element type in Elem.
type Type struct {
	Kind   byte
	Elem   *Type
	Fields []Type
}

// Alignment returns the fixed alignment for t per the D-Bus wire format.
func Alignment(t Type) int {
	switch t.Kind {
	case TypeByte, TypeSignature, TypeVariant:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeBool, TypeUnixFD, TypeString, TypeObjectPath, TypeArray:
		return 4
	case TypeInt64, TypeUInt64, TypeDouble, TypeStruct, TypeDictEntry:
		return 8
	default:
		return 1
	}
}

// EmitType renders t back to its wire signature form.
func EmitType(t Type) string {
	switch t.Kind {
	case TypeArray:
		return "a" + EmitType(*t.Elem)
	case TypeStruct:
		s := "("
		for _, f := range t.Fields {
			s += EmitType(f)
		}
		return s + ")"
	case TypeDictEntry:
		return "{" + EmitType(t.Fields[0]) + EmitType(t.Fields[1]) + "}"
	default:
		return string(t.Kind)
	}
}

// EmitSignature renders a full ordered sequence of complete types.
func EmitSignature(types []Type) string {
	s := ""
	for _, t := range types {
		s += EmitType(t)
	}
	return s
}

// signatureCache memoizes ParseSignature results keyed by the wire string,
// since the same method-call/reply signatures repeat many times over a
// connection's lifetime.
var signatureCache, _ = lru.New(256)

// ParseSignature parses an ordered sequence of complete types from their
// wire-form signature string. It requires the entire input to be consumed
// by complete types; a dangling partial type is a parse error.
func ParseSignature(sig []byte) ([]Type, error) {
	key := string(sig)
	if v, ok := signatureCache.Get(key); ok {
		return cloneTypes(v.([]Type)), nil
	}
	pos := 0
	var out []Type
	for pos < len(sig) {
		t, err := parseCompleteType(sig, &pos, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	signatureCache.Add(key, cloneTypes(out))
	return out, nil
}

func cloneTypes(in []Type) []Type {
	out := make([]Type, len(in))
	copy(out, in)
	return out
}

func parseCompleteType(sig []byte, pos *int, depth int) (Type, error) {
	if depth > maxTypeDepth {
		return Type{}, protoErrf("parse_signature", "type nesting exceeds %d", maxTypeDepth)
	}
	if *pos >= len(sig) {
		return Type{}, protoErrf("parse_signature", "unexpected end of signature")
	}
	c := sig[*pos]
	switch c {
	case TypeByte, TypeBool, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32,
		TypeInt64, TypeUInt64, TypeDouble, TypeUnixFD, TypeString,
		TypeObjectPath, TypeSignature, TypeVariant:
		*pos++
		return Type{Kind: c}, nil
	case TypeArray:
		*pos++
		elem, err := parseCompleteType(sig, pos, depth+1)
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: TypeArray, Elem: &elem}, nil
	case '(':
		*pos++
		var fields []Type
		for {
			if *pos >= len(sig) {
				return Type{}, protoErrf("parse_signature", "unterminated struct")
			}
			if sig[*pos] == ')' {
				*pos++
				return Type{Kind: TypeStruct, Fields: fields}, nil
			}
			f, err := parseCompleteType(sig, pos, depth+1)
			if err != nil {
				return Type{}, err
			}
			fields = append(fields, f)
		}
	case '{':
		*pos++
		key, err := parseCompleteType(sig, pos, depth+1)
		if err != nil {
			return Type{}, err
		}
		if !isBasicType(key.Kind) {
			return Type{}, protoErrf("parse_signature", "dict-entry key must be a basic type, got %q", key.Kind)
		}
		val, err := parseCompleteType(sig, pos, depth+1)
		if err != nil {
			return Type{}, err
		}
		if *pos >= len(sig) || sig[*pos] != '}' {
			return Type{}, protoErrf("parse_signature", "unterminated dict-entry")
		}
		*pos++
		return Type{Kind: TypeDictEntry, Fields: []Type{key, val}}, nil
	default:
		return Type{}, protoErrf("parse_signature", "unknown type code %q", c)
	}
}

func isBasicType(k byte) bool {
	switch k {
	case TypeByte, TypeBool, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32,
		TypeInt64, TypeUInt64, TypeDouble, TypeUnixFD, TypeString,
		TypeObjectPath, TypeSignature:
		return true
	default:
		return false
	}
}

// SignatureOf derives the complete type of a value. It is total except for
// Array values whose elements don't all share the declared element type,
// which is a programming error surfaced as EncodeError.
func SignatureOf(v Value) (Type, error) {
	switch v.Kind {
	case TypeStruct:
		fields := make([]Type, 0, len(v.Struct))
		for _, f := range v.Struct {
			ft, err := SignatureOf(f)
			if err != nil {
				return Type{}, err
			}
			fields = append(fields, ft)
		}
		return Type{Kind: TypeStruct, Fields: fields}, nil
	case TypeDictEntry:
		kt, err := SignatureOf(v.Struct[0])
		if err != nil {
			return Type{}, err
		}
		vt, err := SignatureOf(v.Struct[1])
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: TypeDictEntry, Fields: []Type{kt, vt}}, nil
	case TypeArray:
		elem := v.ArrayElem
		for i, item := range v.Array {
			it, err := SignatureOf(item)
			if err != nil {
				return Type{}, err
			}
			if EmitType(it) != EmitType(elem) {
				return Type{}, encodeErrf("signature_of", "array element %d has type %q, want %q", i, EmitType(it), EmitType(elem))
			}
		}
		return Type{Kind: TypeArray, Elem: &elem}, nil
	case TypeVariant:
		return Type{Kind: TypeVariant}, nil
	default:
		return Type{Kind: v.Kind}, nil
	}
}
