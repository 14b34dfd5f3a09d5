package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Header type codes, spec §3.
const (
	TypeBoolTrue  byte = 0
	TypeBoolFalse byte = 1
	TypeByte      byte = 2
	TypeShort     byte = 3
	TypeInt       byte = 4
	TypeLong      byte = 5
	TypeBytes     byte = 6
	TypeString    byte = 7
	TypeTimestamp byte = 8
	TypeUUID      byte = 9
)

// Header is a single (name, typed value) pair, per spec §3.
type Header struct {
	Name  string
	Type  byte
	Bool  bool
	Int8  int8
	Int16 int16
	Int32 int32
	Int64 int64 // also used for Timestamp (epoch ms)
	Bytes []byte
	Str   string
	UUID  [16]byte
}

// BoolHeader, StringHeader, etc. are small constructors for building
// Header values, e.g. for frames passed to Encode.

func BoolHeader(name string, v bool) Header {
	t := TypeBoolFalse
	if v {
		t = TypeBoolTrue
	}
	return Header{Name: name, Type: t, Bool: v}
}

func StringHeader(name, v string) Header {
	return Header{Name: name, Type: TypeString, Str: v}
}

func IntHeader(name string, v int32) Header {
	return Header{Name: name, Type: TypeInt, Int32: v}
}

func UUIDHeader(name string, v [16]byte) Header {
	return Header{Name: name, Type: TypeUUID, UUID: v}
}

// EncodeHeaders serializes an ordered list of headers into the wire TLV
// block described in spec §3/§4.2.
func EncodeHeaders(headers []Header) ([]byte, error) {
	buf := make([]byte, 0, 64)
	for _, h := range headers {
		if len(h.Name) > 255 {
			return nil, fmt.Errorf("wire: header name %q exceeds 255 bytes", h.Name)
		}
		buf = append(buf, byte(len(h.Name)))
		buf = append(buf, h.Name...)
		buf = append(buf, h.Type)

		switch h.Type {
		case TypeBoolTrue, TypeBoolFalse:
			// no payload
		case TypeByte:
			buf = append(buf, byte(h.Int8))
		case TypeShort:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(h.Int16))
			buf = append(buf, b[:]...)
		case TypeInt:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(h.Int32))
			buf = append(buf, b[:]...)
		case TypeLong, TypeTimestamp:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(h.Int64))
			buf = append(buf, b[:]...)
		case TypeBytes:
			if len(h.Bytes) > 0xFFFF {
				return nil, fmt.Errorf("wire: header %q bytes payload too long", h.Name)
			}
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(len(h.Bytes)))
			buf = append(buf, b[:]...)
			buf = append(buf, h.Bytes...)
		case TypeString:
			if len(h.Str) > 0xFFFF {
				return nil, fmt.Errorf("wire: header %q string payload too long", h.Name)
			}
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(len(h.Str)))
			buf = append(buf, b[:]...)
			buf = append(buf, h.Str...)
		case TypeUUID:
			buf = append(buf, h.UUID[:]...)
		default:
			return nil, fmt.Errorf("wire: unknown header type code %d", h.Type)
		}
	}
	return buf, nil
}

// DecodeHeaders parses the headers_length-byte block into an ordered list
// of headers. It consumes the block exactly; residual bytes are an error.
// An unknown type code fails the whole block per spec §4.2, letting the
// frame decoder substitute an empty header set.
func DecodeHeaders(block []byte) ([]Header, error) {
	var out []Header
	pos := 0
	for pos < len(block) {
		if pos+1 > len(block) {
			return nil, fmt.Errorf("wire: truncated header name length")
		}
		nameLen := int(block[pos])
		pos++
		if pos+nameLen > len(block) {
			return nil, fmt.Errorf("wire: truncated header name")
		}
		name := string(block[pos : pos+nameLen])
		pos += nameLen

		if pos+1 > len(block) {
			return nil, fmt.Errorf("wire: truncated header type code")
		}
		typeCode := block[pos]
		pos++

		h := Header{Name: name, Type: typeCode}
		switch typeCode {
		case TypeBoolTrue:
			h.Bool = true
		case TypeBoolFalse:
			h.Bool = false
		case TypeByte:
			if pos+1 > len(block) {
				return nil, fmt.Errorf("wire: truncated byte header %q", name)
			}
			h.Int8 = int8(block[pos])
			pos++
		case TypeShort:
			if pos+2 > len(block) {
				return nil, fmt.Errorf("wire: truncated short header %q", name)
			}
			h.Int16 = int16(binary.BigEndian.Uint16(block[pos : pos+2]))
			pos += 2
		case TypeInt:
			if pos+4 > len(block) {
				return nil, fmt.Errorf("wire: truncated int header %q", name)
			}
			h.Int32 = int32(binary.BigEndian.Uint32(block[pos : pos+4]))
			pos += 4
		case TypeLong, TypeTimestamp:
			if pos+8 > len(block) {
				return nil, fmt.Errorf("wire: truncated long/timestamp header %q", name)
			}
			h.Int64 = int64(binary.BigEndian.Uint64(block[pos : pos+8]))
			pos += 8
		case TypeBytes:
			if pos+2 > len(block) {
				return nil, fmt.Errorf("wire: truncated bytes length for header %q", name)
			}
			l := int(binary.BigEndian.Uint16(block[pos : pos+2]))
			pos += 2
			if pos+l > len(block) {
				return nil, fmt.Errorf("wire: truncated bytes payload for header %q", name)
			}
			h.Bytes = append([]byte(nil), block[pos:pos+l]...)
			pos += l
		case TypeString:
			if pos+2 > len(block) {
				return nil, fmt.Errorf("wire: truncated string length for header %q", name)
			}
			l := int(binary.BigEndian.Uint16(block[pos : pos+2]))
			pos += 2
			if pos+l > len(block) {
				return nil, fmt.Errorf("wire: truncated string payload for header %q", name)
			}
			sv := block[pos : pos+l]
			if !utf8.Valid(sv) {
				return nil, fmt.Errorf("wire: non-UTF-8 string payload for header %q", name)
			}
			h.Str = string(sv)
			pos += l
		case TypeUUID:
			if pos+16 > len(block) {
				return nil, fmt.Errorf("wire: truncated uuid header %q", name)
			}
			copy(h.UUID[:], block[pos:pos+16])
			pos += 16
		default:
			return nil, fmt.Errorf("wire: unknown header type code %d for %q", typeCode, name)
		}
		out = append(out, h)
	}
	return out, nil
}

// Lookup finds the first header named name.
func Lookup(headers []Header, name string) (Header, bool) {
	for _, h := range headers {
		if h.Name == name {
			return h, true
		}
	}
	return Header{}, false
}

// LookupString finds the first string-valued header named name.
func LookupString(headers []Header, name string) (string, bool) {
	h, ok := Lookup(headers, name)
	if !ok || h.Type != TypeString {
		return "", false
	}
	return h.Str, true
}
