// Package wire implements the minimal protobuf subset the Cascade bridge
// needs: unsigned varints, length-delimited fields, nested messages, and
// gRPC message framing. The language server's Metadata field numbers move
// between releases, so nothing here is generated from a schema — callers
// supply field numbers at runtime.
package wire

import (
	"encoding/binary"
)

// Protobuf wire types. Fixed64/Fixed32 only ever appear in responses and are
// skipped, never produced.
const (
	TypeVarint  = 0
	TypeFixed64 = 1
	TypeBytes   = 2
	TypeFixed32 = 5
)

// maxVarintLen is the longest valid encoding of a 64-bit varint.
const maxVarintLen = 10

// AppendUvarint appends v as an unsigned LEB128 varint.
func AppendUvarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// AppendTag appends a field tag: (field << 3) | wireType.
func AppendTag(b []byte, field int, wireType int) []byte {
	return AppendUvarint(b, uint64(field)<<3|uint64(wireType))
}

// AppendVarintField appends a varint-typed field.
func AppendVarintField(b []byte, field int, v uint64) []byte {
	b = AppendTag(b, field, TypeVarint)
	return AppendUvarint(b, v)
}

// AppendBytesField appends a length-delimited field.
func AppendBytesField(b []byte, field int, p []byte) []byte {
	b = AppendTag(b, field, TypeBytes)
	b = AppendUvarint(b, uint64(len(p)))
	return append(b, p...)
}

// AppendStringField appends a length-delimited UTF-8 string field.
func AppendStringField(b []byte, field int, s string) []byte {
	b = AppendTag(b, field, TypeBytes)
	b = AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

// AppendMessageField appends msg as a nested message field. The payload must
// already be a fully encoded message.
func AppendMessageField(b []byte, field int, msg []byte) []byte {
	return AppendBytesField(b, field, msg)
}

// Uvarint decodes an unsigned LEB128 varint from b. It returns the value and
// the number of bytes consumed; n == 0 means b is truncated or the encoding
// runs past ten bytes (overlong).
func Uvarint(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(b) && i < maxVarintLen; i++ {
		c := b[i]
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// Field is one decoded protobuf field. For wire type 0 the value is in
// Varint; for wire type 2 it is in Bytes (a subslice of the input, not a
// copy). Fixed-width fields are reported with only Num and Wire set.
type Field struct {
	Num    int
	Wire   int
	Varint uint64
	Bytes  []byte
}

// Fields scans b and returns every field it can decode, in order. The scan
// is schema-less: callers match on field numbers and ignore the rest.
// Malformed input stops the scan; the fields decoded so far are returned.
// Fields never panics.
func Fields(b []byte) []Field {
	var out []Field
	for len(b) > 0 {
		tag, n := Uvarint(b)
		if n == 0 {
			return out
		}
		b = b[n:]
		f := Field{Num: int(tag >> 3), Wire: int(tag & 7)}
		if f.Num <= 0 {
			return out
		}
		switch f.Wire {
		case TypeVarint:
			v, n := Uvarint(b)
			if n == 0 {
				return out
			}
			f.Varint = v
			b = b[n:]
		case TypeBytes:
			l, n := Uvarint(b)
			if n == 0 || l > uint64(len(b)-n) {
				return out
			}
			f.Bytes = b[n : n+int(l)]
			b = b[n+int(l):]
		case TypeFixed64:
			if len(b) < 8 {
				return out
			}
			b = b[8:]
		case TypeFixed32:
			if len(b) < 4 {
				return out
			}
			b = b[4:]
		default:
			return out
		}
		out = append(out, f)
	}
	return out
}

// String returns the first length-delimited field numbered num as a string.
func String(fields []Field, num int) string {
	for _, f := range fields {
		if f.Num == num && f.Wire == TypeBytes {
			return string(f.Bytes)
		}
	}
	return ""
}

// Messages returns the payloads of every length-delimited field numbered num.
func Messages(fields []Field, num int) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.Num == num && f.Wire == TypeBytes {
			out = append(out, f.Bytes)
		}
	}
	return out
}

// Frame wraps payload in a gRPC message frame with identity compression.
func Frame(payload []byte) []byte {
	out := make([]byte, 5, 5+len(payload))
	out[0] = 0
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	return append(out, payload...)
}
