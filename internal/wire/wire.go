// Package wire implements the OfflineFrame, UKEY2, SecureMessage and
// Sharing frame families as hand-rolled protobuf wire-format records.
//
// No .proto files are compiled here: each message type marshals and
// unmarshals itself directly against the protobuf wire format via
// google.golang.org/protobuf/encoding/protowire, the same low-level package
// the generated pb.go code these schemas come from is itself built on top
// of. Field numbers follow the public upstream location.nearby.connections,
// securegcm, securemessage and sharing.nearby schemas this protocol is
// interoperable with; spec.md treats these messages as opaque typed
// records, so only shapes and invariants this repo's own handshake and
// payload code rely on are implemented.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message cannot be parsed as valid
// protobuf wire data or is missing a field this implementation requires.
type ErrMalformed struct {
	Message string
	Reason  string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("wire: malformed %s: %s", e.Message, e.Reason)
}

func malformed(message, reason string) error {
	return &ErrMalformed{Message: message, Reason: reason}
}

// appendVarintField appends a varint-typed field if v is non-zero.
func appendVarintField(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	buf = protowire.AppendVarint(buf, v)
	return buf
}

// appendBytesField appends a length-delimited field if b is non-empty.
func appendBytesField(buf []byte, num protowire.Number, b []byte) []byte {
	if len(b) == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	buf = protowire.AppendBytes(buf, b)
	return buf
}

// appendStringField appends a length-delimited string field if s is non-empty.
func appendStringField(buf []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return buf
	}
	return appendBytesField(buf, num, []byte(s))
}

// appendBoolField appends a varint bool field when true.
func appendBoolField(buf []byte, num protowire.Number, v bool) []byte {
	if !v {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 1)
	return buf
}

// field is one decoded top-level (number, wire type, raw bytes) tuple.
type field struct {
	num  protowire.Number
	typ  protowire.Type
	data []byte // for BytesType: the payload; for VarintType: unused, use val
	val  uint64 // for VarintType
}

// parseFields walks b and returns every top-level field. Unknown fields are
// retained in the list so callers can select what they need; this mirrors
// how generated protobuf code tolerates unknown fields.
func parseFields(message string, b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(message, "bad tag")
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(message, "bad varint")
			}
			b = b[n:]
			fields = append(fields, field{num: num, typ: typ, val: v})
		case protowire.BytesType:
			data, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(message, "bad length-delimited field")
			}
			b = b[n:]
			fields = append(fields, field{num: num, typ: typ, data: data})
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, malformed(message, "bad fixed32")
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, malformed(message, "bad fixed64")
			}
			b = b[n:]
		default:
			return nil, malformed(message, "unsupported wire type")
		}
	}
	return fields, nil
}

// firstBytes returns the data of the first field with the given number, or
// nil if absent.
func firstBytes(fields []field, num protowire.Number) []byte {
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			return f.data
		}
	}
	return nil
}

// firstVarint returns the value of the first field with the given number.
func firstVarint(fields []field, num protowire.Number) (uint64, bool) {
	for _, f := range fields {
		if f.num == num && f.typ == protowire.VarintType {
			return f.val, true
		}
	}
	return 0, false
}

// allBytes returns the data of every field with the given number, in order.
func allBytes(fields []field, num protowire.Number) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			out = append(out, f.data)
		}
	}
	return out
}
