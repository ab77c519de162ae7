// Package wire implements the DJ Link dbserver tagged-field codec: the
// binary encoding used for every value exchanged with a player's remote
// database (C1 in the runtime's component breakdown). A Field is a
// tagged variant over three concrete shapes — number, binary, string —
// discriminated by a single type-tag byte on the wire.
package wire

import (
	"fmt"

	"github.com/nxslink/beatlink/errs"
)

// Tag is the wire type-tag byte that precedes every field's payload.
type Tag byte

// The closed set of field type tags understood by the protocol.
const (
	TagNumber1 Tag = 0x0f // 1-byte big-endian unsigned
	TagNumber2 Tag = 0x10 // 2-byte big-endian unsigned
	TagNumber4 Tag = 0x11 // 4-byte big-endian unsigned
	TagBinary  Tag = 0x14 // 4-byte BE length, then payload
	TagString  Tag = 0x26 // 4-byte BE code-unit count, then UTF-16BE
)

// ArgTag is the sidecar byte identifying an argument's kind in a
// message's argument-tag table, independent of the field's own wire
// type tag.
type ArgTag byte

// The closed set of argument-kind tags used in a message's sidecar.
const (
	ArgNumber ArgTag = 0x06
	ArgString ArgTag = 0x02
	ArgBinary ArgTag = 0x03
)

// Field is any tagged value that can appear on the wire: a number, a
// binary blob, or a string. Read-dispatch is a switch on the Tag byte
// in ReadField, not a type switch, so adding a new concrete type never
// touches callers.
type Field interface {
	// Tag returns the wire type-tag byte for this field.
	Tag() Tag
	// ArgTag returns the argument-kind sidecar byte for this field.
	ArgTag() ArgTag
}

// NumberField is a 1, 2, or 4 byte big-endian unsigned integer. Value is
// always stored as a full uint32, masked to Size bytes on encode.
type NumberField struct {
	Size  int
	Value uint32
}

// NewNumberField builds a NumberField of the given size, masking value
// to size*8 bits the way the wire encoding would.
func NewNumberField(size int, value uint32) NumberField {
	return NumberField{Size: size, Value: maskToSize(value, size)}
}

func maskToSize(value uint32, size int) uint32 {
	switch size {
	case 1:
		return value & 0xff
	case 2:
		return value & 0xffff
	default:
		return value
	}
}

// Tag implements Field.
func (f NumberField) Tag() Tag {
	switch f.Size {
	case 1:
		return TagNumber1
	case 2:
		return TagNumber2
	default:
		return TagNumber4
	}
}

// ArgTag implements Field.
func (NumberField) ArgTag() ArgTag { return ArgNumber }

// BinaryField is an opaque byte payload prefixed by a 4-byte BE length.
type BinaryField struct {
	Data []byte
}

// Tag implements Field.
func (BinaryField) Tag() Tag { return TagBinary }

// ArgTag implements Field.
func (BinaryField) ArgTag() ArgTag { return ArgBinary }

// StringField is a UTF-16BE string, including its trailing U+0000
// terminator on the wire, prefixed by a 4-byte BE code-unit count.
type StringField struct {
	Value string
}

// Tag implements Field.
func (StringField) Tag() Tag { return TagString }

// ArgTag implements Field.
func (StringField) ArgTag() ArgTag { return ArgString }

// AsNumber extracts the value of a NumberField, failing with
// ErrMalformedField if f is not one.
func AsNumber(f Field) (uint32, error) {
	nf, ok := f.(NumberField)
	if !ok {
		return 0, fmt.Errorf("%w: expected number field, got %T", errs.ErrMalformedField, f)
	}
	return nf.Value, nil
}

// AsString extracts the value of a StringField, failing with
// ErrMalformedField if f is not one.
func AsString(f Field) (string, error) {
	sf, ok := f.(StringField)
	if !ok {
		return "", fmt.Errorf("%w: expected string field, got %T", errs.ErrMalformedField, f)
	}
	return sf.Value, nil
}

// AsBinary extracts the payload of a BinaryField, failing with
// ErrMalformedField if f is not one.
func AsBinary(f Field) ([]byte, error) {
	bf, ok := f.(BinaryField)
	if !ok {
		return nil, fmt.Errorf("%w: expected binary field, got %T", errs.ErrMalformedField, f)
	}
	return bf.Data, nil
}
