package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nxslink/beatlink/errs"
)

// WriteField serializes f to w as a type-tag byte followed by its
// payload. It never produces the empty-binary elision that ReadField
// must tolerate on input.
func WriteField(w io.Writer, f Field) error {
	switch v := f.(type) {
	case NumberField:
		return writeNumber(w, v)
	case BinaryField:
		return writeBinary(w, v)
	case StringField:
		return writeString(w, v)
	default:
		return fmt.Errorf("%w: unknown field type %T", errs.ErrMalformedField, f)
	}
}

func writeNumber(w io.Writer, f NumberField) error {
	if _, err := w.Write([]byte{byte(f.Tag())}); err != nil {
		return err
	}
	buf := make([]byte, f.Size)
	switch f.Size {
	case 1:
		buf[0] = byte(f.Value)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(f.Value))
	default:
		binary.BigEndian.PutUint32(buf, f.Value)
	}
	_, err := w.Write(buf)
	return err
}

func writeBinary(w io.Writer, f BinaryField) error {
	if _, err := w.Write([]byte{byte(TagBinary)}); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Data)
	return err
}

func writeString(w io.Writer, f StringField) error {
	if _, err := w.Write([]byte{byte(TagString)}); err != nil {
		return err
	}
	payload := EncodeUTF16BE(f.Value)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(payload)/2))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadField reads one tagged field from r, dispatching on the leading
// type-tag byte. It fails with ErrMalformedField for an unrecognized
// tag, and wraps any underlying I/O error in ErrTransport.
func ReadField(r io.Reader) (Field, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading field tag: %v", errs.ErrTransport, err)
	}
	switch Tag(tagBuf[0]) {
	case TagNumber1:
		return readNumber(r, 1)
	case TagNumber2:
		return readNumber(r, 2)
	case TagNumber4:
		return readNumber(r, 4)
	case TagBinary:
		return readBinary(r)
	case TagString:
		return readString(r)
	default:
		return nil, fmt.Errorf("%w: unknown field tag 0x%02x", errs.ErrMalformedField, tagBuf[0])
	}
}

func readNumber(r io.Reader, size int) (Field, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: reading number payload: %v", errs.ErrTransport, err)
	}
	var value uint32
	switch size {
	case 1:
		value = uint32(buf[0])
	case 2:
		value = uint32(binary.BigEndian.Uint16(buf))
	default:
		value = binary.BigEndian.Uint32(buf)
	}
	return NumberField{Size: size, Value: value}, nil
}

func readBinary(r io.Reader) (Field, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading binary length: %v", errs.ErrTransport, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: reading binary payload: %v", errs.ErrTransport, err)
		}
	}
	return BinaryField{Data: data}, nil
}

func readString(r io.Reader) (Field, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading string code-unit count: %v", errs.ErrTransport, err)
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	payload := make([]byte, n*2)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: reading string payload: %v", errs.ErrTransport, err)
		}
	}
	s, err := DecodeUTF16BE(payload)
	if err != nil {
		return nil, err
	}
	return StringField{Value: s}, nil
}
