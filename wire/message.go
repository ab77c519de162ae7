package wire

import (
	"fmt"
	"io"

	"github.com/nxslink/beatlink/errs"
)

// Message is a single dbserver request or response: a framed sequence
// of tagged fields preceded by the fixed MessageStart marker.
type Message struct {
	Transaction uint32
	Type        MessageType
	Arguments   []Field
}

// NewMessage builds a Message, validating the argument count against
// MaxArguments.
func NewMessage(transaction uint32, msgType MessageType, args ...Field) (Message, error) {
	if len(args) > MaxArguments {
		return Message{}, fmt.Errorf("%w: %d arguments exceeds max %d", errs.ErrMalformedField, len(args), MaxArguments)
	}
	return Message{Transaction: transaction, Type: msgType, Arguments: args}, nil
}

// Encode writes m to w as MESSAGE_START, transaction, type, argc, the
// argument-tag sidecar, and then each argument in order.
func Encode(w io.Writer, m Message) error {
	if len(m.Arguments) > MaxArguments {
		return fmt.Errorf("%w: %d arguments exceeds max %d", errs.ErrMalformedField, len(m.Arguments), MaxArguments)
	}
	if err := WriteField(w, NewNumberField(4, MessageStart)); err != nil {
		return err
	}
	if err := WriteField(w, NewNumberField(4, m.Transaction)); err != nil {
		return err
	}
	if err := WriteField(w, NewNumberField(2, uint32(m.Type))); err != nil {
		return err
	}
	if err := WriteField(w, NewNumberField(1, uint32(len(m.Arguments)))); err != nil {
		return err
	}
	sidecar := make([]byte, ArgSidecarSize)
	for i, arg := range m.Arguments {
		sidecar[i] = byte(arg.ArgTag())
	}
	if err := WriteField(w, BinaryField{Data: sidecar}); err != nil {
		return err
	}
	for _, arg := range m.Arguments {
		if err := WriteField(w, arg); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads one framed Message from r.
//
// Reproduces the protocol's empty-binary elision quirk: when the
// sidecar names a binary argument whose preceding argument was a
// number field with value 0, the encoder omits the binary field's
// bytes entirely and the decoder must synthesize an empty BinaryField
// without consuming further input. Encode never produces this
// encoding: it always writes a binary argument's bytes.
func Decode(r io.Reader) (Message, error) {
	startField, err := ReadField(r)
	if err != nil {
		return Message{}, err
	}
	start, err := AsNumber(startField)
	if err != nil {
		return Message{}, err
	}
	if start != MessageStart {
		return Message{}, fmt.Errorf("%w: expected message start 0x%08x, got 0x%08x", errs.ErrProtocolMismatch, MessageStart, start)
	}

	txField, err := ReadField(r)
	if err != nil {
		return Message{}, err
	}
	transaction, err := AsNumber(txField)
	if err != nil {
		return Message{}, err
	}

	typeField, err := ReadField(r)
	if err != nil {
		return Message{}, err
	}
	msgType, err := AsNumber(typeField)
	if err != nil {
		return Message{}, err
	}

	argcField, err := ReadField(r)
	if err != nil {
		return Message{}, err
	}
	argc, err := AsNumber(argcField)
	if err != nil {
		return Message{}, err
	}
	if argc > MaxArguments {
		return Message{}, fmt.Errorf("%w: argument count %d exceeds max %d", errs.ErrMalformedField, argc, MaxArguments)
	}

	sidecarField, err := ReadField(r)
	if err != nil {
		return Message{}, err
	}
	sidecar, err := AsBinary(sidecarField)
	if err != nil {
		return Message{}, err
	}
	if len(sidecar) != ArgSidecarSize {
		return Message{}, fmt.Errorf("%w: argument sidecar is %d bytes, want %d", errs.ErrMalformedField, len(sidecar), ArgSidecarSize)
	}

	args := make([]Field, 0, argc)
	var previous Field
	for i := uint32(0); i < argc; i++ {
		expected := ArgTag(sidecar[i])

		if expected == ArgBinary && previous != nil {
			if nf, ok := previous.(NumberField); ok && nf.Value == 0 {
				empty := BinaryField{Data: []byte{}}
				args = append(args, empty)
				previous = empty
				continue
			}
		}

		f, err := ReadField(r)
		if err != nil {
			return Message{}, err
		}
		if f.ArgTag() != expected {
			return Message{}, fmt.Errorf("%w: argument %d tag 0x%02x does not match sidecar 0x%02x", errs.ErrMalformedField, i, f.ArgTag(), expected)
		}
		args = append(args, f)
		previous = f
	}

	return Message{Transaction: transaction, Type: MessageType(msgType), Arguments: args}, nil
}
