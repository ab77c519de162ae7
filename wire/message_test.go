package wire

import (
	"bytes"
	"testing"
)

// TestMessageRoundTripSetupReq is scenario S4 from the spec: build a
// SETUP_REQ with transaction 1 and one NumberField(posingAs=5, size=4),
// encode it, and verify the decoded message matches.
func TestMessageRoundTripSetupReq(t *testing.T) {
	msg, err := NewMessage(1, MessageTypeSetupReq, NewNumberField(4, 5))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != MessageTypeSetupReq {
		t.Errorf("Type = 0x%04x, want 0x%04x", got.Type, MessageTypeSetupReq)
	}
	if got.Transaction != 1 {
		t.Errorf("Transaction = %d, want 1", got.Transaction)
	}
	if len(got.Arguments) != 1 {
		t.Fatalf("argc = %d, want 1", len(got.Arguments))
	}
	value, err := AsNumber(got.Arguments[0])
	if err != nil {
		t.Fatalf("AsNumber: %v", err)
	}
	if value != 5 {
		t.Errorf("arguments[0].value = %d, want 5", value)
	}
}

func TestMessageRoundTripMixedArguments(t *testing.T) {
	msg, err := NewMessage(42, MessageTypeMenuAvailable,
		NewNumberField(4, 0xcafef00d),
		StringField{Value: "rekordbox"},
		BinaryField{Data: []byte{9, 8, 7}},
	)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Arguments) != 3 {
		t.Fatalf("argc = %d, want 3", len(got.Arguments))
	}
	if s, err := AsString(got.Arguments[1]); err != nil || s != "rekordbox" {
		t.Errorf("arguments[1] = %q, %v", s, err)
	}
	if b, err := AsBinary(got.Arguments[2]); err != nil || !bytes.Equal(b, []byte{9, 8, 7}) {
		t.Errorf("arguments[2] = %v, %v", b, err)
	}
}

func TestMessageRejectsBadStart(t *testing.T) {
	var buf bytes.Buffer
	WriteField(&buf, NewNumberField(4, 0x12345678))
	WriteField(&buf, NewNumberField(4, 1))
	WriteField(&buf, NewNumberField(2, 0))
	WriteField(&buf, NewNumberField(1, 0))
	WriteField(&buf, BinaryField{Data: make([]byte, ArgSidecarSize)})

	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected protocol mismatch for bad message start")
	}
}

func TestMessageTooManyArguments(t *testing.T) {
	args := make([]Field, MaxArguments+1)
	for i := range args {
		args[i] = NewNumberField(1, 0)
	}
	if _, err := NewMessage(1, MessageTypeSetupReq, args...); err == nil {
		t.Fatal("expected error for too many arguments")
	}
}

// TestMessageDecodeEmptyBinaryElision reproduces the decoder-only quirk
// where a binary argument whose preceding number-field argument was 0
// is omitted from the wire entirely and must be synthesized as empty.
func TestMessageDecodeEmptyBinaryElision(t *testing.T) {
	var buf bytes.Buffer
	WriteField(&buf, NewNumberField(4, MessageStart))
	WriteField(&buf, NewNumberField(4, 7))
	WriteField(&buf, NewNumberField(2, uint32(MessageTypeMenuAvailable)))
	WriteField(&buf, NewNumberField(1, 2))
	sidecar := make([]byte, ArgSidecarSize)
	sidecar[0] = byte(ArgNumber)
	sidecar[1] = byte(ArgBinary)
	WriteField(&buf, BinaryField{Data: sidecar})
	// Argument 0: a number field with value 0.
	WriteField(&buf, NewNumberField(4, 0))
	// Argument 1 (binary) is elided entirely: no bytes written.

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Arguments) != 2 {
		t.Fatalf("argc = %d, want 2", len(got.Arguments))
	}
	b, err := AsBinary(got.Arguments[1])
	if err != nil {
		t.Fatalf("AsBinary: %v", err)
	}
	if len(b) != 0 {
		t.Errorf("synthesized binary = %v, want empty", b)
	}
}

func FuzzNumberFieldSize4(f *testing.F) {
	f.Add(uint32(0))
	f.Add(uint32(1))
	f.Add(uint32(0xffffffff))
	f.Fuzz(func(t *testing.T, value uint32) {
		var buf bytes.Buffer
		if err := WriteField(&buf, NewNumberField(4, value)); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
		got, err := ReadField(&buf)
		if err != nil {
			t.Fatalf("ReadField: %v", err)
		}
		nf := got.(NumberField)
		if nf.Value != value {
			t.Errorf("got %d, want %d", nf.Value, value)
		}
	})
}
