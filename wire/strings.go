package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/nxslink/beatlink/errs"
)

// EncodeUTF16BE renders s as the wire string payload: UTF-16BE code
// units followed by a trailing U+0000 terminator. Code points at or
// above U+10000 are emitted as surrogate pairs.
func EncodeUTF16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	units = append(units, 0)
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.BigEndian.PutUint16(buf[i*2:], u)
	}
	return buf
}

// DecodeUTF16BE parses a wire string payload (as produced by
// EncodeUTF16BE, minus the leading code-unit count) back into a Go
// string, dropping the trailing terminator. It fails with
// ErrMalformedField if the payload has odd length or contains an
// unpaired surrogate.
func DecodeUTF16BE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("%w: odd-length utf16be payload (%d bytes)", errs.ErrMalformedField, len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u <= 0xDBFF: // high surrogate
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
				return "", fmt.Errorf("%w: unpaired high surrogate at code unit %d", errs.ErrMalformedField, i)
			}
			i++
		case u >= 0xDC00 && u <= 0xDFFF: // low surrogate with no preceding high
			return "", fmt.Errorf("%w: unpaired low surrogate at code unit %d", errs.ErrMalformedField, i)
		}
	}
	s := string(utf16.Decode(units))
	return strings.TrimSuffix(s, "\x00"), nil
}
