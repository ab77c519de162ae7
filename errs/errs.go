// Package errs defines the error taxonomy shared by every beatlink
// component. Each sentinel is wrapped with context at the call site
// (fmt.Errorf("...: %w", errs.ErrTimeout)) so callers can still match with
// errors.Is while getting a useful message.
package errs

import "errors"

var (
	// ErrTransport covers socket bind/read/write/close failures. Never
	// fatal to a running finder except during start().
	ErrTransport = errors.New("transport error")

	// ErrTimeout covers a socket read deadline or menu-lock acquisition
	// deadline being exceeded.
	ErrTimeout = errors.New("timeout")

	// ErrProtocolMismatch covers an unexpected tag, size, transaction id,
	// message type, or echoed request type.
	ErrProtocolMismatch = errors.New("protocol mismatch")

	// ErrMalformedField covers an odd-length string, unknown type tag,
	// argument count over 12, or an argument-tag sidecar mismatch.
	ErrMalformedField = errors.New("malformed field")

	// ErrOutOfRange covers a search offset+count beyond the menu result
	// count, or an invalid render offset/count.
	ErrOutOfRange = errors.New("out of range")

	// ErrHandshakeFailed covers a greeting or setup reply that did not
	// conform.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrWrongPlayer covers a setup reply whose echoed target player
	// number did not match.
	ErrWrongPlayer = errors.New("wrong player")

	// ErrNotRunning covers an operation attempted on a finder that has
	// not been started.
	ErrNotRunning = errors.New("not running")

	// ErrConfiguration covers a request made against a misconfigured
	// component, e.g. a detail waveform requested while findDetails is
	// disabled.
	ErrConfiguration = errors.New("configuration error")
)
