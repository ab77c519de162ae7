// Package dbserver implements the per-player TCP client (C5) for a DJ
// Link player's remote database: the handshake, simple request/response
// transactions, RMST-addressed menu requests, the menu-lock that brackets
// a paginated render into an indivisible transaction window, and the
// render-menu pagination state machine itself.
package dbserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/transport"
	"github.com/nxslink/beatlink/wire"
)

// DefaultPort is the nominal TCP port a player's database server
// listens on. The actual port may be overridden by the
// announcement-carried "database server port" advertisement; callers
// resolve that before dialing (see connection.Manager).
const DefaultPort = 1051

// RequestTimeout is the default deadline for a single request/response
// round trip.
const RequestTimeout = 10 * time.Second

// MenuTimeout is the default deadline for acquiring the menu lock.
const MenuTimeout = 20 * time.Second

// Client is one TCP session against a single player's database server.
type Client struct {
	conn net.Conn

	logger         *slog.Logger
	posingAsPlayer int
	targetPlayer   int

	requestTimeout time.Duration
	menuTimeout    time.Duration
	menuBatchSize  uint32

	txCounter atomic.Uint32

	// reqMu serializes every request/response pair over the socket so
	// transactions are totally ordered per-client, independent of
	// whether the caller currently holds the menu lock.
	reqMu sync.Mutex

	// menuSem is a 1-buffered semaphore implementing the menu lock:
	// acquiring it is "holding the lock," and TryLockMenu respects a
	// caller-supplied timeout the way a timed mutex would.
	menuSem   chan struct{}
	menuOwner atomic.Pointer[MenuSession]
}

// Dial opens a TCP session to address, performs the greeting and
// SETUP_REQ handshake posing as posingAsPlayer, and verifies the
// player replies as targetPlayer.
func Dial(ctx context.Context, dialer transport.TCPDialer, address string, posingAsPlayer, targetPlayer int, logger *slog.Logger) (*Client, error) {
	if dialer == nil {
		dialer = transport.DialTCP
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dialer(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", errs.ErrTransport, address, err)
	}

	c := &Client{
		conn:           conn,
		logger:         logger.With("subsystem", "dbserver", "target_player", targetPlayer),
		posingAsPlayer: posingAsPlayer,
		targetPlayer:   targetPlayer,
		requestTimeout: RequestTimeout,
		menuTimeout:    MenuTimeout,
		menuBatchSize:  wire.MenuBatchSize,
		menuSem:        make(chan struct{}, 1),
	}
	// Transaction numbers are assigned starting at 1; 0xFFFFFFFE is
	// reserved for setup/teardown.
	c.txCounter.Store(0)

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// SetMenuBatchSize overrides the number of items requested per
// RENDER_MENU_REQ round trip, for tests that want to exercise
// multi-batch pagination without transferring hundreds of items.
func (c *Client) SetMenuBatchSize(n uint32) {
	c.menuBatchSize = n
}

func (c *Client) handshake() error {
	c.conn.SetDeadline(time.Now().Add(c.requestTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := wire.WriteField(c.conn, wire.NewNumberField(4, wire.GreetingValue)); err != nil {
		return fmt.Errorf("%w: sending greeting: %v", errs.ErrTransport, err)
	}
	greetingReply, err := wire.ReadField(c.conn)
	if err != nil {
		return fmt.Errorf("%w: reading greeting reply: %v", errs.ErrHandshakeFailed, err)
	}
	value, err := wire.AsNumber(greetingReply)
	if err != nil || value != wire.GreetingValue {
		return fmt.Errorf("%w: unexpected greeting reply", errs.ErrHandshakeFailed)
	}

	setupMsg, err := wire.NewMessage(wire.SetupTransaction, wire.MessageTypeSetupReq, wire.NewNumberField(4, uint32(c.posingAsPlayer)))
	if err != nil {
		return err
	}
	if err := wire.Encode(c.conn, setupMsg); err != nil {
		return fmt.Errorf("%w: sending setup request: %v", errs.ErrTransport, err)
	}
	reply, err := wire.Decode(c.conn)
	if err != nil {
		return fmt.Errorf("%w: reading setup reply: %v", errs.ErrHandshakeFailed, err)
	}
	if reply.Type != wire.MessageTypeMenuAvailable {
		return fmt.Errorf("%w: setup reply type 0x%04x, want MENU_AVAILABLE", errs.ErrHandshakeFailed, reply.Type)
	}
	if len(reply.Arguments) < 2 {
		return fmt.Errorf("%w: setup reply missing target player argument", errs.ErrHandshakeFailed)
	}
	target, err := wire.AsNumber(reply.Arguments[1])
	if err != nil || int(target) != c.targetPlayer {
		return fmt.Errorf("%w: player replied as %d, expected %d", errs.ErrWrongPlayer, target, c.targetPlayer)
	}
	return nil
}

// Close sends a best-effort TEARDOWN_REQ (errors ignored) and shuts the
// socket down in both directions.
func (c *Client) Close() error {
	func() {
		defer func() { recover() }()
		c.conn.SetWriteDeadline(time.Now().Add(c.requestTimeout))
		msg, err := wire.NewMessage(wire.TeardownTransaction, wire.MessageTypeTeardownReq)
		if err == nil {
			wire.Encode(c.conn, msg)
		}
	}()
	if tcp, ok := c.conn.(*net.TCPConn); ok {
		tcp.CloseRead()
		tcp.CloseWrite()
	}
	return c.conn.Close()
}

func (c *Client) nextTransaction() uint32 {
	return c.txCounter.Add(1)
}

// SimpleRequest issues a non-menu request/response pair: waveform and
// ANLZ tag fetches answer with one of several reply types (including
// UNAVAILABLE) rather than a single echoed MENU_AVAILABLE, so callers
// pass expected as nil and inspect reply.Type themselves.
func (c *Client) SimpleRequest(msgType wire.MessageType, expected *wire.MessageType, args ...wire.Field) (wire.Message, error) {
	return c.simpleRequest(msgType, expected, args...)
}

// simpleRequest serializes a request/response pair over reqMu, assigns
// a fresh transaction number, and verifies the reply echoes it and
// (when expected is non-nil) matches the expected message type.
func (c *Client) simpleRequest(msgType wire.MessageType, expected *wire.MessageType, args ...wire.Field) (wire.Message, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.simpleRequestLocked(msgType, expected, args...)
}

func (c *Client) simpleRequestLocked(msgType wire.MessageType, expected *wire.MessageType, args ...wire.Field) (wire.Message, error) {
	tx := c.nextTransaction()
	msg, err := wire.NewMessage(tx, msgType, args...)
	if err != nil {
		return wire.Message{}, err
	}

	c.conn.SetDeadline(time.Now().Add(c.requestTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := wire.Encode(c.conn, msg); err != nil {
		return wire.Message{}, c.wrapIOErr(err, "sending request")
	}
	reply, err := wire.Decode(c.conn)
	if err != nil {
		return wire.Message{}, c.wrapIOErr(err, "reading reply")
	}
	if reply.Transaction != tx {
		return wire.Message{}, fmt.Errorf("%w: reply transaction %d, want %d", errs.ErrProtocolMismatch, reply.Transaction, tx)
	}
	if expected != nil && reply.Type != *expected {
		return wire.Message{}, fmt.Errorf("%w: reply type 0x%04x, want 0x%04x", errs.ErrProtocolMismatch, reply.Type, *expected)
	}
	return reply, nil
}

func (c *Client) wrapIOErr(err error, context string) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", errs.ErrTimeout, context, err)
	}
	return fmt.Errorf("%w: %s: %v", errs.ErrTransport, context, err)
}
