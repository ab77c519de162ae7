package dbserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/wire"
)

// RMST packs the "requesting-menu-slot-type" value that is the first
// argument of every menu request.
func RMST(requestingPlayer int, menuID int, slot types.TrackSourceSlot, trackType types.TrackType) uint32 {
	return uint32(requestingPlayer)<<24 | uint32(menuID)<<16 | uint32(slot)<<8 | uint32(trackType)
}

// MenuIDMain and MenuIDData are the two menu identifiers RMST is
// packed with: MenuIDMain for the browse/track-info menu tree (also
// used for ANLZ_TAG_REQ), MenuIDData for the legacy WAVE_PREVIEW_REQ
// and WAVE_DETAIL_REQ requests.
const (
	MenuIDMain = 0
	MenuIDData = 1
)

// MenuSession is the menu lock held for the duration of a single
// paginated render: every menu request issued while a session is open
// is implicitly bracketed by the lock it represents. There is no
// separate "reentrant acquire" call — nested menu operations simply
// thread the same *MenuSession through, which is the session itself
// being the proof of ownership.
type MenuSession struct {
	client *Client
}

// TryLockMenu attempts to acquire the client's menu lock within
// timeout (or until ctx is done, whichever comes first). Only one
// MenuSession may be open on a Client at a time.
func (c *Client) TryLockMenu(ctx context.Context, timeout time.Duration) (*MenuSession, error) {
	select {
	case c.menuSem <- struct{}{}:
		s := &MenuSession{client: c}
		c.menuOwner.Store(s)
		return s, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.menuSem <- struct{}{}:
		s := &MenuSession{client: c}
		c.menuOwner.Store(s)
		return s, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: acquiring menu lock after %s", errs.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unlock releases the menu lock. It is a no-op if s is not the current
// owner (e.g. called twice).
func (s *MenuSession) Unlock() {
	if s.client.menuOwner.CompareAndSwap(s, nil) {
		<-s.client.menuSem
	}
}

func (s *MenuSession) checkOwnership() error {
	if s.client.menuOwner.Load() != s {
		return fmt.Errorf("%w: menu operation attempted without holding the menu lock", errs.ErrConfiguration)
	}
	return nil
}

// menuRequest issues a menu request whose first argument is rmst,
// verifying the MENU_AVAILABLE reply echoes msgType as its first
// argument.
func (s *MenuSession) menuRequest(msgType wire.MessageType, rmst uint32, args ...wire.Field) (wire.Message, error) {
	if err := s.checkOwnership(); err != nil {
		return wire.Message{}, err
	}
	full := append([]wire.Field{wire.NewNumberField(4, rmst)}, args...)
	expected := wire.MessageTypeMenuAvailable
	reply, err := s.client.simpleRequest(msgType, &expected, full...)
	if err != nil {
		return wire.Message{}, err
	}
	if len(reply.Arguments) == 0 {
		return wire.Message{}, fmt.Errorf("%w: MENU_AVAILABLE reply missing echoed request type", errs.ErrProtocolMismatch)
	}
	echoed, err := wire.AsNumber(reply.Arguments[0])
	if err != nil || wire.MessageType(echoed) != msgType {
		return wire.Message{}, fmt.Errorf("%w: MENU_AVAILABLE echoed type 0x%04x, want 0x%04x", errs.ErrProtocolMismatch, echoed, msgType)
	}
	return reply, nil
}

// AvailabilityCount extracts the item count from a MENU_AVAILABLE
// reply's second argument.
func AvailabilityCount(reply wire.Message) (uint32, error) {
	if len(reply.Arguments) < 2 {
		return 0, fmt.Errorf("%w: MENU_AVAILABLE reply missing count argument", errs.ErrProtocolMismatch)
	}
	return wire.AsNumber(reply.Arguments[1])
}

// RequestMenu issues msgType with rmst and args, and returns the
// advertised item count. A count of NoMenuResultsAvailable means zero
// items; callers must not proceed to RenderMenu in that case.
func (s *MenuSession) RequestMenu(msgType wire.MessageType, rmst uint32, args ...wire.Field) (uint32, error) {
	reply, err := s.menuRequest(msgType, rmst, args...)
	if err != nil {
		return 0, err
	}
	return AvailabilityCount(reply)
}

// MenuItem is one rendered row: its type (extracted from a fixed
// argument position) plus its full argument list for callers that need
// to inspect additional fields.
type MenuItem struct {
	Type      wire.MenuItemType
	Arguments []wire.Field
}

// RenderMenu renders count items from offset, pacing requests in
// batches of the client's configured menu batch size. Each batch is
// bracketed by a MENU_HEADER/MENU_FOOTER pair as the wire protocol
// requires.
func (s *MenuSession) RenderMenu(rmst uint32, offset, count uint32) ([]MenuItem, error) {
	if err := s.checkOwnership(); err != nil {
		return nil, err
	}
	if count == wire.NoMenuResultsAvailable {
		return nil, nil
	}

	batchSize := s.client.menuBatchSize
	if batchSize == 0 {
		batchSize = wire.MenuBatchSize
	}

	var items []MenuItem
	gathered := uint32(0)
	for gathered < count {
		batch := count - gathered
		if batch > batchSize {
			batch = batchSize
		}
		batchItems, err := s.renderBatch(rmst, offset, batch, count)
		if err != nil {
			return nil, err
		}
		items = append(items, batchItems...)
		offset += batch
		gathered += batch
	}
	return items, nil
}

func (s *MenuSession) renderBatch(rmst, offset, batch, total uint32) ([]MenuItem, error) {
	c := s.client
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	tx := c.nextTransaction()
	msg, err := wire.NewMessage(tx, wire.MessageTypeRenderMenuReq,
		wire.NewNumberField(4, rmst),
		wire.NewNumberField(4, offset),
		wire.NewNumberField(4, batch),
		wire.NewNumberField(4, 0),
		wire.NewNumberField(4, total),
		wire.NewNumberField(4, 0),
	)
	if err != nil {
		return nil, err
	}

	c.conn.SetDeadline(time.Now().Add(c.requestTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := wire.Encode(c.conn, msg); err != nil {
		return nil, c.wrapIOErr(err, "sending render-menu request")
	}

	header, err := wire.Decode(c.conn)
	if err != nil {
		return nil, c.wrapIOErr(err, "reading menu header")
	}
	if header.Transaction != tx {
		return nil, fmt.Errorf("%w: menu header transaction %d, want %d", errs.ErrProtocolMismatch, header.Transaction, tx)
	}
	if header.Type != wire.MessageTypeMenuHeader {
		return nil, fmt.Errorf("%w: expected MENU_HEADER, got 0x%04x", errs.ErrProtocolMismatch, header.Type)
	}

	var items []MenuItem
	for {
		m, err := wire.Decode(c.conn)
		if err != nil {
			return nil, c.wrapIOErr(err, "reading menu item")
		}
		if m.Type == wire.MessageTypeMenuFooter {
			break
		}
		if m.Type != wire.MessageTypeMenuItem {
			return nil, fmt.Errorf("%w: expected MENU_ITEM or MENU_FOOTER, got 0x%04x", errs.ErrProtocolMismatch, m.Type)
		}
		items = append(items, parseMenuItem(m))
	}
	return items, nil
}

func parseMenuItem(m wire.Message) MenuItem {
	item := MenuItem{Arguments: m.Arguments}
	if len(m.Arguments) > wire.MenuItemTypeArgIndex {
		if v, err := wire.AsNumber(m.Arguments[wire.MenuItemTypeArgIndex]); err == nil {
			item.Type = wire.MenuItemType(v)
		}
	}
	return item
}

// Search uppercases query, issues a SEARCH_MENU request, and renders up
// to desiredCount items from offset 0.
func (s *MenuSession) Search(rmst uint32, sort uint32, query string, desiredCount uint32) ([]MenuItem, error) {
	upper := strings.ToUpper(query)
	payload := wire.EncodeUTF16BE(upper)
	count, err := s.RequestMenu(wire.MessageTypeSearchMenuReq, rmst,
		wire.NewNumberField(4, sort),
		wire.NewNumberField(4, uint32(len(payload))),
		wire.StringField{Value: upper},
		wire.NewNumberField(4, 0),
	)
	if err != nil {
		return nil, err
	}
	if count == wire.NoMenuResultsAvailable {
		return nil, nil
	}
	if desiredCount > count {
		desiredCount = count
	}
	return s.RenderMenu(rmst, 0, desiredCount)
}

// SearchMore renders additional search results starting at offset,
// refusing with ErrOutOfRange if offset+count exceeds the total the
// original search reported.
func (s *MenuSession) SearchMore(rmst uint32, offset, count, total uint32) ([]MenuItem, error) {
	if offset+count > total {
		return nil, fmt.Errorf("%w: offset %d + count %d exceeds total %d", errs.ErrOutOfRange, offset, count, total)
	}
	return s.RenderMenu(rmst, offset, count)
}
