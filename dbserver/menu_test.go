package dbserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/wire"
)

func TestRMSTPacksFields(t *testing.T) {
	v := RMST(3, 0, types.SlotUSB, types.TrackTypeRekordbox)
	want := uint32(3)<<24 | uint32(0)<<16 | uint32(types.SlotUSB)<<8 | uint32(types.TrackTypeRekordbox)
	if v != want {
		t.Errorf("RMST = 0x%08x, want 0x%08x", v, want)
	}
}

// serveMenu plays the player side of a track-title menu request
// followed by paginated RENDER_MENU_REQ batches, for a fixed total
// item count and batch size expectation.
func serveMenu(t *testing.T, conn net.Conn, total int, expectedBatch uint32) {
	t.Helper()

	avail, err := wire.Decode(conn)
	if err != nil {
		t.Errorf("server: reading availability request: %v", err)
		return
	}
	reply, _ := wire.NewMessage(avail.Transaction, wire.MessageTypeMenuAvailable,
		wire.NewNumberField(4, uint32(avail.Type)),
		wire.NewNumberField(4, uint32(total)),
	)
	if err := wire.Encode(conn, reply); err != nil {
		t.Errorf("server: sending availability reply: %v", err)
		return
	}

	delivered := 0
	for delivered < total {
		req, err := wire.Decode(conn)
		if err != nil {
			t.Errorf("server: reading render-menu request: %v", err)
			return
		}
		if req.Type != wire.MessageTypeRenderMenuReq {
			t.Errorf("server: expected RENDER_MENU_REQ, got 0x%04x", req.Type)
			return
		}
		count, _ := wire.AsNumber(req.Arguments[2])
		if count != expectedBatch && delivered+int(expectedBatch) <= total {
			t.Errorf("batch count = %d, want %d", count, expectedBatch)
		}

		header, _ := wire.NewMessage(req.Transaction, wire.MessageTypeMenuHeader)
		if err := wire.Encode(conn, header); err != nil {
			t.Errorf("server: sending header: %v", err)
			return
		}
		for i := uint32(0); i < count; i++ {
			item, _ := wire.NewMessage(req.Transaction, wire.MessageTypeMenuItem,
				wire.NewNumberField(4, 0),
				wire.NewNumberField(4, 0),
				wire.NewNumberField(4, 0),
				wire.NewNumberField(4, 0),
				wire.NewNumberField(4, 0),
				wire.NewNumberField(4, 0),
				wire.NewNumberField(4, uint32(wire.MenuItemTitle)),
			)
			if err := wire.Encode(conn, item); err != nil {
				t.Errorf("server: sending item: %v", err)
				return
			}
		}
		footer, _ := wire.NewMessage(req.Transaction, wire.MessageTypeMenuFooter)
		if err := wire.Encode(conn, footer); err != nil {
			t.Errorf("server: sending footer: %v", err)
			return
		}
		delivered += int(count)
	}
}

// TestRenderMenuPaginatesInBatches exercises the pagination state
// machine with a batch size of 2 against 5 total items, expecting
// three round trips of 2, 2, and 1.
func TestRenderMenuPaginatesInBatches(t *testing.T) {
	c, srv := dialFake(t, 3, 2)
	defer c.Close()
	c.SetMenuBatchSize(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		serveMenu(t, srv.conn, 5, 2)
	}()

	session, err := c.TryLockMenu(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("TryLockMenu: %v", err)
	}
	defer session.Unlock()

	rmst := RMST(3, 0, types.SlotUSB, types.TrackTypeRekordbox)
	count, err := session.RequestMenu(wire.MessageTypeRenderMenuReq, rmst)
	if err != nil {
		t.Fatalf("RequestMenu: %v", err)
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}

	items, err := session.RenderMenu(rmst, 0, count)
	if err != nil {
		t.Fatalf("RenderMenu: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("len(items) = %d, want 5", len(items))
	}
	for i, it := range items {
		if it.Type != wire.MenuItemTitle {
			t.Errorf("items[%d].Type = %v, want TITLE", i, it.Type)
		}
	}

	<-done
}

func TestRenderMenuRejectsWithoutLock(t *testing.T) {
	c, _ := dialFake(t, 3, 2)
	defer c.Close()

	s := &MenuSession{client: c}
	if _, err := s.RenderMenu(0, 0, 1); err == nil {
		t.Fatal("expected RenderMenu to fail without holding the menu lock")
	}
}

func TestTryLockMenuTimesOutWhenHeld(t *testing.T) {
	c, _ := dialFake(t, 3, 2)
	defer c.Close()

	first, err := c.TryLockMenu(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("first TryLockMenu: %v", err)
	}
	defer first.Unlock()

	_, err = c.TryLockMenu(context.Background(), 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected second TryLockMenu to time out while the first session is held")
	}
}

func TestUnlockThenRelock(t *testing.T) {
	c, _ := dialFake(t, 3, 2)
	defer c.Close()

	first, err := c.TryLockMenu(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("TryLockMenu: %v", err)
	}
	first.Unlock()

	second, err := c.TryLockMenu(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("TryLockMenu after unlock: %v", err)
	}
	second.Unlock()
}

func TestSearchMoreRejectsOutOfRange(t *testing.T) {
	c, _ := dialFake(t, 3, 2)
	defer c.Close()

	session, err := c.TryLockMenu(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("TryLockMenu: %v", err)
	}
	defer session.Unlock()

	if _, err := session.SearchMore(0, 8, 5, 10); err == nil {
		t.Fatal("expected SearchMore to reject an offset+count beyond total")
	}
}
