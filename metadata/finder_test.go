package metadata

import (
	"context"
	"net"
	"testing"

	"github.com/nxslink/beatlink/connection"
	"github.com/nxslink/beatlink/device"
	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/wire"
)

func TestSetLoadedFansOutToListeners(t *testing.T) {
	f := New(Config{}, nil)

	var received []Update
	f.AddListener(ListenerFunc(func(u Update) { received = append(received, u) }))

	md := &TrackMetadata{Title: "Around the World"}
	f.SetLoaded(3, md)

	if len(received) != 1 || received[0].Metadata != md || received[0].Player != 3 {
		t.Fatalf("unexpected updates: %+v", received)
	}
	if got := f.GetLatestMetadataFor(3); got != md {
		t.Errorf("GetLatestMetadataFor = %+v, want %+v", got, md)
	}

	f.Unload(3)
	if got := f.GetLatestMetadataFor(3); got != nil {
		t.Errorf("expected nil after Unload, got %+v", got)
	}
	if len(received) != 2 || received[1].Metadata != nil {
		t.Fatalf("expected a nil-metadata update after unload, got %+v", received)
	}
}

func TestHandleDeviceLostClearsThatPlayerOnly(t *testing.T) {
	f := New(Config{}, nil)
	f.SetLoaded(1, &TrackMetadata{Title: "Track One"})
	f.SetLoaded(2, &TrackMetadata{Title: "Track Two"})

	var received []Update
	f.AddListener(ListenerFunc(func(u Update) { received = append(received, u) }))

	f.HandleDeviceLost(device.Announcement{DeviceNumber: 1})

	if got := f.GetLatestMetadataFor(1); got != nil {
		t.Errorf("expected player 1 cleared, got %+v", got)
	}
	if got := f.GetLatestMetadataFor(2); got == nil {
		t.Error("expected player 2 untouched")
	}
	if len(received) != 1 || received[0].Player != 1 || received[0].Metadata != nil {
		t.Fatalf("unexpected updates: %+v", received)
	}
}

func TestHandleDeviceLostIgnoresGateway(t *testing.T) {
	f := New(Config{}, nil)
	f.SetLoaded(device.GatewayDeviceNumber, &TrackMetadata{Title: "Should Stay"})

	f.HandleDeviceLost(device.Announcement{DeviceNumber: device.GatewayDeviceNumber, Name: device.GatewayDeviceName})

	if got := f.GetLatestMetadataFor(device.GatewayDeviceNumber); got == nil {
		t.Error("expected gateway device's entry to survive HandleDeviceLost")
	}
}

func TestClearMediaDetailsDropsMatchingTracks(t *testing.T) {
	f := New(Config{}, nil)
	slot := types.SlotReference{Player: 1, Slot: types.SlotUSB}
	f.SetMediaDetails(MediaDetails{Slot: slot, Name: "USB1"})

	f.SetLoaded(1, &TrackMetadata{TrackReference: types.DataReference{Slot: slot}})
	f.SetLoaded(2, &TrackMetadata{TrackReference: types.DataReference{Slot: types.SlotReference{Player: 2, Slot: types.SlotUSB}}})

	var received []Update
	f.AddListener(ListenerFunc(func(u Update) { received = append(received, u) }))

	f.ClearMediaDetails(slot)

	if got := f.GetLatestMetadataFor(1); got != nil {
		t.Errorf("expected player 1 cleared, got %+v", got)
	}
	if got := f.GetLatestMetadataFor(2); got == nil {
		t.Error("expected player 2 untouched")
	}
	if _, ok := f.GetMediaDetailsFor(slot); ok {
		t.Error("expected media details removed")
	}
	if len(received) != 1 || received[0].Player != 1 {
		t.Fatalf("expected exactly one unload dispatch for player 1, got %+v", received)
	}
}

func TestRequestTrackMetadataPrefersProvider(t *testing.T) {
	provided := &TrackMetadata{Title: "From Provider"}
	f := New(Config{
		Active:   true,
		Provider: ProviderFunc(func(_ context.Context, _ types.DataReference) (*TrackMetadata, error) { return provided, nil }),
	}, nil)

	md, err := f.RequestTrackMetadata(context.Background(), 1, types.DataReference{})
	if err != nil {
		t.Fatalf("RequestTrackMetadata: %v", err)
	}
	if md != provided {
		t.Errorf("expected provider's metadata to win, got %+v", md)
	}
}

func TestRequestTrackMetadataPassiveModeSkipsDbserver(t *testing.T) {
	f := New(Config{Active: false}, nil)
	md, err := f.RequestTrackMetadata(context.Background(), 1, types.DataReference{})
	if err != nil {
		t.Fatalf("RequestTrackMetadata: %v", err)
	}
	if md != nil {
		t.Errorf("expected nil metadata in passive mode with no provider, got %+v", md)
	}
}

// fakeTrackInfoPlayer completes a handshake and then answers exactly
// one REKORDBOX_METADATA_REQ-driven render with a handful of items.
func fakeTrackInfoPlayer(t *testing.T, conn net.Conn, targetPlayer int) {
	t.Helper()

	greeting, err := wire.ReadField(conn)
	if err != nil {
		return
	}
	if _, err := wire.AsNumber(greeting); err != nil {
		t.Errorf("bad greeting: %v", err)
		return
	}
	wire.WriteField(conn, wire.NewNumberField(4, wire.GreetingValue))

	setup, err := wire.Decode(conn)
	if err != nil {
		t.Errorf("reading setup: %v", err)
		return
	}
	reply, _ := wire.NewMessage(setup.Transaction, wire.MessageTypeMenuAvailable,
		wire.NewNumberField(4, 0),
		wire.NewNumberField(4, uint32(targetPlayer)),
	)
	wire.Encode(conn, reply)

	avail, err := wire.Decode(conn)
	if err != nil {
		t.Errorf("reading track info request: %v", err)
		return
	}
	availReply, _ := wire.NewMessage(avail.Transaction, wire.MessageTypeMenuAvailable,
		wire.NewNumberField(4, uint32(avail.Type)),
		wire.NewNumberField(4, 1),
	)
	wire.Encode(conn, availReply)

	render, err := wire.Decode(conn)
	if err != nil {
		t.Errorf("reading render request: %v", err)
		return
	}
	header, _ := wire.NewMessage(render.Transaction, wire.MessageTypeMenuHeader)
	wire.Encode(conn, header)

	titleArgs := []wire.Field{
		wire.NewNumberField(4, 0), wire.NewNumberField(4, 0), wire.NewNumberField(4, 0),
		wire.StringField{Value: "Harder, Better, Faster, Stronger"},
		wire.NewNumberField(4, 0), wire.NewNumberField(4, 0),
		wire.NewNumberField(4, uint32(wire.MenuItemTitle)),
	}
	item, _ := wire.NewMessage(render.Transaction, wire.MessageTypeMenuItem, titleArgs...)
	wire.Encode(conn, item)

	footer, _ := wire.NewMessage(render.Transaction, wire.MessageTypeMenuFooter)
	wire.Encode(conn, footer)
}

func TestRequestTrackMetadataFallsBackToDbserver(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	go fakeTrackInfoPlayer(t, serverConn, 2)

	mgr := connection.New(connection.Config{
		PosingAsPlayer: 3,
		Resolve:        func(player int) (string, error) { return "fake:1051", nil },
		Dialer:         func(_ context.Context, _ string) (net.Conn, error) { return clientConn, nil },
	}, nil)
	defer mgr.StopReaper()

	f := New(Config{Active: true, Manager: mgr}, nil)
	md, err := f.RequestTrackMetadata(context.Background(), 2, types.DataReference{RekordboxID: 7})
	if err != nil {
		t.Fatalf("RequestTrackMetadata: %v", err)
	}
	if md.Title != "Harder, Better, Faster, Stronger" {
		t.Errorf("Title = %q, want %q", md.Title, "Harder, Better, Faster, Stronger")
	}
}
