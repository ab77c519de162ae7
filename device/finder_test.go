package device

import (
	"net"
	"sync"
	"testing"
	"time"
)

func openLoopback(_ int) (net.PacketConn, error) {
	return net.ListenPacket("udp4", "127.0.0.1:0")
}

func TestFinderFoundAndLost(t *testing.T) {
	f := New(nil)
	f.SetUDPOpener(openLoopback)
	f.SetIntervals(10*time.Millisecond, 50*time.Millisecond)

	var clockMu sync.Mutex
	clock := time.Now()
	f.SetClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	})
	advance := func(d time.Duration) {
		clockMu.Lock()
		clock = clock.Add(d)
		clockMu.Unlock()
	}

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	addr := f.conn.LocalAddr().(*net.UDPAddr)
	sender, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer sender.Close()

	found := make(chan Announcement, 4)
	lost := make(chan Announcement, 4)
	f.AddListener(Funcs{
		Found: func(a Announcement) { found <- a },
		Lost:  func(a Announcement) { lost <- a },
	})

	packet := buildAnnouncePacket(7, "CDJ-TEST", net.IPv4(10, 0, 0, 7), net.HardwareAddr{1, 2, 3, 4, 5, 6})
	sender.Write(packet)

	select {
	case a := <-found:
		if a.DeviceNumber != 7 {
			t.Errorf("found device %d, want 7", a.DeviceNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deviceFound")
	}

	// Re-announce: must not fire a second deviceFound.
	sender.Write(packet)
	time.Sleep(50 * time.Millisecond)
	select {
	case a := <-found:
		t.Fatalf("unexpected second deviceFound for %d", a.DeviceNumber)
	default:
	}

	if devs := f.CurrentDevices(); len(devs) != 1 {
		t.Fatalf("CurrentDevices() = %d entries, want 1", len(devs))
	}

	// Advance the clock past the expiry window and let the reaper run.
	advance(100 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	select {
	case a := <-lost:
		if a.DeviceNumber != 7 {
			t.Errorf("lost device %d, want 7", a.DeviceNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deviceLost")
	}

	if devs := f.CurrentDevices(); len(devs) != 0 {
		t.Fatalf("CurrentDevices() = %d entries after expiry, want 0", len(devs))
	}
}

func TestFinderStartFailureBadPort(t *testing.T) {
	f := New(nil)
	f.SetUDPOpener(func(_ int) (net.PacketConn, error) {
		return nil, errAlreadyInUse
	})
	if err := f.Start(); err == nil {
		t.Fatal("expected Start to fail when the opener fails")
	}
}

var errAlreadyInUse = &net.OpError{Op: "listen", Err: errPortInUse{}}

type errPortInUse struct{}

func (errPortInUse) Error() string { return "address already in use" }
