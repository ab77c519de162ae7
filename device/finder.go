package device

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/transport"
)

// Port is the fixed UDP port device announcements are broadcast on.
const Port = 50000

const maxDatagramSize = 2048

// ReaperInterval is how often the liveness reaper scans for expired
// devices. The spec nominally wants this at or below one second.
const ReaperInterval = 1 * time.Second

// ExpiryInterval is how long a device may go unheard from before it is
// considered lost: now - lastSeen > ExpiryInterval.
const ExpiryInterval = 10 * time.Second

// Listener is notified when a device joins or leaves the network.
type Listener interface {
	DeviceFound(a Announcement)
	DeviceLost(a Announcement)
}

// Funcs adapts plain functions to the Listener interface; either field
// may be left nil.
type Funcs struct {
	Found func(Announcement)
	Lost  func(Announcement)
}

// DeviceFound implements Listener.
func (f Funcs) DeviceFound(a Announcement) {
	if f.Found != nil {
		f.Found(a)
	}
}

// DeviceLost implements Listener.
func (f Funcs) DeviceLost(a Announcement) {
	if f.Lost != nil {
		f.Lost(a)
	}
}

// Finder owns the UDP socket on Port, tracks every announcing device's
// liveness, and fans out found/lost events.
type Finder struct {
	logger *slog.Logger
	opener transport.UDPOpener
	now    func() time.Time

	reaperInterval time.Duration
	expiryInterval time.Duration

	mu        sync.Mutex
	conn      net.PacketConn
	devices   map[int]Announcement
	listeners []Listener
	running   bool
	done      chan struct{}
	reaperOff chan struct{}
}

// New creates a Finder that opens its socket with transport.OpenUDP;
// SetUDPOpener replaces the opener.
func New(logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		logger:         logger.With("subsystem", "devicefinder"),
		opener:         transport.OpenUDP,
		now:            time.Now,
		reaperInterval: ReaperInterval,
		expiryInterval: ExpiryInterval,
		devices:        make(map[int]Announcement),
	}
}

// SetUDPOpener overrides the socket opener, for tests.
func (f *Finder) SetUDPOpener(opener transport.UDPOpener) {
	f.opener = opener
}

// SetClock overrides the time source, for tests.
func (f *Finder) SetClock(now func() time.Time) {
	f.now = now
}

// SetIntervals overrides the reaper cadence and expiry window, for
// tests that want liveness transitions to happen quickly.
func (f *Finder) SetIntervals(reaper, expiry time.Duration) {
	f.reaperInterval = reaper
	f.expiryInterval = expiry
}

// AddListener registers l to receive future found/lost events.
func (f *Finder) AddListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// RemoveListener deregisters l.
func (f *Finder) RemoveListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.listeners {
		if existing == l {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

func (f *Finder) snapshotListeners() []Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Listener, len(f.listeners))
	copy(out, f.listeners)
	return out
}

// CurrentDevices returns a snapshot of every currently-live device.
func (f *Finder) CurrentDevices() []Announcement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Announcement, 0, len(f.devices))
	for _, a := range f.devices {
		out = append(out, a)
	}
	return out
}

// CurrentDeviceCount returns the number of devices currently visible.
func (f *Finder) CurrentDeviceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

// DeviceByNumber returns the live announcement for deviceNumber, if any.
func (f *Finder) DeviceByNumber(deviceNumber int) (Announcement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.devices[deviceNumber]
	return a, ok
}

// IsRunning reports whether the finder is actively listening.
func (f *Finder) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Start binds the announcement UDP socket, and launches the listener
// and liveness-reaper goroutines. It fails with ErrTransport if the
// bind fails.
func (f *Finder) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	conn, err := f.opener(Port)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: binding device finder to port %d: %v", errs.ErrTransport, Port, err)
	}
	f.conn = conn
	f.running = true
	f.done = make(chan struct{})
	f.reaperOff = make(chan struct{})
	f.mu.Unlock()

	go f.listen(conn, f.done)
	go f.reap(f.reaperOff)
	f.logger.Info("device finder started", "port", Port)
	return nil
}

// Stop closes the socket and stops both background goroutines.
func (f *Finder) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	conn := f.conn
	f.running = false
	f.mu.Unlock()

	err := conn.Close()
	<-f.done
	close(f.reaperOff)
	f.logger.Info("device finder stopped")
	return err
}

func (f *Finder) listen(conn net.PacketConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if !f.IsRunning() {
				return
			}
			f.logger.Warn("device finder read error", "error", err)
			continue
		}
		ann, ok := parse(buf[:n], f.now())
		if !ok {
			continue
		}
		if udpAddr, ok := addr.(*net.UDPAddr); ok && ann.Address == nil {
			ann.Address = udpAddr.IP
		}
		f.upsert(ann)
	}
}

// upsert inserts or refreshes a device's liveness entry, firing
// DeviceFound only for genuinely new entries.
func (f *Finder) upsert(ann Announcement) {
	f.mu.Lock()
	_, existed := f.devices[ann.DeviceNumber]
	f.devices[ann.DeviceNumber] = ann
	f.mu.Unlock()

	if !existed {
		f.logger.Info("device found", "device_number", ann.DeviceNumber, "name", ann.Name)
		for _, l := range f.snapshotListeners() {
			f.dispatchFound(l, ann)
		}
	}
}

func (f *Finder) reap(stop chan struct{}) {
	ticker := time.NewTicker(f.reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.reapOnce()
		}
	}
}

func (f *Finder) reapOnce() {
	now := f.now()
	var expired []Announcement

	f.mu.Lock()
	for number, ann := range f.devices {
		if now.Sub(ann.LastSeen) > f.expiryInterval {
			expired = append(expired, ann)
			delete(f.devices, number)
		}
	}
	f.mu.Unlock()

	for _, ann := range expired {
		f.logger.Info("device lost", "device_number", ann.DeviceNumber, "name", ann.Name)
		for _, l := range f.snapshotListeners() {
			f.dispatchLost(l, ann)
		}
	}
}

func (f *Finder) dispatchFound(l Listener, a Announcement) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("device listener panicked on found", "panic", r)
		}
	}()
	l.DeviceFound(a)
}

func (f *Finder) dispatchLost(l Listener, a Announcement) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("device listener panicked on lost", "panic", r)
		}
	}()
	l.DeviceLost(a)
}
