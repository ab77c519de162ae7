package beat

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/transport"
)

// Port is the fixed UDP port beat announcements are broadcast on.
const Port = 50001

const maxDatagramSize = 2048

// Listener is notified of every successfully parsed Beat.
type Listener interface {
	BeatReceived(b Beat)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(b Beat)

// BeatReceived implements Listener.
func (f ListenerFunc) BeatReceived(b Beat) { f(b) }

// Finder owns the UDP socket on Port and fans out every valid beat
// packet it receives to registered listeners. All other datagrams are
// silently dropped.
type Finder struct {
	logger *slog.Logger
	opener transport.UDPOpener

	mu        sync.Mutex
	conn      net.PacketConn
	listeners []Listener
	running   bool
	done      chan struct{}
}

// New creates a Finder that opens its socket with transport.OpenUDP;
// SetUDPOpener replaces the opener.
func New(logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		logger: logger.With("subsystem", "beatfinder"),
		opener: transport.OpenUDP,
	}
}

// SetUDPOpener overrides the socket opener, for tests.
func (f *Finder) SetUDPOpener(opener transport.UDPOpener) {
	f.opener = opener
}

// AddListener registers l to receive future beats.
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

// IsRunning reports whether the finder's listener goroutine is active.
func (f *Finder) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Start binds the beat UDP socket and begins listening in a background
// goroutine. It fails with ErrTransport if the bind fails.
func (f *Finder) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	conn, err := f.opener(Port)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: binding beat finder to port %d: %v", errs.ErrTransport, Port, err)
	}
	f.conn = conn
	f.running = true
	f.done = make(chan struct{})
	f.mu.Unlock()

	go f.listen(conn, f.done)
	f.logger.Info("beat finder started", "port", Port)
	return nil
}

// Stop closes the socket and stops the listener goroutine.
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
	f.logger.Info("beat finder stopped")
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
			f.logger.Warn("beat finder read error", "error", err)
			continue
		}
		b, ok := Parse(buf[:n], addr)
		if !ok {
			continue
		}
		for _, l := range f.snapshotListeners() {
			f.dispatch(l, b)
		}
	}
}

// dispatch invokes l, recovering from and logging any panic so a
// misbehaving listener can never crash the finder.
func (f *Finder) dispatch(l Listener, b Beat) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("beat listener panicked", "panic", r)
		}
	}()
	l.BeatReceived(b)
}
