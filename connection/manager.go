// Package connection implements the session pool (C6) that sits between
// callers and per-player dbserver.Client sessions: one pooled session
// per player, opened lazily, reaped when idle, and throttled against
// reconnect storms when a player's session keeps failing.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nxslink/beatlink/dbserver"
	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/transport"
)

// DefaultIdleTimeout is how long a pooled session may sit unused before
// the reaper closes it.
const DefaultIdleTimeout = 5 * time.Minute

// defaultReapInterval is how often the reaper scans for idle sessions.
const defaultReapInterval = 30 * time.Second

// AddressResolver returns the dial address (host:port) for a player
// number, normally sourced from the player's announcement-carried
// database server port (falling back to dbserver.DefaultPort).
type AddressResolver func(player int) (string, error)

type pooledSession struct {
	client       *dbserver.Client
	lastActivity time.Time
}

// Manager pools one dbserver.Client per player, dialing lazily and
// serializing opens per player so concurrent callers for the same
// player don't race to dial twice.
type Manager struct {
	logger *slog.Logger

	dialer         transport.TCPDialer
	resolve        AddressResolver
	posingAsPlayer int
	idleTimeout    time.Duration
	reconnectRate  rate.Limit
	reconnectBurst int

	mu       sync.Mutex
	sessions map[int]*pooledSession
	opening  map[int]*sync.Mutex

	limiterMu sync.Mutex
	limiters  map[int]*rate.Limiter

	cancelReaper context.CancelFunc
	reaperDone   chan struct{}
}

// Config configures a Manager.
type Config struct {
	// PosingAsPlayer is the virtual CDJ device number presented during
	// every session's SETUP_REQ handshake.
	PosingAsPlayer int
	// Resolve maps a player number to its dial address. Required.
	Resolve AddressResolver
	// Dialer overrides the transport dialer; defaults to transport.DialTCP.
	Dialer transport.TCPDialer
	// IdleTimeout overrides DefaultIdleTimeout.
	IdleTimeout time.Duration
	// ReconnectRate and ReconnectBurst bound how often a failing
	// player's session may be retried, one limiter per player.
	ReconnectRate  rate.Limit
	ReconnectBurst int
}

// New builds a Manager. It does not dial anything until a caller
// invokes a session for a given player.
func New(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReconnectRate <= 0 {
		cfg.ReconnectRate = rate.Limit(1)
	}
	if cfg.ReconnectBurst <= 0 {
		cfg.ReconnectBurst = 3
	}
	return &Manager{
		logger:         logger.With("subsystem", "connection"),
		dialer:         cfg.Dialer,
		resolve:        cfg.Resolve,
		posingAsPlayer: cfg.PosingAsPlayer,
		idleTimeout:    cfg.IdleTimeout,
		reconnectRate:  cfg.ReconnectRate,
		reconnectBurst: cfg.ReconnectBurst,
		sessions:       make(map[int]*pooledSession),
		opening:        make(map[int]*sync.Mutex),
		limiters:       make(map[int]*rate.Limiter),
	}
}

func (m *Manager) limiterFor(player int) *rate.Limiter {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()
	l, ok := m.limiters[player]
	if !ok {
		l = rate.NewLimiter(m.reconnectRate, m.reconnectBurst)
		m.limiters[player] = l
	}
	return l
}

// SetReconnectLimiter overrides the reconnect throttle for tests.
func (m *Manager) SetReconnectLimiter(player int, l *rate.Limiter) {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()
	m.limiters[player] = l
}

// sessionFor returns the pooled client for player, dialing it if
// necessary. Concurrent callers for the same player block on a
// per-player mutex rather than racing to dial twice.
func (m *Manager) sessionFor(ctx context.Context, player int) (*dbserver.Client, error) {
	m.mu.Lock()
	if s, ok := m.sessions[player]; ok {
		s.lastActivity = time.Now()
		m.mu.Unlock()
		return s.client, nil
	}
	lock, ok := m.opening[player]
	if !ok {
		lock = &sync.Mutex{}
		m.opening[player] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if s, ok := m.sessions[player]; ok {
		m.mu.Unlock()
		return s.client, nil
	}
	m.mu.Unlock()

	if !m.limiterFor(player).Allow() {
		return nil, fmt.Errorf("%w: reconnect throttled for player %d", errs.ErrTransport, player)
	}

	address, err := m.resolve(player)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving address for player %d: %v", errs.ErrTransport, player, err)
	}

	client, err := dbserver.Dial(ctx, m.dialer, address, m.posingAsPlayer, player, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[player] = &pooledSession{client: client, lastActivity: time.Now()}
	m.mu.Unlock()
	m.logger.Info("opened player session", "player", player, "address", address)
	return client, nil
}

// InvokeWithClientSession acquires (or opens) the pooled session for
// player and runs op against it. Errors from op are wrapped with
// description so callers can tell which operation failed without
// inspecting the underlying protocol error.
func (m *Manager) InvokeWithClientSession(ctx context.Context, player int, description string, op func(*dbserver.Client) error) error {
	client, err := m.sessionFor(ctx, player)
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	if err := op(client); err != nil {
		if isBrokenSession(err) {
			m.drop(player)
		}
		return fmt.Errorf("%s: %w", description, err)
	}
	m.mu.Lock()
	if s, ok := m.sessions[player]; ok {
		s.lastActivity = time.Now()
	}
	m.mu.Unlock()
	return nil
}

// isBrokenSession reports whether err indicates the underlying socket
// is no longer usable and the pooled session should be evicted rather
// than reused by the next caller.
func isBrokenSession(err error) bool {
	_, ok := err.(net.Error)
	return ok || errors.Is(err, errs.ErrTransport) || errors.Is(err, errs.ErrHandshakeFailed)
}

// drop closes and evicts a player's pooled session, forcing the next
// call to redial.
func (m *Manager) drop(player int) {
	m.mu.Lock()
	s, ok := m.sessions[player]
	if ok {
		delete(m.sessions, player)
	}
	m.mu.Unlock()
	if ok {
		s.client.Close()
	}
}

// SessionCount returns the number of pooled player sessions currently open.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartReaper launches the idle-session reaper goroutine.
func (m *Manager) StartReaper() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelReaper = cancel
	m.reaperDone = make(chan struct{})
	go m.reapLoop(ctx)
}

// StopReaper stops the reaper goroutine and closes every pooled
// session, the way a lifecycle participant shuts down.
func (m *Manager) StopReaper() {
	if m.cancelReaper != nil {
		m.cancelReaper()
		<-m.reaperDone
	}
	m.closeAll()
}

func (m *Manager) reapLoop(ctx context.Context) {
	defer close(m.reaperDone)
	ticker := time.NewTicker(defaultReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	now := time.Now()
	m.mu.Lock()
	var idle []int
	for player, s := range m.sessions {
		if now.Sub(s.lastActivity) > m.idleTimeout {
			idle = append(idle, player)
		}
	}
	m.mu.Unlock()
	for _, player := range idle {
		m.logger.Info("reaping idle player session", "player", player)
		m.drop(player)
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int]*pooledSession)
	m.mu.Unlock()
	for player, s := range sessions {
		m.logger.Info("closing player session", "player", player)
		s.client.Close()
	}
}

// DefaultAddressResolver builds an AddressResolver from a static
// player-number → host map, using dbserver.DefaultPort.
func DefaultAddressResolver(hosts map[int]net.IP) AddressResolver {
	return func(player int) (string, error) {
		ip, ok := hosts[player]
		if !ok {
			return "", fmt.Errorf("%w: no known address for player %d", errs.ErrTransport, player)
		}
		return fmt.Sprintf("%s:%d", ip.String(), dbserver.DefaultPort), nil
	}
}
