// Package engine wires the device, beat, connection, metadata, and
// waveform components into a single runtime handle.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nxslink/beatlink/beat"
	"github.com/nxslink/beatlink/connection"
	"github.com/nxslink/beatlink/dbserver"
	"github.com/nxslink/beatlink/device"
	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/metadata"
	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/waveform"
)

// Config configures an Engine.
type Config struct {
	// PosingAsPlayer is the virtual CDJ device number presented to
	// players during every dbserver handshake.
	PosingAsPlayer int
	// FindDetails selects whether waveform detail (not just preview) is
	// fetched as tracks load.
	FindDetails bool
	// PreferredStyle selects the initial waveform rendering style.
	PreferredStyle types.WaveformStyle
	// IdleTimeout bounds how long a pooled player session may sit idle
	// before the connection manager closes it.
	IdleTimeout time.Duration
	// ReconnectRate and ReconnectBurst throttle how often a failing
	// player session may be retried.
	ReconnectRate  rate.Limit
	ReconnectBurst int
	// MetadataProvider, if set, is consulted by the metadata finder
	// before it falls back to its own dbserver requests.
	MetadataProvider metadata.Provider
}

// Engine owns the device roster, beat/tempo listener, player connection
// pool, track metadata cache, and waveform cache, wiring the
// cross-component signals the individual packages don't know about
// each other for: device loss invalidates waveform caches, and the
// connection manager resolves player addresses from the device roster.
type Engine struct {
	// ID uniquely identifies this Engine instance in logs, useful when a
	// process runs more than one (e.g. briefly, during a hand-off
	// between an old and new default instance).
	ID uuid.UUID

	logger *slog.Logger

	Devices     *device.Finder
	Beats       *beat.Finder
	Connections *connection.Manager
	Metadata    *metadata.Finder
	Waveforms   *waveform.Finder

	running atomic.Bool
}

// New builds an Engine. Start must be called to begin listening.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	devices := device.New(logger)
	beats := beat.New(logger)

	conns := connection.New(connection.Config{
		PosingAsPlayer: cfg.PosingAsPlayer,
		Resolve:        deviceAddressResolver(devices),
		IdleTimeout:    cfg.IdleTimeout,
		ReconnectRate:  cfg.ReconnectRate,
		ReconnectBurst: cfg.ReconnectBurst,
	}, logger)

	meta := metadata.New(metadata.Config{
		Manager:  conns,
		Provider: cfg.MetadataProvider,
		Active:   true,
	}, logger)

	waves := waveform.New(waveform.Config{
		Manager:        conns,
		MetadataFinder: meta,
		FindDetails:    cfg.FindDetails,
		PreferredStyle: cfg.PreferredStyle,
	}, logger)

	id := uuid.New()
	e := &Engine{
		ID:          id,
		logger:      logger.With("subsystem", "engine", "engine_id", id),
		Devices:     devices,
		Beats:       beats,
		Connections: conns,
		Metadata:    meta,
		Waveforms:   waves,
	}

	devices.AddListener(device.Funcs{Lost: func(a device.Announcement) {
		meta.HandleDeviceLost(a)
		waves.HandleDeviceLost(a)
	}})
	meta.AddListener(waves)

	return e
}

// deviceAddressResolver builds an AddressResolver that looks up a
// player's current network address from the live device roster.
func deviceAddressResolver(devices *device.Finder) connection.AddressResolver {
	return func(player int) (string, error) {
		a, ok := devices.DeviceByNumber(player)
		if !ok {
			return "", fmt.Errorf("%w: player %d is not currently visible", errs.ErrTransport, player)
		}
		return fmt.Sprintf("%s:%d", a.Address.String(), dbserver.DefaultPort), nil
	}
}

// Start begins listening for device announcements and beat packets, and
// starts the connection pool's idle reaper and the waveform finder's
// worker goroutine.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.Devices.Start(); err != nil {
		e.running.Store(false)
		return fmt.Errorf("starting device finder: %w", err)
	}
	if err := e.Beats.Start(); err != nil {
		e.Devices.Stop()
		e.running.Store(false)
		return fmt.Errorf("starting beat finder: %w", err)
	}
	e.Connections.StartReaper()
	e.Waveforms.Start()
	e.logger.Info("engine started")
	return nil
}

// Stop tears down every component in reverse startup order.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	e.Waveforms.Stop()
	e.Connections.StopReaper()
	err := e.Beats.Stop()
	if dErr := e.Devices.Stop(); dErr != nil && err == nil {
		err = dErr
	}
	e.logger.Info("engine stopped")
	return err
}

// InvalidateMediaSlot clears cached metadata and waveforms for every
// track sourced from slot, the reaction a caller should trigger when it
// detects (by whatever means it observes player status) that slot's
// media has been unmounted.
func (e *Engine) InvalidateMediaSlot(slot types.SlotReference) {
	e.Metadata.ClearMediaDetails(slot)
	e.Waveforms.InvalidateSlot(slot)
}

var (
	defaultMu  sync.RWMutex
	defaultEng *Engine
)

// Default returns the process-wide Engine set by SetDefault, for callers
// that prefer a single ambient instance over threading an explicit
// handle through their call graph. Panics if no default has been set.
func Default() *Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultEng == nil {
		panic("engine: Default called before SetDefault")
	}
	return defaultEng
}

// SetDefault installs e as the process-wide default Engine returned by
// Default.
func SetDefault(e *Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEng = e
}
