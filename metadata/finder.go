package metadata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nxslink/beatlink/connection"
	"github.com/nxslink/beatlink/dbserver"
	"github.com/nxslink/beatlink/device"
	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/wire"
)

// MenuID is the dbserver menu identifier requested for a full
// track-info render (as opposed to a browse listing).
const MenuID = 0

// Finder maintains the per-deck metadata cache. In active mode it
// issues its own dbserver requests through a connection.Manager for
// media it has not seen metadata for yet; in passive mode it only
// records whatever Provider or external caller supplies.
type Finder struct {
	logger *slog.Logger

	manager  *connection.Manager
	provider Provider
	active   bool

	mu           sync.RWMutex
	loadedTracks map[types.DeckReference]*TrackMetadata
	mediaDetails map[types.SlotReference]MediaDetails

	listenersMu sync.Mutex
	listeners   []Listener

	requestTimeout time.Duration
}

// Config configures a Finder.
type Config struct {
	// Manager issues dbserver requests in active mode. May be nil in
	// passive-only configurations.
	Manager *connection.Manager
	// Provider is consulted before falling back to the dbserver Client.
	// May be nil.
	Provider Provider
	// Active selects whether the finder issues its own requests for
	// freshly discovered media, or only records externally supplied
	// metadata.
	Active bool
}

// New builds a Finder.
func New(cfg Config, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		logger:         logger.With("subsystem", "metadata"),
		manager:        cfg.Manager,
		provider:       cfg.Provider,
		active:         cfg.Active,
		loadedTracks:   make(map[types.DeckReference]*TrackMetadata),
		mediaDetails:   make(map[types.SlotReference]MediaDetails),
		requestTimeout: dbserver.RequestTimeout,
	}
}

// AddListener registers l to receive every future update.
func (f *Finder) AddListener(l Listener) {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	f.listeners = append(f.listeners, l)
}

// RemoveListener unregisters l.
func (f *Finder) RemoveListener(l Listener) {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	for i, existing := range f.listeners {
		if existing == l {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

func (f *Finder) snapshotListeners() []Listener {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	out := make([]Listener, len(f.listeners))
	copy(out, f.listeners)
	return out
}

func (f *Finder) dispatch(update Update) {
	for _, l := range f.snapshotListeners() {
		func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					f.logger.Error("metadata listener panicked", "recovered", r)
				}
			}()
			l.TrackMetadataUpdate(update)
		}(l)
	}
}

// GetLatestMetadataFor returns the cached metadata for a player's
// currently playing deck position, or nil if none is loaded.
func (f *Finder) GetLatestMetadataFor(player int) *TrackMetadata {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadedTracks[types.DeckRef(player)]
}

// GetLoadedTracks returns a snapshot of every deck reference currently
// holding metadata.
func (f *Finder) GetLoadedTracks() map[types.DeckReference]*TrackMetadata {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[types.DeckReference]*TrackMetadata, len(f.loadedTracks))
	for k, v := range f.loadedTracks {
		out[k] = v
	}
	return out
}

// LoadedTrackCount returns the number of decks currently holding metadata.
func (f *Finder) LoadedTrackCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.loadedTracks)
}

// GetMediaDetailsFor returns the media details recorded for a slot.
func (f *Finder) GetMediaDetailsFor(slot types.SlotReference) (MediaDetails, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	md, ok := f.mediaDetails[slot]
	return md, ok
}

// SetMediaDetails records media details for a slot (normally fed by a
// status-packet listener outside this package's scope).
func (f *Finder) SetMediaDetails(details MediaDetails) {
	f.mu.Lock()
	f.mediaDetails[details.Slot] = details
	f.mu.Unlock()
}

// ClearMediaDetails drops the recorded details for slot and clears
// every cached track whose reference lives on that slot.
func (f *Finder) ClearMediaDetails(slot types.SlotReference) {
	f.mu.Lock()
	delete(f.mediaDetails, slot)
	var cleared []int
	for ref, md := range f.loadedTracks {
		if md != nil && md.TrackReference.Slot == slot {
			delete(f.loadedTracks, ref)
			cleared = append(cleared, ref.Player)
		}
	}
	f.mu.Unlock()
	for _, player := range cleared {
		f.dispatch(Update{Player: player, Metadata: nil})
	}
}

// SetLoaded records metadata for deck (player, 0) supplied externally
// (passive mode, or a caller that already resolved it) and fans out
// the update.
func (f *Finder) SetLoaded(player int, md *TrackMetadata) {
	ref := types.DeckRef(player)
	f.mu.Lock()
	if md == nil {
		delete(f.loadedTracks, ref)
	} else {
		f.loadedTracks[ref] = md
	}
	f.mu.Unlock()
	f.dispatch(Update{Player: player, Metadata: md})
}

// Unload clears a player's currently-playing deck metadata and fans
// out a nil update.
func (f *Finder) Unload(player int) {
	f.SetLoaded(player, nil)
}

// HandleDeviceLost is the device-lost invalidation source: wired by
// callers to device.Finder's Listener.DeviceLost. Announcements from
// the gateway device are ignored. It drops every deck entry that
// belonged to the departed player so a stale track never lingers in
// GetLoadedTracks after the player itself has vanished.
func (f *Finder) HandleDeviceLost(a device.Announcement) {
	if a.IsGateway() {
		return
	}
	player := a.DeviceNumber

	f.mu.Lock()
	var cleared []types.DeckReference
	for ref := range f.loadedTracks {
		if ref.Player == player {
			delete(f.loadedTracks, ref)
			cleared = append(cleared, ref)
		}
	}
	f.mu.Unlock()
	for _, ref := range cleared {
		f.dispatch(Update{Player: ref.Player, Metadata: nil})
	}
}

// RequestTrackMetadata resolves metadata for ref, consulting the
// configured Provider first and falling back to the dbserver Client
// (through the connection.Manager) only when running in active mode.
func (f *Finder) RequestTrackMetadata(ctx context.Context, player int, ref types.DataReference) (*TrackMetadata, error) {
	if f.provider != nil {
		md, err := f.provider.GetTrackMetadata(ctx, ref)
		if err != nil {
			return nil, err
		}
		if md != nil {
			return md, nil
		}
	}

	if !f.active || f.manager == nil {
		return nil, nil
	}

	var items []dbserver.MenuItem
	rmst := dbserver.RMST(player, MenuID, ref.Slot.Slot, ref.TrackType)
	err := f.manager.InvokeWithClientSession(ctx, player, "requesting track metadata", func(c *dbserver.Client) error {
		session, err := c.TryLockMenu(ctx, dbserver.MenuTimeout)
		if err != nil {
			return err
		}
		defer session.Unlock()

		count, err := session.RequestMenu(wire.MessageTypeTrackInfoReq, rmst, wire.NewNumberField(4, uint32(ref.RekordboxID)))
		if err != nil {
			return err
		}
		items, err = session.RenderMenu(rmst, 0, count)
		return err
	})
	if err != nil {
		return nil, err
	}

	md := BuildTrackMetadata(ref, items, time.Now().UnixNano())
	return md, nil
}

// RequestAndPublish resolves metadata for ref and, on success, stores
// and fans it out as the current track for player's playing deck.
func (f *Finder) RequestAndPublish(ctx context.Context, player int, ref types.DataReference) (*TrackMetadata, error) {
	md, err := f.RequestTrackMetadata(ctx, player, ref)
	if err != nil {
		return nil, err
	}
	f.SetLoaded(player, md)
	return md, nil
}
