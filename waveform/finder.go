package waveform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nxslink/beatlink/connection"
	"github.com/nxslink/beatlink/dbserver"
	"github.com/nxslink/beatlink/device"
	"github.com/nxslink/beatlink/errs"
	"github.com/nxslink/beatlink/metadata"
	"github.com/nxslink/beatlink/types"
)

// MaxPendingUpdates bounds the intake queue; once full, new updates
// are dropped with a warning rather than blocking the producer (the
// MetadataFinder's own dispatch goroutine).
const MaxPendingUpdates = 100

// AnalysisUpdateInterval is how long the UNANALYZED retry controller
// waits before resynthesizing a metadata update to retry a fetch.
const AnalysisUpdateInterval = 2 * time.Second

// MaximumAnalysisWait bounds how long after a track's metadata
// timestamp the retry controller keeps trying before giving up.
const MaximumAnalysisWait = 20 * time.Second

// Config configures a Finder.
type Config struct {
	// Manager issues the dbserver requests that populate the caches.
	Manager *connection.Manager
	// MetadataFinder supplies the track metadata updates this Finder
	// reacts to, and is consulted for media details and loaded tracks
	// when priming the cache.
	MetadataFinder *metadata.Finder
	// FindDetails selects whether detail waveforms are fetched in
	// addition to previews. Defaults to false (previews only).
	FindDetails bool
	// PreferredStyle selects the initial waveform rendering style.
	// Defaults to types.WaveformStyleBlue.
	PreferredStyle types.WaveformStyle
}

// Finder maintains the per-deck waveform preview/detail caches, fed by
// a single worker goroutine that consumes metadata.Finder's updates
// and dispatches deduplicated fetch requests.
type Finder struct {
	logger *slog.Logger

	manager        *connection.Manager
	metadataFinder *metadata.Finder

	findDetails    atomic.Bool
	preferredStyle atomic.Int32
	retrying       atomic.Bool

	previewMu    sync.Mutex
	previewCache map[types.DeckReference]*Preview

	detailMu    sync.Mutex
	detailCache map[types.DeckReference]*Detail

	activePreviewMu sync.Mutex
	activePreview   map[int]struct{}

	activeDetailMu sync.Mutex
	activeDetail   map[int]struct{}

	listenersMu sync.Mutex
	listeners   []Listener

	queue      chan metadata.Update
	running    atomic.Bool
	workerDone chan struct{}
}

// New builds a Finder. Start must be called before it reacts to
// metadata updates.
func New(cfg Config, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Finder{
		logger:         logger.With("subsystem", "waveformfinder"),
		manager:        cfg.Manager,
		metadataFinder: cfg.MetadataFinder,
		previewCache:   make(map[types.DeckReference]*Preview),
		detailCache:    make(map[types.DeckReference]*Detail),
		activePreview:  make(map[int]struct{}),
		activeDetail:   make(map[int]struct{}),
	}
	f.findDetails.Store(cfg.FindDetails)
	f.preferredStyle.Store(int32(cfg.PreferredStyle))
	return f
}

// AddListener registers l to receive future cache changes.
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

func (f *Finder) dispatchPreview(player int, preview *Preview) {
	update := PreviewUpdate{Player: player, Preview: preview}
	for _, l := range f.snapshotListeners() {
		func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					f.logger.Error("waveform listener panicked", "recovered", r)
				}
			}()
			l.PreviewChanged(update)
		}(l)
	}
}

func (f *Finder) dispatchDetail(player int, detail *Detail) {
	update := DetailUpdate{Player: player, Detail: detail}
	for _, l := range f.snapshotListeners() {
		func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					f.logger.Error("waveform listener panicked", "recovered", r)
				}
			}()
			l.DetailChanged(update)
		}(l)
	}
}

// IsFindingDetails reports whether detail waveforms are currently
// being fetched in addition to previews.
func (f *Finder) IsFindingDetails() bool { return f.findDetails.Load() }

// SetFindDetails enables or disables detail waveform fetching. When
// disabling, every cached detail (hot-cue entries included) is dropped
// and a nil update is broadcast for each deck's playing position.
func (f *Finder) SetFindDetails(find bool) {
	old := f.findDetails.Swap(find)
	if old == find {
		return
	}
	if find {
		f.primeCache()
		return
	}

	f.detailMu.Lock()
	var decks []int
	for ref := range f.detailCache {
		if ref.IsPlaying() {
			decks = append(decks, ref.Player)
		}
	}
	f.detailCache = make(map[types.DeckReference]*Detail)
	f.detailMu.Unlock()

	for _, player := range decks {
		f.dispatchDetail(player, nil)
	}
}

// PreferredStyle returns the currently preferred waveform style.
func (f *Finder) PreferredStyle() types.WaveformStyle {
	return types.WaveformStyle(f.preferredStyle.Load())
}

// SetPreferredStyle changes which rendering style is requested from
// players. Changing it clears every cached waveform and reprimes from
// the currently loaded tracks.
func (f *Finder) SetPreferredStyle(style types.WaveformStyle) {
	old := f.preferredStyle.Swap(int32(style))
	if types.WaveformStyle(old) == style {
		return
	}
	f.clearAllWaveforms()
	f.primeCache()
}

// SetColorPreferred is a convenience wrapper choosing between RGB and
// the legacy BLUE style.
func (f *Finder) SetColorPreferred(preferColor bool) {
	if preferColor {
		f.SetPreferredStyle(types.WaveformStyleRGB)
	} else {
		f.SetPreferredStyle(types.WaveformStyleBlue)
	}
}

// GetLoadedPreviews returns a snapshot of every cached preview.
func (f *Finder) GetLoadedPreviews() map[types.DeckReference]*Preview {
	f.previewMu.Lock()
	defer f.previewMu.Unlock()
	out := make(map[types.DeckReference]*Preview, len(f.previewCache))
	for k, v := range f.previewCache {
		out[k] = v
	}
	return out
}

// GetLoadedDetails returns a snapshot of every cached detail. It fails
// with ErrConfiguration if detail fetching is not enabled.
func (f *Finder) GetLoadedDetails() (map[types.DeckReference]*Detail, error) {
	if !f.IsFindingDetails() {
		return nil, fmt.Errorf("%w: waveform finder is not configured to find waveform details", errs.ErrConfiguration)
	}
	f.detailMu.Lock()
	defer f.detailMu.Unlock()
	out := make(map[types.DeckReference]*Detail, len(f.detailCache))
	for k, v := range f.detailCache {
		out[k] = v
	}
	return out, nil
}

// LoadedPreviewCount returns the number of cached waveform previews.
func (f *Finder) LoadedPreviewCount() int {
	f.previewMu.Lock()
	defer f.previewMu.Unlock()
	return len(f.previewCache)
}

// LoadedDetailCount returns the number of cached waveform details.
func (f *Finder) LoadedDetailCount() int {
	f.detailMu.Lock()
	defer f.detailMu.Unlock()
	return len(f.detailCache)
}

// GetLatestPreviewFor returns the cached preview for a player's
// playing deck position, or nil if none is cached.
func (f *Finder) GetLatestPreviewFor(player int) *Preview {
	f.previewMu.Lock()
	defer f.previewMu.Unlock()
	return f.previewCache[types.DeckRef(player)]
}

// GetLatestDetailFor returns the cached detail for a player's playing
// deck position, or nil if none is cached.
func (f *Finder) GetLatestDetailFor(player int) *Detail {
	f.detailMu.Lock()
	defer f.detailMu.Unlock()
	return f.detailCache[types.DeckRef(player)]
}

// RequestWaveformPreviewFrom returns the preview for ref, checking the
// hot cache first and falling back to a synchronous fetch.
func (f *Finder) RequestWaveformPreviewFrom(ctx context.Context, ref types.DataReference) (*Preview, error) {
	f.previewMu.Lock()
	for _, preview := range f.previewCache {
		if preview != nil && preview.TrackReference == ref {
			f.previewMu.Unlock()
			return preview, nil
		}
	}
	f.previewMu.Unlock()
	return f.requestPreviewInternal(ctx, ref)
}

// RequestWaveformDetailFrom returns the detail for ref, checking the
// hot cache first and falling back to a synchronous fetch.
func (f *Finder) RequestWaveformDetailFrom(ctx context.Context, ref types.DataReference) (*Detail, error) {
	f.detailMu.Lock()
	for _, detail := range f.detailCache {
		if detail != nil && detail.TrackReference == ref {
			f.detailMu.Unlock()
			return detail, nil
		}
	}
	f.detailMu.Unlock()
	return f.requestDetailInternal(ctx, ref)
}

func (f *Finder) requestPreviewInternal(ctx context.Context, ref types.DataReference) (*Preview, error) {
	if f.manager == nil {
		return nil, nil
	}
	var result *Preview
	err := f.manager.InvokeWithClientSession(ctx, ref.Slot.Player, "requesting waveform preview", func(c *dbserver.Client) error {
		preview, err := fetchPreview(c, ref, f.PreferredStyle())
		if err != nil {
			return err
		}
		result = preview
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Finder) requestDetailInternal(ctx context.Context, ref types.DataReference) (*Detail, error) {
	if f.manager == nil {
		return nil, nil
	}
	var result *Detail
	err := f.manager.InvokeWithClientSession(ctx, ref.Slot.Player, "requesting waveform detail", func(c *dbserver.Client) error {
		detail, err := fetchDetail(c, ref, f.PreferredStyle())
		if err != nil {
			return err
		}
		result = detail
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TrackMetadataUpdate implements metadata.Listener: it enqueues the
// update for the worker goroutine to process, dropping it with a
// warning if the intake queue is backed up.
func (f *Finder) TrackMetadataUpdate(update metadata.Update) {
	if !f.running.Load() {
		return
	}
	select {
	case f.queue <- update:
	default:
		f.logger.Warn("discarding metadata update because waveform queue is backed up", "player", update.Player)
	}
}

// Start registers this Finder as a metadata listener, launches the
// worker goroutine, and primes the cache from already-loaded tracks.
func (f *Finder) Start() {
	if f.running.Swap(true) {
		return
	}
	f.queue = make(chan metadata.Update, MaxPendingUpdates)
	f.workerDone = make(chan struct{})

	if f.metadataFinder != nil {
		f.metadataFinder.AddListener(f)
	}

	go f.work()
	f.primeCache()
	f.logger.Info("waveform finder started")
}

// Stop stops the worker goroutine, clears every cache, and
// deregisters from the metadata finder.
func (f *Finder) Stop() {
	if !f.running.Swap(false) {
		return
	}
	if f.metadataFinder != nil {
		f.metadataFinder.RemoveListener(f)
	}
	close(f.queue)
	<-f.workerDone
	f.clearAllWaveforms()
	f.logger.Info("waveform finder stopped")
}

func (f *Finder) work() {
	defer close(f.workerDone)
	for update := range f.queue {
		f.handleUpdate(update)
	}
}

func (f *Finder) primeCache() {
	if f.metadataFinder == nil {
		return
	}
	for ref, md := range f.metadataFinder.GetLoadedTracks() {
		if ref.IsPlaying() {
			f.handleUpdate(metadata.Update{Player: ref.Player, Metadata: md})
		}
	}
}

func (f *Finder) handleUpdate(update metadata.Update) {
	if update.Metadata == nil {
		f.clearDeck(update.Player)
		return
	}

	f.handlePreview(update)
	if f.IsFindingDetails() {
		f.handleDetail(update)
	}
}

func (f *Finder) handlePreview(update metadata.Update) {
	deck := types.DeckRef(update.Player)
	f.previewMu.Lock()
	last := f.previewCache[deck]
	f.previewMu.Unlock()

	if last != nil && last.TrackReference == update.Metadata.TrackReference && update.Metadata.TrackType != types.TrackTypeUnanalyzed {
		return
	}

	if promoted := f.promotePreview(update); promoted {
		return
	}

	f.activePreviewMu.Lock()
	_, already := f.activePreview[update.Player]
	if !already {
		f.activePreview[update.Player] = struct{}{}
	}
	f.activePreviewMu.Unlock()
	if already {
		return
	}

	f.clearDeckPreview(update.Player)
	go func() {
		defer func() {
			f.activePreviewMu.Lock()
			delete(f.activePreview, update.Player)
			f.activePreviewMu.Unlock()
		}()
		preview, err := f.requestPreviewInternal(context.Background(), update.Metadata.TrackReference)
		if err != nil {
			f.logger.Warn("problem requesting waveform preview", "player", update.Player, "error", err)
			f.retryUnanalyzed(update)
			return
		}
		if preview != nil {
			f.updatePreview(update, preview)
			return
		}
		f.retryUnanalyzed(update)
	}()
}

func (f *Finder) handleDetail(update metadata.Update) {
	deck := types.DeckRef(update.Player)
	f.detailMu.Lock()
	last := f.detailCache[deck]
	f.detailMu.Unlock()

	if last != nil && last.TrackReference == update.Metadata.TrackReference && update.Metadata.TrackType != types.TrackTypeUnanalyzed {
		return
	}

	if promoted := f.promoteDetail(update); promoted {
		return
	}

	f.activeDetailMu.Lock()
	_, already := f.activeDetail[update.Player]
	if !already {
		f.activeDetail[update.Player] = struct{}{}
	}
	f.activeDetailMu.Unlock()
	if already {
		return
	}

	f.clearDeckDetail(update.Player)
	go func() {
		defer func() {
			f.activeDetailMu.Lock()
			delete(f.activeDetail, update.Player)
			f.activeDetailMu.Unlock()
		}()
		detail, err := f.requestDetailInternal(context.Background(), update.Metadata.TrackReference)
		if err != nil {
			f.logger.Warn("problem requesting waveform detail", "player", update.Player, "error", err)
			f.retryUnanalyzed(update)
			return
		}
		if detail != nil {
			f.updateDetail(update, detail)
			return
		}
		f.retryUnanalyzed(update)
	}()
}

// promotePreview reuses a hot-cue cache entry for the same track
// rather than issuing a redundant fetch, the way the same waveform
// bytes are shared across every hot cue pointing at one track.
func (f *Finder) promotePreview(update metadata.Update) bool {
	f.previewMu.Lock()
	defer f.previewMu.Unlock()
	for ref, preview := range f.previewCache {
		if ref.HotCue != 0 && preview != nil && preview.TrackReference == update.Metadata.TrackReference {
			f.previewCache[types.DeckRef(update.Player)] = preview
			go f.dispatchPreview(update.Player, preview)
			return true
		}
	}
	return false
}

func (f *Finder) promoteDetail(update metadata.Update) bool {
	f.detailMu.Lock()
	defer f.detailMu.Unlock()
	for ref, detail := range f.detailCache {
		if ref.HotCue != 0 && detail != nil && detail.TrackReference == update.Metadata.TrackReference {
			f.detailCache[types.DeckRef(update.Player)] = detail
			go f.dispatchDetail(update.Player, detail)
			return true
		}
	}
	return false
}

func (f *Finder) updatePreview(update metadata.Update, preview *Preview) {
	f.previewMu.Lock()
	f.previewCache[types.DeckRef(update.Player)] = preview
	if update.Metadata.CueList != nil {
		for _, cue := range update.Metadata.CueList.Cues {
			if cue.HotCueNumber != 0 {
				f.previewCache[types.DeckReference{Player: update.Player, HotCue: cue.HotCueNumber}] = preview
			}
		}
	}
	f.previewMu.Unlock()
	f.dispatchPreview(update.Player, preview)
}

func (f *Finder) updateDetail(update metadata.Update, detail *Detail) {
	f.detailMu.Lock()
	f.detailCache[types.DeckRef(update.Player)] = detail
	if update.Metadata.CueList != nil {
		for _, cue := range update.Metadata.CueList.Cues {
			if cue.HotCueNumber != 0 {
				f.detailCache[types.DeckReference{Player: update.Player, HotCue: cue.HotCueNumber}] = detail
			}
		}
	}
	f.detailMu.Unlock()
	f.dispatchDetail(update.Player, detail)
}

func (f *Finder) clearDeckPreview(player int) {
	deck := types.DeckRef(player)
	f.previewMu.Lock()
	_, had := f.previewCache[deck]
	delete(f.previewCache, deck)
	f.previewMu.Unlock()
	if had {
		f.dispatchPreview(player, nil)
	}
}

func (f *Finder) clearDeckDetail(player int) {
	deck := types.DeckRef(player)
	f.detailMu.Lock()
	_, had := f.detailCache[deck]
	delete(f.detailCache, deck)
	f.detailMu.Unlock()
	if had {
		f.dispatchDetail(player, nil)
	}
}

func (f *Finder) clearDeck(player int) {
	f.clearDeckPreview(player)
	f.clearDeckDetail(player)
}

func (f *Finder) clearAllWaveforms() {
	f.previewMu.Lock()
	var previewDecks []int
	for ref := range f.previewCache {
		if ref.IsPlaying() {
			previewDecks = append(previewDecks, ref.Player)
		}
	}
	f.previewCache = make(map[types.DeckReference]*Preview)
	f.previewMu.Unlock()
	for _, player := range previewDecks {
		f.dispatchPreview(player, nil)
	}

	f.detailMu.Lock()
	var detailDecks []int
	for ref := range f.detailCache {
		if ref.IsPlaying() {
			detailDecks = append(detailDecks, ref.Player)
		}
	}
	f.detailCache = make(map[types.DeckReference]*Detail)
	f.detailMu.Unlock()
	for _, player := range detailDecks {
		f.dispatchDetail(player, nil)
	}
}

// HandleDeviceLost is the device-lost invalidation source: wired by
// callers to device.Finder's Listener.DeviceLost. Announcements from
// the gateway device are ignored.
func (f *Finder) HandleDeviceLost(a device.Announcement) {
	if a.IsGateway() {
		return
	}
	player := a.DeviceNumber

	f.previewMu.Lock()
	var hadPlaying bool
	for ref := range f.previewCache {
		if ref.Player == player {
			if ref.IsPlaying() {
				hadPlaying = true
			}
			delete(f.previewCache, ref)
		}
	}
	f.previewMu.Unlock()
	if hadPlaying {
		f.dispatchPreview(player, nil)
	}

	f.detailMu.Lock()
	hadPlaying = false
	for ref := range f.detailCache {
		if ref.Player == player {
			if ref.IsPlaying() {
				hadPlaying = true
			}
			delete(f.detailCache, ref)
		}
	}
	f.detailMu.Unlock()
	if hadPlaying {
		f.dispatchDetail(player, nil)
	}
}

// InvalidateSlot is the media-unmount invalidation source: wired by
// callers when a slot's media is removed. Every cache entry whose
// payload came from that slot is dropped.
func (f *Finder) InvalidateSlot(slot types.SlotReference) {
	f.previewMu.Lock()
	var previewDecks []int
	for ref, preview := range f.previewCache {
		if preview != nil && preview.TrackReference.Slot == slot {
			if ref.IsPlaying() {
				previewDecks = append(previewDecks, ref.Player)
			}
			delete(f.previewCache, ref)
		}
	}
	f.previewMu.Unlock()
	for _, player := range previewDecks {
		f.dispatchPreview(player, nil)
	}

	f.detailMu.Lock()
	var detailDecks []int
	for ref, detail := range f.detailCache {
		if detail != nil && detail.TrackReference.Slot == slot {
			if ref.IsPlaying() {
				detailDecks = append(detailDecks, ref.Player)
			}
			delete(f.detailCache, ref)
		}
	}
	f.detailMu.Unlock()
	for _, player := range detailDecks {
		f.dispatchDetail(player, nil)
	}
}

// retryUnanalyzed implements the UNANALYZED retry controller: at most
// one retry is in flight across all players at a time.
func (f *Finder) retryUnanalyzed(update metadata.Update) bool {
	if update.Metadata == nil || update.Metadata.TrackType != types.TrackTypeUnanalyzed {
		return false
	}
	if f.metadataFinder == nil {
		return false
	}
	current := f.metadataFinder.GetLatestMetadataFor(update.Player)
	if current != update.Metadata {
		return false
	}
	if time.Now().UnixNano()-update.Metadata.TimestampNanos > MaximumAnalysisWait.Nanoseconds() {
		return false
	}

	if f.retrying.Swap(true) {
		return true
	}
	go func() {
		time.Sleep(AnalysisUpdateInterval)
		f.retrying.Store(false)
		current := f.metadataFinder.GetLatestMetadataFor(update.Player)
		if current == update.Metadata {
			f.TrackMetadataUpdate(update)
		}
	}()
	return true
}
