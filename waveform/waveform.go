// Package waveform implements the per-deck waveform preview/detail
// cache (C8): a worker that consumes track metadata updates, fetches
// missing waveform data through the dbserver Client (preferring an
// ANLZ-tag color or three-band rendering, falling back to the legacy
// monochrome request), and fans out cache changes to listeners. It
// depends on metadata.Finder and device.Finder but neither of those
// packages knows this one exists.
package waveform

import (
	"github.com/nxslink/beatlink/types"
)

// Preview is a cached waveform preview: a short, fixed-resolution
// overview of the whole track.
type Preview struct {
	TrackReference types.DataReference
	Style          types.WaveformStyle
	Data           []byte
}

// Detail is a cached waveform detail: a high-resolution rendering
// covering the whole track, used for zoomed-in scrolling views.
type Detail struct {
	TrackReference types.DataReference
	Style          types.WaveformStyle
	Data           []byte
}

// PreviewUpdate is what Finder fans out whenever a deck's preview
// changes; Preview is nil when the deck's preview was cleared.
type PreviewUpdate struct {
	Player  int
	Preview *Preview
}

// DetailUpdate is what Finder fans out whenever a deck's detail
// changes; Detail is nil when the deck's detail was cleared.
type DetailUpdate struct {
	Player int
	Detail *Detail
}

// Listener receives waveform cache changes. Implementations must not
// block; a listener that panics is recovered and logged by Finder.
type Listener interface {
	PreviewChanged(update PreviewUpdate)
	DetailChanged(update DetailUpdate)
}

// Funcs adapts plain functions to Listener; either field may be left
// nil.
type Funcs struct {
	Preview func(PreviewUpdate)
	Detail  func(DetailUpdate)
}

// PreviewChanged implements Listener.
func (f Funcs) PreviewChanged(update PreviewUpdate) {
	if f.Preview != nil {
		f.Preview(update)
	}
}

// DetailChanged implements Listener.
func (f Funcs) DetailChanged(update DetailUpdate) {
	if f.Detail != nil {
		f.Detail(update)
	}
}
