// Package metadata implements the per-deck track metadata cache (C7):
// a cache keyed by player, fed either by pluggable providers (passive
// mode) or by the library's own dbserver requests (active mode), with
// listener fan-out on every update.
package metadata

import "github.com/nxslink/beatlink/types"

// Cue is one hot cue or memory point carried by a track's cue list.
type Cue struct {
	HotCueNumber int
	PositionMs   int64
	Type         string
	Color        int
	Comment      string
}

// CueList is the ordered set of cues/memory points for a track.
type CueList struct {
	Cues []Cue
}

// TrackMetadata is the aggregated result of a metadata request: every
// field the wire protocol's menu-item stream can populate, replaced
// wholesale on update and never mutated in place once published.
type TrackMetadata struct {
	TrackReference types.DataReference
	TrackType      types.TrackType

	Title          string
	Artist         string
	Album          string
	Genre          string
	Label          string
	Key            string
	Color          int
	Comment        string
	DateAdded      string
	OriginalArtist string
	Remixer        string
	Duration       int
	Tempo          float64
	Rating         int
	Year           int
	BitRate        int
	ArtworkID      int

	CueList *CueList

	TimestampNanos int64
}

// MediaDetails describes the media mounted in a player's slot: used to
// invalidate caches on unmount and to report library size/name to
// diagnostics consumers.
type MediaDetails struct {
	Slot       types.SlotReference
	Name       string
	TrackCount int
	TotalBytes int64
	FreeBytes  int64
}

// Update is what MetadataFinder fans out on every change: metadata is
// nil when the deck's track has been unloaded.
type Update struct {
	Player   int
	Metadata *TrackMetadata
}

// Listener receives track metadata updates. Implementations must not
// block; a listener that panics is recovered and logged by Finder, and
// never crashes the dispatching goroutine.
type Listener interface {
	TrackMetadataUpdate(update Update)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(update Update)

// TrackMetadataUpdate implements Listener.
func (f ListenerFunc) TrackMetadataUpdate(update Update) { f(update) }
