// Package types holds the small reference value types shared by the
// dbserver, metadata, and waveform packages: slot/track/deck
// identifiers that key the caches built on top of the wire protocol.
package types

import "fmt"

// TrackSourceSlot is the logical origin of a loaded track.
type TrackSourceSlot int

// The closed set of known track source slots.
const (
	SlotUnknown TrackSourceSlot = iota
	SlotCollection
	SlotSD
	SlotUSB
	SlotCD
	SlotRekordboxLink
)

func (s TrackSourceSlot) String() string {
	switch s {
	case SlotCollection:
		return "COLLECTION"
	case SlotSD:
		return "SD"
	case SlotUSB:
		return "USB"
	case SlotCD:
		return "CD"
	case SlotRekordboxLink:
		return "RB_LINK"
	default:
		return "UNKNOWN"
	}
}

// TrackType distinguishes how a piece of loaded content was analyzed.
type TrackType int

// The closed set of known track types.
const (
	TrackTypeUnknown TrackType = iota
	TrackTypeRekordbox
	TrackTypeUnanalyzed
	TrackTypeCDDigitalAudio
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeRekordbox:
		return "REKORDBOX"
	case TrackTypeUnanalyzed:
		return "UNANALYZED"
	case TrackTypeCDDigitalAudio:
		return "CD_DIGITAL_AUDIO"
	default:
		return "UNKNOWN"
	}
}

// WaveformStyle selects which rendering of a track's waveform is
// requested from the player.
type WaveformStyle int

// The closed set of waveform styles.
const (
	WaveformStyleBlue WaveformStyle = iota
	WaveformStyleRGB
	WaveformStyleThreeBand
)

func (s WaveformStyle) String() string {
	switch s {
	case WaveformStyleRGB:
		return "RGB"
	case WaveformStyleThreeBand:
		return "THREE_BAND"
	default:
		return "BLUE"
	}
}

// SlotReference identifies a piece of removable (or built-in) media: a
// player number plus the slot it occupies on that player.
type SlotReference struct {
	Player int
	Slot   TrackSourceSlot
}

func (r SlotReference) String() string {
	return fmt.Sprintf("player %d slot %s", r.Player, r.Slot)
}

// DataReference identifies a specific piece of loadable analysis
// content: the slot it lives on, its rekordbox id (0 for
// non-rekordbox content), and its track type.
type DataReference struct {
	Slot        SlotReference
	RekordboxID int
	TrackType   TrackType
}

func (r DataReference) String() string {
	return fmt.Sprintf("%s id %d (%s)", r.Slot, r.RekordboxID, r.TrackType)
}

// DeckReference keys into the per-deck hot caches: a player number
// plus a hot-cue index, where 0 denotes the deck's currently playing
// position rather than a specific hot cue.
type DeckReference struct {
	Player int
	HotCue int
}

// IsPlaying reports whether r refers to a deck's current playing
// position rather than one of its hot cues.
func (r DeckReference) IsPlaying() bool { return r.HotCue == 0 }

func (r DeckReference) String() string {
	if r.IsPlaying() {
		return fmt.Sprintf("player %d (playing)", r.Player)
	}
	return fmt.Sprintf("player %d hot cue %d", r.Player, r.HotCue)
}

// DeckRef is a convenience constructor for the (player, 0) "playing"
// deck reference.
func DeckRef(player int) DeckReference {
	return DeckReference{Player: player}
}
