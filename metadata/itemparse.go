package metadata

import (
	"github.com/nxslink/beatlink/dbserver"
	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/wire"
)

// itemValueIndex is the argument position within a MENU_ITEM's
// argument list that carries its primary display value (the field the
// original format string renders first).
const itemValueIndex = 3

func itemString(item dbserver.MenuItem) string {
	if len(item.Arguments) <= itemValueIndex {
		return ""
	}
	s, err := wire.AsString(item.Arguments[itemValueIndex])
	if err != nil {
		return ""
	}
	return s
}

func itemNumber(item dbserver.MenuItem, index int) int {
	if len(item.Arguments) <= index {
		return 0
	}
	n, err := wire.AsNumber(item.Arguments[index])
	if err != nil {
		return 0
	}
	return int(n)
}

// BuildTrackMetadata assembles a TrackMetadata from the menu items
// returned by a track-info render, one case per known menu item type.
//
// REMIXER and ALBUM_TITLE are deliberately independent cases: an
// earlier implementation let REMIXER fall through into the
// ALBUM_TITLE case, silently clobbering the album field whenever a
// track had a remixer tag. Every case here terminates on its own.
func BuildTrackMetadata(ref types.DataReference, items []dbserver.MenuItem, nowNanos int64) *TrackMetadata {
	md := &TrackMetadata{
		TrackReference: ref,
		TrackType:      ref.TrackType,
		TimestampNanos: nowNanos,
	}

	for _, item := range items {
		switch item.Type {
		case wire.MenuItemTitle:
			md.Title = itemString(item)
		case wire.MenuItemArtist:
			md.Artist = itemString(item)
		case wire.MenuItemAlbumTitle:
			md.Album = itemString(item)
		case wire.MenuItemGenre:
			md.Genre = itemString(item)
		case wire.MenuItemLabel:
			md.Label = itemString(item)
		case wire.MenuItemKey:
			md.Key = itemString(item)
		case wire.MenuItemColor:
			md.Color = itemNumber(item, itemValueIndex)
		case wire.MenuItemComment:
			md.Comment = itemString(item)
		case wire.MenuItemDateAdded:
			md.DateAdded = itemString(item)
		case wire.MenuItemOriginalArtist:
			md.OriginalArtist = itemString(item)
		case wire.MenuItemRemixer:
			md.Remixer = itemString(item)
		case wire.MenuItemDuration:
			md.Duration = itemNumber(item, itemValueIndex)
		case wire.MenuItemTempo:
			md.Tempo = float64(itemNumber(item, itemValueIndex)) / 100.0
		case wire.MenuItemRating:
			md.Rating = itemNumber(item, itemValueIndex)
		case wire.MenuItemYear:
			md.Year = itemNumber(item, itemValueIndex)
		case wire.MenuItemBitRate:
			md.BitRate = itemNumber(item, itemValueIndex)
		case wire.MenuItemArtworkID:
			md.ArtworkID = itemNumber(item, itemValueIndex)
		case wire.MenuItemCueAndLoop:
			md.CueList = appendCue(md.CueList, item)
		}
	}

	return md
}

func appendCue(list *CueList, item dbserver.MenuItem) *CueList {
	if list == nil {
		list = &CueList{}
	}
	list.Cues = append(list.Cues, Cue{
		HotCueNumber: itemNumber(item, 0),
		PositionMs:   int64(itemNumber(item, 1)),
		Type:         wire.MenuItemTypeName(item.Type),
		Color:        itemNumber(item, 2),
		Comment:      itemString(item),
	})
	return list
}
