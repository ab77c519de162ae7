package wire

// MessageStart is the fixed number-4 value that opens every message.
const MessageStart uint32 = 0x872349ae

// MaxArguments is the largest argument count a message may carry.
const MaxArguments = 12

// ArgSidecarSize is the fixed width, in bytes, of the argument-tag
// sidecar binary field (one byte per possible argument, zero-padded).
const ArgSidecarSize = 12

// TeardownTransaction and SetupTransaction are the two fixed
// transaction numbers reserved by the handshake and teardown messages;
// all other transactions are assigned from the client's monotonic
// counter.
const (
	SetupTransaction    uint32 = 0xFFFFFFFE
	TeardownTransaction uint32 = 0xFFFFFFFE
)

// GreetingValue is the number-4 value exchanged (in both directions)
// during the connection handshake, before any Message framing begins.
const GreetingValue uint32 = 0x00000001

// MessageType is the closed set of dbserver message types. Values
// outside the known set still round-trip (Message.Type is a plain
// uint16); MessageTypeName reports them as "UNKNOWN".
type MessageType uint16

// Known message types (§6 of the protocol).
const (
	MessageTypeSetupReq       MessageType = 0x0000
	MessageTypeTeardownReq    MessageType = 0x0100
	MessageTypeMenuAvailable  MessageType = 0x4000
	MessageTypeMenuHeader     MessageType = 0x4001
	MessageTypeMenuItem       MessageType = 0x4101
	MessageTypeMenuFooter     MessageType = 0x4201
	MessageTypeRenderMenuReq  MessageType = 0x3000
	MessageTypeSearchMenuReq  MessageType = 0x1300
	MessageTypeTrackInfoReq   MessageType = 0x2002
	MessageTypeWavePreviewReq MessageType = 0x2004
	MessageTypeWaveDetailReq  MessageType = 0x2904
	MessageTypeAnlzTagReq     MessageType = 0x2c04

	// Reply types answering the three requests above.
	MessageTypeWavePreview MessageType = 0x4402
	MessageTypeWaveDetail  MessageType = 0x4a02
	MessageTypeAnlzTag     MessageType = 0x4f02

	// MessageTypeUnavailable is returned in place of a normal reply
	// when the player has nothing to offer for the request (e.g. an
	// ANLZ tag the track's analysis file doesn't carry).
	MessageTypeUnavailable MessageType = 0x4003
)

// ANLZ tag-type and file-extension constants used by ANLZ_TAG_REQ to
// select which waveform rendering an analysis file tag carries.
const (
	AnlzFileTagColorWaveformPreview     uint32 = 0x0003
	AnlzFileTagColorWaveformDetail      uint32 = 0x0004
	AnlzFileTagThreeBandWaveformPreview uint32 = 0x0005
	AnlzFileTagThreeBandWaveformDetail  uint32 = 0x0006

	// AnlzFileExtensionEXT and AnlzFileExtension2EX select which ANLZ
	// sidecar file (.EXT for color, .2EX for 3-band) a tag is read from.
	AnlzFileExtensionEXT uint32 = 0
	AnlzFileExtension2EX uint32 = 1
)

// messageTypeNames maps the known message types to a human name; any
// type absent from this table is reported as "UNKNOWN" by
// MessageTypeName, per the closed-enum-with-UNKNOWN rule for values
// read off the wire.
var messageTypeNames = map[MessageType]string{
	MessageTypeSetupReq:       "SETUP_REQ",
	MessageTypeTeardownReq:    "TEARDOWN_REQ",
	MessageTypeMenuAvailable:  "MENU_AVAILABLE",
	MessageTypeMenuHeader:     "MENU_HEADER",
	MessageTypeMenuItem:       "MENU_ITEM",
	MessageTypeMenuFooter:     "MENU_FOOTER",
	MessageTypeRenderMenuReq:  "RENDER_MENU_REQ",
	MessageTypeSearchMenuReq:  "SEARCH_MENU",
	MessageTypeTrackInfoReq:   "REKORDBOX_METADATA_REQ",
	MessageTypeWavePreviewReq: "WAVE_PREVIEW_REQ",
	MessageTypeWaveDetailReq:  "WAVE_DETAIL_REQ",
	MessageTypeAnlzTagReq:     "ANLZ_TAG_REQ",
	MessageTypeWavePreview:    "WAVE_PREVIEW",
	MessageTypeWaveDetail:     "WAVE_DETAIL",
	MessageTypeAnlzTag:        "ANLZ_TAG",
	MessageTypeUnavailable:    "UNAVAILABLE",
}

// MessageTypeName returns the known name for t, or "UNKNOWN" if t is
// not one of the closed set of recognized message types.
func MessageTypeName(t MessageType) string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// NoMenuResultsAvailable is the sentinel availability count meaning
// "zero items; do not render."
const NoMenuResultsAvailable uint32 = 0xffffffff

// MenuBatchSize is the default number of items requested per
// RENDER_MENU_REQ round trip during pagination.
const MenuBatchSize = 64

// MenuItemType is the closed set of menu-item kinds a MENU_ITEM message
// can carry, discriminated by a numeric "item type" argument. Any value
// outside the known set is retained numerically and reported as
// MenuItemTypeName(t) == "UNKNOWN" at the item-kind layer, never
// dropped.
type MenuItemType int

// The closed set of known menu-item types this runtime interprets when
// assembling TrackMetadata.
const (
	MenuItemTitle          MenuItemType = 0x01
	MenuItemArtist         MenuItemType = 0x02
	MenuItemAlbumTitle     MenuItemType = 0x03
	MenuItemGenre          MenuItemType = 0x04
	MenuItemLabel          MenuItemType = 0x05
	MenuItemKey            MenuItemType = 0x06
	MenuItemColor          MenuItemType = 0x07
	MenuItemComment        MenuItemType = 0x08
	MenuItemDateAdded      MenuItemType = 0x09
	MenuItemOriginalArtist MenuItemType = 0x0a
	MenuItemRemixer        MenuItemType = 0x0b
	MenuItemDuration       MenuItemType = 0x0c
	MenuItemTempo          MenuItemType = 0x0d
	MenuItemRating         MenuItemType = 0x0e
	MenuItemYear           MenuItemType = 0x0f
	MenuItemBitRate        MenuItemType = 0x10
	MenuItemArtworkID      MenuItemType = 0x11
	MenuItemCueAndLoop     MenuItemType = 0x12
)

var menuItemTypeNames = map[MenuItemType]string{
	MenuItemTitle:          "TITLE",
	MenuItemArtist:         "ARTIST",
	MenuItemAlbumTitle:     "ALBUM_TITLE",
	MenuItemGenre:          "GENRE",
	MenuItemLabel:          "LABEL",
	MenuItemKey:            "KEY",
	MenuItemColor:          "COLOR",
	MenuItemComment:        "COMMENT",
	MenuItemDateAdded:      "DATE_ADDED",
	MenuItemOriginalArtist: "ORIGINAL_ARTIST",
	MenuItemRemixer:        "REMIXER",
	MenuItemDuration:       "DURATION",
	MenuItemTempo:          "TEMPO",
	MenuItemRating:         "RATING",
	MenuItemYear:           "YEAR",
	MenuItemBitRate:        "BIT_RATE",
	MenuItemArtworkID:      "ARTWORK_ID",
	MenuItemCueAndLoop:     "CUE_AND_LOOP",
}

// MenuItemTypeName returns the known name for t, or "UNKNOWN" if t is
// not one of the closed set of recognized menu-item types.
func MenuItemTypeName(t MenuItemType) string {
	if name, ok := menuItemTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// MenuItemTypeArgIndex is the argument position within a MENU_ITEM
// message's argument list that carries its MenuItemType discriminant.
const MenuItemTypeArgIndex = 6
