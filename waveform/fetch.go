package waveform

import (
	"github.com/nxslink/beatlink/dbserver"
	"github.com/nxslink/beatlink/types"
	"github.com/nxslink/beatlink/wire"
)

// payloadArgIndex is the argument position carrying the raw waveform
// bytes in every WAVE_PREVIEW/WAVE_DETAIL/ANLZ_TAG reply.
const payloadArgIndex = 3

// fetchKind distinguishes the two waveform shapes a request can ask
// for; each has its own ANLZ tag constants, legacy request/reply
// types, and legacy argument shape.
type fetchKind struct {
	anlzColorTag uint32
	anlzBandTag  uint32
	legacyReq    wire.MessageType
	legacyArgs   func(rmst uint32, rekordboxID uint32) []wire.Field
}

var previewKind = fetchKind{
	anlzColorTag: wire.AnlzFileTagColorWaveformPreview,
	anlzBandTag:  wire.AnlzFileTagThreeBandWaveformPreview,
	legacyReq:    wire.MessageTypeWavePreviewReq,
	legacyArgs: func(rmst, rekordboxID uint32) []wire.Field {
		return []wire.Field{
			wire.NewNumberField(4, rmst),
			wire.NewNumberField(2, 1),
			wire.NewNumberField(4, rekordboxID),
			wire.NewNumberField(2, 0),
		}
	},
}

var detailKind = fetchKind{
	anlzColorTag: wire.AnlzFileTagColorWaveformDetail,
	anlzBandTag:  wire.AnlzFileTagThreeBandWaveformDetail,
	legacyReq:    wire.MessageTypeWaveDetailReq,
	legacyArgs: func(rmst, rekordboxID uint32) []wire.Field {
		return []wire.Field{
			wire.NewNumberField(4, rmst),
			wire.NewNumberField(4, rekordboxID),
			wire.NewNumberField(2, 0),
		}
	},
}

// fetchResult is the outcome of a successful ANLZ or legacy request:
// the raw waveform bytes and the style that produced them.
type fetchResult struct {
	data  []byte
	style types.WaveformStyle
}

// usable reports whether a reply carries a non-empty payload and is
// not an explicit UNAVAILABLE — the two conditions the original
// protocol uses to mean "try the next style down."
func usable(reply wire.Message, err error) ([]byte, bool) {
	if err != nil {
		return nil, false
	}
	if reply.Type == wire.MessageTypeUnavailable {
		return nil, false
	}
	if len(reply.Arguments) <= payloadArgIndex {
		return nil, false
	}
	data, err := wire.AsBinary(reply.Arguments[payloadArgIndex])
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// fetchAnlz issues one ANLZ_TAG_REQ for the given tag/extension pair
// and reports whether it produced usable waveform bytes.
func fetchAnlz(client *dbserver.Client, slot types.SlotReference, trackType types.TrackType, rekordboxID int, tag, extension uint32) ([]byte, bool) {
	rmst := dbserver.RMST(slot.Player, dbserver.MenuIDMain, slot.Slot, trackType)
	reply, err := client.SimpleRequest(wire.MessageTypeAnlzTagReq, nil,
		wire.NewNumberField(4, rmst),
		wire.NewNumberField(4, uint32(rekordboxID)),
		wire.NewNumberField(4, tag),
		wire.NewNumberField(4, extension),
	)
	return usable(reply, err)
}

// fetch runs the style-selection fetch logic shared by preview and
// detail requests: the preferred style tries its ANLZ tag first and
// falls back to the legacy BLUE request on UNAVAILABLE or empty data.
func fetch(client *dbserver.Client, kind fetchKind, slot types.SlotReference, trackType types.TrackType, rekordboxID int, preferredStyle types.WaveformStyle) (*fetchResult, error) {
	switch preferredStyle {
	case types.WaveformStyleRGB:
		if data, ok := fetchAnlz(client, slot, trackType, rekordboxID, kind.anlzColorTag, wire.AnlzFileExtensionEXT); ok {
			return &fetchResult{data: data, style: types.WaveformStyleRGB}, nil
		}
	case types.WaveformStyleThreeBand:
		if data, ok := fetchAnlz(client, slot, trackType, rekordboxID, kind.anlzBandTag, wire.AnlzFileExtension2EX); ok {
			return &fetchResult{data: data, style: types.WaveformStyleThreeBand}, nil
		}
	}

	rmst := dbserver.RMST(slot.Player, dbserver.MenuIDData, slot.Slot, trackType)
	reply, err := client.SimpleRequest(kind.legacyReq, nil, kind.legacyArgs(rmst, uint32(rekordboxID))...)
	data, ok := usable(reply, err)
	if !ok {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &fetchResult{data: data, style: types.WaveformStyleBlue}, nil
}

func fetchPreview(client *dbserver.Client, ref types.DataReference, preferredStyle types.WaveformStyle) (*Preview, error) {
	result, err := fetch(client, previewKind, ref.Slot, ref.TrackType, ref.RekordboxID, preferredStyle)
	if err != nil || result == nil {
		return nil, err
	}
	return &Preview{TrackReference: ref, Style: result.style, Data: result.data}, nil
}

func fetchDetail(client *dbserver.Client, ref types.DataReference, preferredStyle types.WaveformStyle) (*Detail, error) {
	result, err := fetch(client, detailKind, ref.Slot, ref.TrackType, ref.RekordboxID, preferredStyle)
	if err != nil || result == nil {
		return nil, err
	}
	return &Detail{TrackReference: ref, Style: result.style, Data: result.data}, nil
}
