// Package beat parses DJ Link beat-announcement packets into a
// unified Beat model and runs the UDP listener (C4) that fans them out
// to registered listeners.
package beat

import (
	"encoding/binary"
	"net"
)

const (
	packetLength = 96
	magic        = "Qspt1WmJOL"
	packetType   = 0x28

	offsetDeviceNumber  = 0x21
	offsetNextBeat      = 0x24
	offsetBeat2         = 0x28
	offsetNextBar       = 0x2c
	offsetBeat4         = 0x30
	offsetBar2          = 0x34
	offsetBeat8         = 0x38
	offsetPitch         = 0x55
	offsetBPM           = 0x5a
	offsetBeatWithinBar = 0x5c

	// NominalPitch is the pitch value (u24) corresponding to 0% pitch
	// adjustment, i.e. nominal playback speed.
	NominalPitch uint32 = 0x100000
)

// Beat is a parsed 96-byte beat announcement. Immutable once
// constructed.
type Beat struct {
	DeviceNumber  int
	BPM           int // BPM * 100
	Pitch         uint32
	BeatWithinBar int // 1..4, meaningful only when DeviceNumber < 33

	NextBeat uint32 // ms to next beat
	Beat2    uint32 // ms to 2nd beat
	NextBar  uint32 // ms to next bar
	Beat4    uint32 // ms to 4th beat
	Bar2     uint32 // ms to 2nd bar
	Beat8    uint32 // ms to 8th beat

	Source net.Addr
}

// IsBeatWithinBarMeaningful reports whether BeatWithinBar carries
// meaning for this beat's sender: only true player devices (numbered
// below 33) report bar position; mixers and gateways do not.
func (b Beat) IsBeatWithinBarMeaningful() bool {
	return b.DeviceNumber < 33
}

// EffectiveTempo returns the sender's actual playback tempo in BPM,
// combining the reported nominal BPM with the current pitch
// adjustment: (bpm/100) * (pitch / 0x100000).
func (b Beat) EffectiveTempo() float64 {
	return (float64(b.BPM) / 100.0) * (float64(b.Pitch) / float64(NominalPitch))
}

// Parse attempts to decode data as a beat announcement received from
// source. It returns ok=false (with no error; malformed or foreign
// packets are simply not beats) unless the packet is exactly 96 bytes,
// begins with the fixed magic, and has the beat packet type byte at
// offset 0x0a.
func Parse(data []byte, source net.Addr) (Beat, bool) {
	if len(data) != packetLength {
		return Beat{}, false
	}
	if string(data[0:10]) != magic {
		return Beat{}, false
	}
	if data[0x0a] != packetType {
		return Beat{}, false
	}

	pitch := uint32(data[offsetPitch])<<16 | uint32(data[offsetPitch+1])<<8 | uint32(data[offsetPitch+2])

	return Beat{
		DeviceNumber:  int(data[offsetDeviceNumber]),
		BPM:           int(binary.BigEndian.Uint16(data[offsetBPM:])),
		Pitch:         pitch,
		BeatWithinBar: int(data[offsetBeatWithinBar]),
		NextBeat:      binary.BigEndian.Uint32(data[offsetNextBeat:]),
		Beat2:         binary.BigEndian.Uint32(data[offsetBeat2:]),
		NextBar:       binary.BigEndian.Uint32(data[offsetNextBar:]),
		Beat4:         binary.BigEndian.Uint32(data[offsetBeat4:]),
		Bar2:          binary.BigEndian.Uint32(data[offsetBar2:]),
		Beat8:         binary.BigEndian.Uint32(data[offsetBeat8:]),
		Source:        source,
	}, true
}

// PitchToPercent converts a raw pitch value to a +/- percentage
// adjustment from nominal speed.
func PitchToPercent(pitch uint32) float64 {
	return (float64(pitch)/float64(NominalPitch) - 1) * 100
}

// PercentToPitch is the inverse of PitchToPercent.
func PercentToPitch(percent float64) uint32 {
	return uint32((percent/100 + 1) * float64(NominalPitch))
}

// HalfFrameToMillis converts a duration expressed in half-frames
// (1/150 second units, the CDJ's native timecode resolution) to
// milliseconds.
func HalfFrameToMillis(halfFrames int) float64 {
	return float64(halfFrames) * (1000.0 / 150.0)
}

// MillisToHalfFrame is the inverse of HalfFrameToMillis.
func MillisToHalfFrame(ms float64) int {
	return int(ms / (1000.0 / 150.0))
}
