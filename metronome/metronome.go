// Package metronome implements the free-running musical-time oracle
// (C2): a lock-free, multi-reader-safe clock defined by a start time,
// a tempo, and a fixed beats-per-bar, from which Snapshots of musical
// position can be taken at any instant.
package metronome

import (
	"math"
	"sync/atomic"
)

// BeatsPerBar is fixed at 4 for the meters this runtime models.
const BeatsPerBar = 4

// Snapshot is an immutable observation of a Metronome at one instant.
type Snapshot struct {
	InstantMillis int64
	StartMillis   int64
	Tempo         float64
	BeatsPerBar   int
	Beat          int
	BeatPhase     float64
}

// Metronome is a free-running musical-time oracle defined by
// (start_ms, tempo, beats_per_bar=4). All operations are safe for
// concurrent use from multiple goroutines: the scalar state is held
// in atomics and read without locking.
type Metronome struct {
	startMillis atomic.Int64
	tempuBits   atomic.Uint64 // tempo, stored as math.Float64bits
}

// New creates a Metronome starting at startMillis with the given
// initial tempo in BPM.
func New(startMillis int64, tempo float64) *Metronome {
	m := &Metronome{}
	m.startMillis.Store(startMillis)
	m.tempuBits.Store(math.Float64bits(tempo))
	return m
}

// Tempo returns the current tempo in BPM.
func (m *Metronome) Tempo() float64 {
	return math.Float64frombits(m.tempuBits.Load())
}

// StartMillis returns the current start-of-beat-1 timestamp.
func (m *Metronome) StartMillis() int64 {
	return m.startMillis.Load()
}

// msPerBeat returns the duration of one beat, in milliseconds, at the
// given tempo.
func msPerBeat(tempo float64) float64 {
	return 60000.0 / tempo
}

// GetSnapshot returns the Metronome's musical position at instantMillis.
func (m *Metronome) GetSnapshot(instantMillis int64) Snapshot {
	tempo := m.Tempo()
	start := m.startMillis.Load()
	beatPos := float64(instantMillis-start)/msPerBeat(tempo) + 1
	beat := int(math.Floor(beatPos))
	if beat < 1 {
		beat = 1
	}
	phase := beatPos - float64(beat)
	if phase < 0 {
		phase = 0
	}
	return Snapshot{
		InstantMillis: instantMillis,
		StartMillis:   start,
		Tempo:         tempo,
		BeatsPerBar:   BeatsPerBar,
		Beat:          beat,
		BeatPhase:     phase,
	}
}

// SetTempo changes the tempo to newTempo, recomputing start_ms so the
// beat number in effect at now is preserved. Nonpositive newTempo is
// ignored.
func (m *Metronome) SetTempo(now int64, newTempo float64) {
	if newTempo <= 0 {
		return
	}
	beat := m.GetSnapshot(now).Beat
	newStart := now - int64(float64(beat-1)*msPerBeat(newTempo))
	m.tempuBits.Store(math.Float64bits(newTempo))
	m.startMillis.Store(newStart)
}

// SetBeatPhase clamps phase to [0,1] and adjusts start_ms so the
// current beat's fractional position becomes phase.
func (m *Metronome) SetBeatPhase(now int64, phase float64) {
	if phase < 0 {
		phase = 0
	}
	if phase > 1 {
		phase = 1
	}
	tempo := m.Tempo()
	beat := m.GetSnapshot(now).Beat
	newStart := now - int64((float64(beat-1)+phase)*msPerBeat(tempo))
	m.startMillis.Store(newStart)
}

// JumpToBeat sets start_ms so that beat (clamped to a minimum of 1)
// is the current beat at now.
func (m *Metronome) JumpToBeat(now int64, beat int) {
	if beat < 1 {
		beat = 1
	}
	tempo := m.Tempo()
	newStart := now - int64(float64(beat-1)*msPerBeat(tempo))
	m.startMillis.Store(newStart)
}

// AdjustStart shifts start_ms by deltaMillis, used for coarse sync
// nudges that do not otherwise change tempo or beat number.
func (m *Metronome) AdjustStart(deltaMillis int64) {
	m.startMillis.Add(deltaMillis)
}
