package metronome

import "testing"

func TestSnapshotAtStart(t *testing.T) {
	m := New(0, 120)
	snap := m.GetSnapshot(0)
	if snap.Beat != 1 {
		t.Errorf("Beat = %d, want 1", snap.Beat)
	}
	if snap.BeatPhase != 0 {
		t.Errorf("BeatPhase = %v, want 0", snap.BeatPhase)
	}
}

func TestSnapshotMonotonicUnderFixedTempo(t *testing.T) {
	m := New(0, 128)
	lastBeat := 0
	for t0 := int64(0); t0 <= 20000; t0 += 37 {
		snap := m.GetSnapshot(t0)
		if snap.Beat < lastBeat {
			t.Fatalf("beat went backwards at t=%d: %d < %d", t0, snap.Beat, lastBeat)
		}
		if snap.BeatPhase < 0 || snap.BeatPhase >= 1 {
			t.Fatalf("beat phase %v out of [0,1) at t=%d", snap.BeatPhase, t0)
		}
		lastBeat = snap.Beat
	}
}

// TestTempoChangePreservesBeat is scenario S3: start_ms=0, tempo=120.
// At t=2000ms beat=5. SetTempo(60) at t=2000. Then snap(2000).beat==5
// and snap(3000).beat==6.
func TestTempoChangePreservesBeat(t *testing.T) {
	m := New(0, 120)
	before := m.GetSnapshot(2000)
	if before.Beat != 5 {
		t.Fatalf("precondition: beat at t=2000 with tempo 120 = %d, want 5", before.Beat)
	}

	m.SetTempo(2000, 60)

	after := m.GetSnapshot(2000)
	if after.Beat != 5 {
		t.Errorf("beat immediately after SetTempo = %d, want 5", after.Beat)
	}

	later := m.GetSnapshot(3000)
	if later.Beat != 6 {
		t.Errorf("beat 1000ms after SetTempo at 60bpm = %d, want 6", later.Beat)
	}
}

func TestSetTempoIgnoresNonpositive(t *testing.T) {
	m := New(0, 120)
	m.SetTempo(1000, 0)
	m.SetTempo(1000, -5)
	if got := m.Tempo(); got != 120 {
		t.Errorf("Tempo() = %v, want 120 after ignored SetTempo calls", got)
	}
}

func TestSetBeatPhaseClamps(t *testing.T) {
	m := New(0, 120)
	m.SetBeatPhase(1000, 1.5)
	snap := m.GetSnapshot(1000)
	if snap.BeatPhase > 1.0+1e-9 {
		t.Errorf("BeatPhase = %v, want clamped to <= 1", snap.BeatPhase)
	}

	m.SetBeatPhase(1000, -1)
	snap = m.GetSnapshot(1000)
	if snap.BeatPhase < 0 {
		t.Errorf("BeatPhase = %v, want clamped to >= 0", snap.BeatPhase)
	}
}

func TestJumpToBeat(t *testing.T) {
	m := New(0, 120)
	m.JumpToBeat(5000, 1)
	snap := m.GetSnapshot(5000)
	if snap.Beat != 1 {
		t.Errorf("Beat after JumpToBeat(1) = %d, want 1", snap.Beat)
	}

	m.JumpToBeat(0, -3)
	snap = m.GetSnapshot(0)
	if snap.Beat != 1 {
		t.Errorf("JumpToBeat clamps to 1, got beat %d", snap.Beat)
	}
}

func TestAdjustStart(t *testing.T) {
	m := New(1000, 120)
	m.AdjustStart(500)
	if got := m.StartMillis(); got != 1500 {
		t.Errorf("StartMillis() = %d, want 1500", got)
	}
}
