package waveform

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testKey() ChannelKey {
	return ChannelKey{Station: "ANMO", Channel: "BHZ", Network: "IU", Location: "00"}
}

// packet builds a packet for testKey at rate Hz starting offset samples after t0.
func packet(rate float64, offset int, samples ...float64) Packet {
	k := testKey()
	return Packet{
		Station:    k.Station,
		Channel:    k.Channel,
		Network:    k.Network,
		Location:   k.Location,
		SampleRate: rate,
		Start:      t0.Add(sampleOffset(offset, rate)),
		Samples:    samples,
	}
}

func ramp(from, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(from + i)
	}
	return out
}

func mustBuffer(t *testing.T, p Packet, window time.Duration) *ChannelBuffer {
	t.Helper()
	if err := p.Validate(); err != nil {
		t.Fatalf("seed packet: %v", err)
	}
	return NewChannelBuffer(p, window)
}

func assertSamples(t *testing.T, got []float64, want ...float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len: got %d (%v), want %d (%v)", len(got), got, len(want), want)
	}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("sample %d: got %v, want NaN", i, got[i])
			}
			continue
		}
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestChannelBuffer_Append_contiguous(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3), time.Minute)
	if err := b.Append(packet(10, 3, 4, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	snap := b.Snapshot()
	assertSamples(t, snap.Samples, 1, 2, 3, 4, 5)
	if !snap.Start.Equal(t0) {
		t.Errorf("start: got %v, want %v", snap.Start, t0)
	}
	if want := t0.Add(400 * time.Millisecond); !snap.End().Equal(want) {
		t.Errorf("end: got %v, want %v", snap.End(), want)
	}
}

func TestChannelBuffer_Append_contiguity_boundary(t *testing.T) {
	nan := math.NaN()
	// last buffered sample sits at 200ms; the period is 100ms
	cases := []struct {
		name  string
		after time.Duration // start of the new packet after the last sample
		want  []float64
	}{
		{"exactly_one_period", 100 * time.Millisecond, []float64{1, 2, 3, 4}},
		{"early_jitter", 70 * time.Millisecond, []float64{1, 2, 3, 4}},
		{"just_after_last", 10 * time.Millisecond, []float64{1, 2, 3, 4}},
		{"late_jitter_is_gap", 140 * time.Millisecond, []float64{1, 2, 3, nan, 4}},
		{"one_missing_sample", 200 * time.Millisecond, []float64{1, 2, 3, nan, 4}},
		{"same_time_as_last", 0, []float64{1, 2, 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := mustBuffer(t, packet(10, 0, 1, 2, 3), time.Minute)
			p := packet(10, 2, 4)
			p.Start = p.Start.Add(tc.after)
			if err := b.Append(p); err != nil {
				t.Fatal(err)
			}
			assertSamples(t, b.Snapshot().Samples, tc.want...)
		})
	}
}

func TestChannelBuffer_Append_overlap_newest_wins(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3, 4, 5), time.Minute)
	before := b.Snapshot()
	assertSamples(t, before.Samples, 1, 2, 3, 4, 5)

	if err := b.Append(packet(10, 3, 40, 50, 60, 70)); err != nil {
		t.Fatal(err)
	}
	after := b.Snapshot()
	assertSamples(t, after.Samples, 1, 2, 3, 40, 50, 60, 70)
	if !after.Start.Equal(before.Start) {
		t.Errorf("overlap moved start: %v -> %v", before.Start, after.Start)
	}
}

func TestChannelBuffer_Append_overlap_inside(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3, 4, 5), time.Minute)
	if err := b.Append(packet(10, 1, 20, 30)); err != nil {
		t.Fatal(err)
	}
	assertSamples(t, b.Snapshot().Samples, 1, 20, 30, 4, 5)
}

func TestChannelBuffer_Append_gap_is_masked(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3), time.Minute)
	// next expected sample is index 3; this one starts at 7: four missing
	if err := b.Append(packet(10, 7, 8, 9)); err != nil {
		t.Fatal(err)
	}
	snap := b.Snapshot()
	nan := math.NaN()
	assertSamples(t, snap.Samples, 1, 2, 3, nan, nan, nan, nan, 8, 9)
	if snap.Gaps() != 4 {
		t.Errorf("Gaps: got %d, want 4", snap.Gaps())
	}
	if want := t0.Add(800 * time.Millisecond); !snap.End().Equal(want) {
		t.Errorf("end should reflect true elapsed time: got %v, want %v", snap.End(), want)
	}
}

func TestChannelBuffer_Append_earlier_packet_prepends(t *testing.T) {
	b := mustBuffer(t, packet(10, 10, 10, 11, 12), time.Minute)
	if err := b.Append(packet(10, 6, 6, 7)); err != nil {
		t.Fatal(err)
	}
	snap := b.Snapshot()
	nan := math.NaN()
	assertSamples(t, snap.Samples, 6, 7, nan, nan, 10, 11, 12)
	if want := t0.Add(600 * time.Millisecond); !snap.Start.Equal(want) {
		t.Errorf("start: got %v, want %v", snap.Start, want)
	}
}

func TestChannelBuffer_window_trim(t *testing.T) {
	// 10 Hz, 1 s window => 10 samples
	b := mustBuffer(t, packet(10, 0, ramp(0, 4)...), time.Second)
	for off := 4; off < 40; off += 4 {
		if err := b.Append(packet(10, off, ramp(off, 4)...)); err != nil {
			t.Fatal(err)
		}
		if b.Len() > b.Capacity() {
			t.Fatalf("after offset %d: len %d exceeds capacity %d", off, b.Len(), b.Capacity())
		}
	}
	snap := b.Snapshot()
	assertSamples(t, snap.Samples, ramp(30, 10)...)
	if want := t0.Add(3 * time.Second); !snap.Start.Equal(want) {
		t.Errorf("start: got %v, want %v", snap.Start, want)
	}
}

func TestChannelBuffer_first_packet_longer_than_window(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, ramp(0, 25)...), time.Second)
	snap := b.Snapshot()
	assertSamples(t, snap.Samples, ramp(15, 10)...)
	if want := t0.Add(1500 * time.Millisecond); !snap.Start.Equal(want) {
		t.Errorf("start: got %v, want %v", snap.Start, want)
	}
}

func TestChannelBuffer_Append_evicted_packet_is_noop(t *testing.T) {
	b := mustBuffer(t, packet(10, 100, ramp(100, 10)...), time.Second)
	before := b.Snapshot()

	if err := b.Append(packet(10, 0, 1, 2, 3)); err != nil {
		t.Fatalf("evicted packet should be accepted: %v", err)
	}
	after := b.Snapshot()
	if !after.Start.Equal(before.Start) || !after.End().Equal(before.End()) {
		t.Errorf("boundaries changed: [%v, %v] -> [%v, %v]", before.Start, before.End(), after.Start, after.End())
	}
	assertSamples(t, after.Samples, before.Samples...)
}

func TestChannelBuffer_Append_gap_longer_than_window_resets(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3), time.Second)
	if err := b.Append(packet(10, 36000, 7, 8)); err != nil {
		t.Fatal(err)
	}
	snap := b.Snapshot()
	assertSamples(t, snap.Samples, 7, 8)
	if want := t0.Add(time.Hour); !snap.Start.Equal(want) {
		t.Errorf("start: got %v, want %v", snap.Start, want)
	}
}

func TestChannelBuffer_Append_incompatible_rate(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3), time.Minute)
	err := b.Append(packet(20, 6, 4, 5))
	if !errors.Is(err, ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
	assertSamples(t, b.Snapshot().Samples, 1, 2, 3)
}

func TestChannelBuffer_Snapshot_is_a_copy(t *testing.T) {
	b := mustBuffer(t, packet(10, 0, 1, 2, 3), time.Minute)
	snap := b.Snapshot()
	snap.Samples[0] = 99
	assertSamples(t, b.Snapshot().Samples, 1, 2, 3)
}

func TestChannelKey_String_Parse(t *testing.T) {
	cases := []ChannelKey{
		testKey(),
		{Station: "HOLY", Channel: "EHZ", Network: "PR", Location: ""},
	}
	for _, k := range cases {
		got, err := ParseChannelKey(k.String())
		if err != nil {
			t.Fatalf("ParseChannelKey(%q): %v", k.String(), err)
		}
		if got != k {
			t.Errorf("round trip: got %+v, want %+v", got, k)
		}
	}
	for _, bad := range []string{"", "ANMO", "ANMO.BHZ.IU", ".BHZ.IU.00", "A.B.C.D.E"} {
		if _, err := ParseChannelKey(bad); err == nil {
			t.Errorf("ParseChannelKey(%q): expected error", bad)
		}
	}
}
