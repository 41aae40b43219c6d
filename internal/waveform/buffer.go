package waveform

import (
	"fmt"
	"math"
	"time"
)

// rateTolerance is the relative sample rate difference still treated as equal.
const rateTolerance = 1e-6

// Grid placement thresholds, in sample periods. A packet starting at most
// gapThreshold after the last buffered sample is contiguous; a later start
// leaves at least one masked sample. gridEpsilon absorbs float error in the
// position computed from timestamps.
const (
	gapThreshold = 1.0
	gridEpsilon  = 1e-6
)

// ChannelBuffer holds the most recent window of one channel's samples on a
// fixed sample grid. Sample index k is at origin + k/rate; samples[0] sits at
// grid index first. Masked samples (gaps) are NaN.
//
// ChannelBuffer is not safe for concurrent use and expects packets that
// passed Packet.Validate; Manager serializes access and validates.
type ChannelBuffer struct {
	key      ChannelKey
	rate     float64
	origin   time.Time
	first    int
	samples  []float64
	capacity int
}

// NewChannelBuffer creates a buffer holding at most window worth of samples at
// the packet's rate and seeds it with the packet.
func NewChannelBuffer(p Packet, window time.Duration) *ChannelBuffer {
	capacity := int(math.Round(window.Seconds() * p.SampleRate))
	if capacity < 1 {
		capacity = 1
	}
	b := &ChannelBuffer{
		key:      p.Key(),
		rate:     p.SampleRate,
		origin:   p.Start,
		capacity: capacity,
		samples:  make([]float64, 0, min(len(p.Samples), capacity)),
	}
	b.merge(0, p.Samples)
	return b
}

// Append merges p into the series: contiguous packets extend it, overlapping
// packets overwrite the overlapped samples (newest wins) and gaps are filled
// with NaN so the time axis keeps the true elapsed time. The series is then
// trimmed to the window ending at the latest sample.
//
// A packet starting after the last sample but within gapThreshold of it is
// appended directly. A later start is snapped to the nearest grid index but
// never closer than one masked sample; an earlier start is snapped to the
// nearest grid index and overlaps.
func (b *ChannelBuffer) Append(p Packet) error {
	if math.Abs(p.SampleRate-b.rate) > rateTolerance*b.rate {
		return fmt.Errorf("%w: %s established at %g Hz, packet at %g Hz", ErrIncompatible, b.key, b.rate, p.SampleRate)
	}
	n := len(b.samples)
	pos := p.Start.Sub(b.origin).Seconds()*b.rate - float64(b.first)
	i := int(math.Round(pos))
	switch d := pos - float64(n-1); {
	case d > gapThreshold+gridEpsilon:
		i = max(i, n+1)
	case d > gridEpsilon:
		i = n
	}
	b.merge(i, p.Samples)
	return nil
}

// merge writes data at position i relative to samples[0].
func (b *ChannelBuffer) merge(i int, data []float64) {
	n := len(b.samples)
	end := max(n, i+len(data))
	lo := max(end-b.capacity, min(0, i))

	// Drop the part of the packet that would be evicted anyway.
	if i < lo {
		skip := lo - i
		if skip >= len(data) {
			return
		}
		data = data[skip:]
		i = lo
	}

	// Nothing of the current series survives: restart at the packet.
	if lo >= n {
		b.first += i
		b.samples = append(b.samples[:0], data...)
		return
	}

	if i < 0 {
		pad := -i
		grown := make([]float64, pad+n, pad+n+len(data))
		for k := 0; k < pad; k++ {
			grown[k] = math.NaN()
		}
		copy(grown[pad:], b.samples)
		b.samples = grown
		b.first -= pad
		i = 0
	}

	for len(b.samples) < i {
		b.samples = append(b.samples, math.NaN())
	}
	if tail := i + len(data) - len(b.samples); tail > 0 {
		b.samples = append(b.samples, data[len(data)-tail:]...)
		data = data[:len(data)-tail]
	}
	copy(b.samples[i:], data)

	b.trim()
}

// trim evicts samples older than the window ending at the latest sample.
func (b *ChannelBuffer) trim() {
	if drop := len(b.samples) - b.capacity; drop > 0 {
		b.samples = b.samples[drop:]
		b.first += drop
	}
}

// Key returns the channel key.
func (b *ChannelBuffer) Key() ChannelKey { return b.key }

// SampleRate returns the rate fixed by the first packet.
func (b *ChannelBuffer) SampleRate() float64 { return b.rate }

// Capacity is the maximum number of retained samples.
func (b *ChannelBuffer) Capacity() int { return b.capacity }

// Len is the number of retained samples, gaps included.
func (b *ChannelBuffer) Len() int { return len(b.samples) }

// Start returns the time of the oldest retained sample.
func (b *ChannelBuffer) Start() time.Time {
	return b.origin.Add(sampleOffset(b.first, b.rate))
}

// Snapshot copies the current series.
func (b *ChannelBuffer) Snapshot() Snapshot {
	samples := make([]float64, len(b.samples))
	copy(samples, b.samples)
	return Snapshot{
		Key:        b.key,
		SampleRate: b.rate,
		Start:      b.Start(),
		Samples:    samples,
	}
}
