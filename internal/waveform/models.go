package waveform

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned for packets with empty samples or missing
	// required fields. The packet is dropped.
	ErrMalformed = errors.New("malformed packet")

	// ErrIncompatible is returned when a packet's sample rate disagrees with
	// the rate established for its channel. The buffer is left unchanged.
	ErrIncompatible = errors.New("incompatible sample rate")

	// ErrUnknownChannel is returned when a channel has never received a packet.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrEncodingFailed is returned when the rasterizer cannot produce an image.
	ErrEncodingFailed = errors.New("image encoding failed")

	// ErrInvalidSize is returned for render dimensions outside the allowed range.
	ErrInvalidSize = errors.New("invalid plot size")
)

// ChannelKey identifies one logical sensor channel.
type ChannelKey struct {
	Station  string `json:"station"`
	Channel  string `json:"channel"`
	Network  string `json:"network"`
	Location string `json:"location"`
}

// String returns the dotted form STA.CHA.NET.LOC. An empty location keeps
// its trailing dot.
func (k ChannelKey) String() string {
	return k.Station + "." + k.Channel + "." + k.Network + "." + k.Location
}

// ParseChannelKey is the inverse of ChannelKey.String.
func ParseChannelKey(s string) (ChannelKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" {
		return ChannelKey{}, fmt.Errorf("channel key %q: want STA.CHA.NET.LOC", s)
	}
	return ChannelKey{Station: parts[0], Channel: parts[1], Network: parts[2], Location: parts[3]}, nil
}

// Packet is one arrival unit from the transport.
type Packet struct {
	Station    string
	Channel    string
	Network    string
	Location   string
	SampleRate float64 // Hz
	Start      time.Time
	Samples    []float64
}

// Key derives the packet's channel key.
func (p Packet) Key() ChannelKey {
	return ChannelKey{Station: p.Station, Channel: p.Channel, Network: p.Network, Location: p.Location}
}

// Duration is the time spanned by the packet's samples.
func (p Packet) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return sampleOffset(len(p.Samples), p.SampleRate)
}

// Validate reports ErrMalformed when a required field is missing.
func (p Packet) Validate() error {
	switch {
	case p.Station == "" || p.Channel == "":
		return fmt.Errorf("%w: missing station or channel", ErrMalformed)
	case len(p.Samples) == 0:
		return fmt.Errorf("%w: no samples", ErrMalformed)
	case !(p.SampleRate > 0) || math.IsInf(p.SampleRate, 0):
		return fmt.Errorf("%w: sample rate %v", ErrMalformed, p.SampleRate)
	case p.Start.IsZero():
		return fmt.Errorf("%w: missing start time", ErrMalformed)
	}
	return nil
}

// Snapshot is a point-in-time copy of a channel buffer. Masked (gap) samples
// are NaN.
type Snapshot struct {
	Key        ChannelKey
	SampleRate float64
	Start      time.Time
	Samples    []float64
}

// Delta is the sample period.
func (s Snapshot) Delta() time.Duration {
	return sampleOffset(1, s.SampleRate)
}

// TimeAt returns the absolute time of sample i.
func (s Snapshot) TimeAt(i int) time.Time {
	return s.Start.Add(sampleOffset(i, s.SampleRate))
}

// End returns the time of the last sample.
func (s Snapshot) End() time.Time {
	if len(s.Samples) == 0 {
		return s.Start
	}
	return s.TimeAt(len(s.Samples) - 1)
}

// Duration is the time spanned by the buffered samples, gaps included.
func (s Snapshot) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return sampleOffset(len(s.Samples), s.SampleRate)
}

// Gaps counts masked samples.
func (s Snapshot) Gaps() int {
	n := 0
	for _, v := range s.Samples {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// sampleOffset is the time spanned by n sample periods at rate, rounded to
// the nearest nanosecond.
func sampleOffset(n int, rate float64) time.Duration {
	return time.Duration(math.Round(float64(n) * float64(time.Second) / rate))
}
