package ingest

import (
	"math"
	"time"

	"waveplot/internal/waveform"
)

// Wave is the JSON form of one packet on the wire.
type Wave struct {
	Station  string    `json:"station"`
	Channel  string    `json:"channel"`
	Network  string    `json:"network"`
	Location string    `json:"location"`
	SampRate float64   `json:"samprate"`
	StartT   float64   `json:"startt"` // epoch seconds
	Data     []float64 `json:"data"`
}

// Empty reports the "no packet" sentinel.
func (w Wave) Empty() bool {
	return w.Station == "" && w.Channel == "" && len(w.Data) == 0
}

// Packet converts the wire form. A zero or non-finite startt yields a zero
// start time, which the buffer manager rejects as malformed.
func (w Wave) Packet() waveform.Packet {
	return waveform.Packet{
		Station:    w.Station,
		Channel:    w.Channel,
		Network:    w.Network,
		Location:   w.Location,
		SampleRate: w.SampRate,
		Start:      epochTime(w.StartT),
		Samples:    w.Data,
	}
}

// WaveFromPacket is the inverse of Wave.Packet.
func WaveFromPacket(p waveform.Packet) Wave {
	var startt float64
	if !p.Start.IsZero() {
		startt = float64(p.Start.UnixNano()) / float64(time.Second)
	}
	return Wave{
		Station:  p.Station,
		Channel:  p.Channel,
		Network:  p.Network,
		Location: p.Location,
		SampRate: p.SampleRate,
		StartT:   startt,
		Data:     p.Samples,
	}
}

func epochTime(sec float64) time.Time {
	if sec == 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}
	}
	whole := math.Floor(sec)
	// microsecond resolution: float64 epoch seconds carry no more
	frac := math.Round((sec-whole)*1e6) * 1e3
	return time.Unix(int64(whole), int64(frac)).UTC()
}
