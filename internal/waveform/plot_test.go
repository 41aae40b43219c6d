package waveform

import (
	"bytes"
	"image/png"
	"math"
	"testing"
)

func TestDecimate_keeps_extremes_in_order(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	ys := []float64{0, 5, -3, 1, 2, 2, 9, -1}
	gx, gy := decimate(xs, ys, 4)

	wantX := []float64{1, 2, 6, 7}
	wantY := []float64{5, -3, 9, -1}
	if len(gx) != len(wantX) {
		t.Fatalf("got %v/%v, want %v/%v", gx, gy, wantX, wantY)
	}
	for i := range wantX {
		if gx[i] != wantX[i] || gy[i] != wantY[i] {
			t.Errorf("point %d: got (%v,%v), want (%v,%v)", i, gx[i], gy[i], wantX[i], wantY[i])
		}
	}
}

func TestDecimate_small_bucket_untouched(t *testing.T) {
	xs := []float64{0, 1, 2}
	ys := []float64{3, 1, 2}
	gx, _ := decimate(xs, ys, 2)
	if len(gx) != 3 {
		t.Errorf("expected no decimation, got %v", gx)
	}
}

func TestTraceSeries_splits_on_gaps(t *testing.T) {
	nan := math.NaN()
	snap := Snapshot{Key: testKey(), SampleRate: 10, Start: t0, Samples: []float64{1, 2, nan, nan, 3, nan, 4, 5, 6}}
	series, lo, hi, points := traceSeries(snap, 800)
	if len(series) != 3 {
		t.Errorf("expected 3 runs, got %d", len(series))
	}
	if points != 6 {
		t.Errorf("points: got %d, want 6", points)
	}
	if lo != 1 || hi != 6 {
		t.Errorf("extremes: got [%v,%v], want [1,6]", lo, hi)
	}
}

func TestChartRasterizer_flat_trace(t *testing.T) {
	snap := Snapshot{Key: testKey(), SampleRate: 20, Start: t0, Samples: make([]float64, 200)}
	var buf bytes.Buffer
	if err := (ChartRasterizer{}).Rasterize(&buf, snap, 400, 300); err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	cfg, err := png.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("not a png: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 300 {
		t.Errorf("size: got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestChartRasterizer_gappy_and_decimated(t *testing.T) {
	samples := make([]float64, 6000)
	for i := range samples {
		samples[i] = math.Sin(float64(i) / 30)
		if i > 2000 && i < 2600 {
			samples[i] = math.NaN()
		}
	}
	snap := Snapshot{Key: testKey(), SampleRate: 100, Start: t0, Samples: samples}
	var buf bytes.Buffer
	if err := (ChartRasterizer{}).Rasterize(&buf, snap, 800, 600); err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if _, err := png.DecodeConfig(&buf); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}

func TestChartRasterizer_all_masked_uses_placeholder(t *testing.T) {
	nan := math.NaN()
	snap := Snapshot{Key: testKey(), SampleRate: 10, Start: t0, Samples: []float64{nan, nan}}
	var buf bytes.Buffer
	if err := (ChartRasterizer{}).Rasterize(&buf, snap, 128, 64); err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 64 {
		t.Errorf("size: got %v", b)
	}
}
