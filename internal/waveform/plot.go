package waveform

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ChartRasterizer renders a snapshot as a PNG line plot with go-chart. The x
// axis is seconds relative to the newest sample. Gaps break the trace.
type ChartRasterizer struct{}

// Rasterize implements Rasterizer.
func (ChartRasterizer) Rasterize(w io.Writer, snap Snapshot, width, height int) error {
	series, lo, hi, points := traceSeries(snap, width)
	if points < 2 {
		return drawPlaceholder(w, snap, width, height)
	}

	if lo == hi {
		lo, hi = lo-1, hi+1
	} else {
		pad := (hi - lo) * 0.05
		lo, hi = lo-pad, hi+pad
	}
	span := float64(len(snap.Samples)-1) / snap.SampleRate

	graph := chart.Chart{
		Title:  snap.Key.String() + "  " + snap.End().UTC().Format(time.DateTime) + " UTC",
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: chart.XAxis{
			Range:          &chart.ContinuousRange{Min: -span, Max: 0},
			ValueFormatter: secondsFormatter,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: series,
	}
	return graph.Render(chart.PNG, w)
}

func secondsFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', 1, 64) + "s"
	}
	return ""
}

// traceSeries splits the snapshot into one series per run of defined samples,
// decimated to at most two points per pixel column. It returns the y extremes
// and the number of defined samples.
func traceSeries(snap Snapshot, width int) (series []chart.Series, lo, hi float64, points int) {
	lo, hi = math.Inf(1), math.Inf(-1)
	n := len(snap.Samples)
	per := 1
	if width > 0 && n > 2*width {
		per = n / width
	}
	last := float64(n - 1)

	flush := func(start, end int) {
		xs := make([]float64, 0, end-start)
		ys := make([]float64, 0, end-start)
		for k := start; k < end; k++ {
			xs = append(xs, (float64(k)-last)/snap.SampleRate)
			ys = append(ys, snap.Samples[k])
		}
		xs, ys = decimate(xs, ys, per)
		style := chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 1}
		if len(xs) == 1 {
			style.DotWidth = 2
			style.DotColor = chart.ColorBlue
		}
		series = append(series, chart.ContinuousSeries{XValues: xs, YValues: ys, Style: style})
	}

	start := -1
	for k, v := range snap.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if start >= 0 {
				flush(start, k)
				start = -1
			}
			continue
		}
		points++
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		if start < 0 {
			start = k
		}
	}
	if start >= 0 {
		flush(start, n)
	}
	return series, lo, hi, points
}

// decimate keeps the minimum and maximum of every bucket of per points, in
// their original order.
func decimate(xs, ys []float64, per int) ([]float64, []float64) {
	if per < 3 || len(ys) <= 2 {
		return xs, ys
	}
	outX := make([]float64, 0, 2*(len(ys)/per+1))
	outY := make([]float64, 0, cap(outX))
	for start := 0; start < len(ys); start += per {
		end := min(start+per, len(ys))
		lo, hi := start, start
		for k := start + 1; k < end; k++ {
			if ys[k] < ys[lo] {
				lo = k
			}
			if ys[k] > ys[hi] {
				hi = k
			}
		}
		a, b := min(lo, hi), max(lo, hi)
		outX, outY = append(outX, xs[a]), append(outY, ys[a])
		if b != a {
			outX, outY = append(outX, xs[b]), append(outY, ys[b])
		}
	}
	return outX, outY
}

// drawPlaceholder encodes a blank frame labelled with the channel, used until
// a channel has at least two defined samples to draw.
func drawPlaceholder(w io.Writer, snap Snapshot, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	label := snap.Key.String() + ": awaiting data"
	dr := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: face}
	x := (width - dr.MeasureString(label).Ceil()) / 2
	y := (height + face.Metrics().Ascent.Ceil()) / 2
	dr.Dot = fixed.Point26_6{X: fixed.I(max(x, 4)), Y: fixed.I(y)}
	dr.DrawString(label)

	return png.Encode(w, img)
}
