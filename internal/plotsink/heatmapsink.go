package plotsink

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/measureit/internal/sweep"
)

// heatmapSinkCapacity bounds the number of outer-axis rows a HeatmapSink
// keeps; a run with more rows than this drops its oldest rows rather than
// growing without bound.
const heatmapSinkCapacity = 500

// HeatmapSink renders a two-axis composed sweep's data stream as a family
// of lines, one per outer setpoint, over the inner axis — the PNG
// equivalent of a 2-D grid snapshot. A row is closed (and a color assigned)
// on each Break sample, matching two_axis's row-per-outer-step protocol.
type HeatmapSink struct {
	pub    sweep.Publisher
	subID  string
	ch     <-chan sweep.Point
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
	column int // index into Values used as the plotted quantity

	mu       sync.Mutex
	rows     []heatmapRow
	current  heatmapRow
	haveOpen bool
}

type heatmapRow struct {
	outer float64
	xs    []float64
	ys    []float64
}

// NewHeatmapSink subscribes to pub in dropping mode. column selects which
// follow-parameter value is plotted against the inner setpoint.
func NewHeatmapSink(pub sweep.Publisher, column int) *HeatmapSink {
	id, ch := pub.Subscribe(sweep.ModeDropping)
	s := &HeatmapSink{
		pub:    pub,
		subID:  id,
		ch:     ch,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		column: column,
	}
	go s.run()
	return s
}

func (s *HeatmapSink) run() {
	defer close(s.done)
	consume(s.ch, s.stop, s.onPoint)
}

func (s *HeatmapSink) onPoint(pt sweep.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pt.Break {
		s.closeRow()
		return
	}
	if len(pt.Setpoints) < 2 || s.column >= len(pt.Values) {
		return
	}
	if !s.haveOpen {
		s.current = heatmapRow{outer: pt.Setpoints[0]}
		s.haveOpen = true
	}
	s.current.xs = append(s.current.xs, pt.Setpoints[1])
	s.current.ys = append(s.current.ys, pt.Values[s.column])
}

func (s *HeatmapSink) closeRow() {
	if !s.haveOpen || len(s.current.xs) == 0 {
		s.haveOpen = false
		return
	}
	s.rows = append(s.rows, s.current)
	if len(s.rows) > heatmapSinkCapacity {
		s.rows = s.rows[len(s.rows)-heatmapSinkCapacity:]
	}
	s.current = heatmapRow{}
	s.haveOpen = false
}

// Close unsubscribes and stops the consumer goroutine.
func (s *HeatmapSink) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	s.pub.Unsubscribe(s.subID)
}

// SavePNG renders every closed row as one line, colored by position in the
// outer-axis sweep, and saves it to path.
func (s *HeatmapSink) SavePNG(path string, width, height vg.Length) error {
	s.mu.Lock()
	rows := make([]heatmapRow, len(s.rows))
	copy(rows, s.rows)
	s.mu.Unlock()

	if len(rows) == 0 {
		return fmt.Errorf("plotsink: no completed rows to plot")
	}

	p := plot.New()
	p.Title.Text = "Sweep Grid"
	p.X.Label.Text = "inner setpoint"
	p.Y.Label.Text = "value"

	colors := generateColors(len(rows))
	for i, row := range rows {
		pts := make(plotter.XYs, len(row.xs))
		for j := range row.xs {
			pts[j] = plotter.XY{X: row.xs[j], Y: row.ys[j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%.4g", row.outer), line)
	}
	p.Legend.Top = true
	p.Legend.Left = false

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("plotsink: create output dir: %w", err)
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("plotsink: save heatmap: %w", err)
	}
	return nil
}

// generateColors builds a palette of n perceptually-spread colors, one per
// outer-axis row, by walking evenly around the HSL hue wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
