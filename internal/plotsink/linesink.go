package plotsink

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/measureit/internal/sweep"
)

// echartsAssetsHost pins the CDN go-echarts pulls its JS runtime from.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// LineSink renders a running one-axis (or simultaneous) sweep's data stream
// as a live-refreshing ECharts line plot: one line per follow-parameter
// column, x-axis is the first controlled setpoint. A Break sample inserts a
// nil-valued point, ECharts' own convention for a line discontinuity —
// this is what keeps a bidirectional sweep's forward and backward passes
// from being drawn as one continuous line across the turnaround.
// lineSinkCapacity bounds how many points a LineSink keeps in memory; a
// long-running continual sweep decimates past this instead of growing
// without bound.
const lineSinkCapacity = 4000

type LineSink struct {
	pub      sweep.Publisher
	subID    string
	ch       <-chan sweep.Point
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	target   Controllable

	columns []string
	buf     *ring
}

// NewLineSink subscribes to pub in dropping mode and begins buffering
// points for rendering. columns names the follow-set in display order.
func NewLineSink(pub sweep.Publisher, columns []string, target Controllable) *LineSink {
	id, ch := pub.Subscribe(sweep.ModeDropping)
	s := &LineSink{
		pub:     pub,
		subID:   id,
		ch:      ch,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		columns: append([]string(nil), columns...),
		target:  target,
		buf:     newRing(lineSinkCapacity),
	}
	go s.run()
	return s
}

func (s *LineSink) run() {
	defer close(s.done)
	consume(s.ch, s.stop, s.buf.add)
}

// Close unsubscribes from the sweep and stops the consumer goroutine.
func (s *LineSink) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.pub.Unsubscribe(s.subID)
}

// RenderHTML writes the current buffered line chart to w as a standalone
// HTML page, suitable for a live-reloading debug dashboard.
func (s *LineSink) RenderHTML(w http.ResponseWriter, r *http.Request) {
	points := s.buf.snapshot()

	var xLabels []string
	series := make([][]opts.LineData, len(s.columns))
	for _, pt := range points {
		if pt.Break {
			if len(xLabels) == 0 {
				continue // nothing to break yet
			}
			xLabels = append(xLabels, "")
			for i := range series {
				series[i] = append(series[i], opts.LineData{Value: nil})
			}
			continue
		}
		if len(pt.Setpoints) == 0 {
			continue
		}
		xLabels = append(xLabels, fmt.Sprintf("%.4g", pt.Setpoints[0]))
		for i, v := range pt.Values {
			if i >= len(series) {
				break
			}
			series[i] = append(series[i], opts.LineData{Value: v})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sweep Live View", Theme: "dark", Width: "1100px", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Sweep Progress", Subtitle: time.Now().UTC().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "setpoint"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
	)
	line.SetXAxis(xLabels)
	for i, col := range s.columns {
		if i < len(series) {
			line.AddSeries(col, series[i])
		}
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// HandleKey is an HTTP handler the live dashboard's JS posts a keystroke to
// (ESC/ENTER/SPACE), forwarded to the watched sweep via PostCommand.
func (s *LineSink) HandleKey(w http.ResponseWriter, r *http.Request) {
	if s.target == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch r.URL.Query().Get("key") {
	case "Escape":
		PostCommand(s.target, KeyEscape)
	case "Enter":
		PostCommand(s.target, KeyEnter)
	case " ", "Space":
		PostCommand(s.target, KeySpace)
	}
	w.WriteHeader(http.StatusNoContent)
}
