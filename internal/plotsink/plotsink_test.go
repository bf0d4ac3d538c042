package plotsink

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/measureit/internal/sweep"
)

// fakePublisher is a minimal sweep.Publisher a test can push points through
// directly, without spinning up a real Runner.
type fakePublisher struct {
	ch          chan sweep.Point
	unsubscribe chan string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{ch: make(chan sweep.Point, 16), unsubscribe: make(chan string, 4)}
}

func (p *fakePublisher) Subscribe(mode sweep.SubscriberMode) (string, <-chan sweep.Point) {
	return "sub-1", p.ch
}

func (p *fakePublisher) Unsubscribe(id string) {
	p.unsubscribe <- id
}

func (p *fakePublisher) push(pt sweep.Point) {
	p.ch <- pt
}

type fakeControllable struct {
	state    sweep.State
	stopped  bool
	resumed  bool
	flipped  bool
}

func (f *fakeControllable) Stop()                { f.stopped = true }
func (f *fakeControllable) Resume() error         { f.resumed = true; return nil }
func (f *fakeControllable) FlipDirection() error  { f.flipped = true; return nil }
func (f *fakeControllable) State() sweep.State    { return f.state }

func TestRing_DecimatesOnceSaturated(t *testing.T) {
	r := newRing(4)
	for i := 0; i < 10; i++ {
		r.add(sweep.Point{Sample: sweep.Sample{Setpoints: []float64{float64(i)}}})
	}
	snap := r.snapshot()
	assert.LessOrEqual(t, len(snap), 4)
	// the buffer should still span toward the most recent sample
	assert.Equal(t, float64(9), snap[len(snap)-1].Setpoints[0])
}

func TestRing_BelowCapacityKeepsEverything(t *testing.T) {
	r := newRing(100)
	for i := 0; i < 5; i++ {
		r.add(sweep.Point{Sample: sweep.Sample{Setpoints: []float64{float64(i)}}})
	}
	snap := r.snapshot()
	require.Len(t, snap, 5)
	for i, pt := range snap {
		assert.Equal(t, float64(i), pt.Setpoints[0])
	}
}

func TestPostCommand_EscapeStops(t *testing.T) {
	target := &fakeControllable{state: sweep.StateRunning}
	PostCommand(target, KeyEscape)
	assert.True(t, target.stopped)
}

func TestPostCommand_EnterAlwaysResumes(t *testing.T) {
	target := &fakeControllable{state: sweep.StateRunning}
	PostCommand(target, KeyEnter)
	assert.True(t, target.resumed)
	assert.False(t, target.flipped)
}

func TestPostCommand_SpaceAlwaysFlips(t *testing.T) {
	target := &fakeControllable{state: sweep.StateRunning}
	PostCommand(target, KeySpace)
	assert.True(t, target.flipped)
	assert.False(t, target.resumed)
}

func TestLineSink_RenderHTMLContainsSeriesColumn(t *testing.T) {
	pub := newFakePublisher()
	sink := NewLineSink(pub, []string{"current"}, nil)
	defer sink.Close()

	pub.push(sweep.Point{Timestamp: time.Now(), Sample: sweep.Sample{Setpoints: []float64{0}, Values: []float64{1.5}}})
	pub.push(sweep.Point{Timestamp: time.Now(), Sample: sweep.Sample{Setpoints: []float64{1}, Values: []float64{2.5}}})
	pub.push(sweep.Point{Timestamp: time.Now(), Sample: sweep.Sample{Break: true}})

	time.Sleep(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/line", nil)
	sink.RenderHTML(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "current")
}

func TestLineSink_CloseUnsubscribes(t *testing.T) {
	pub := newFakePublisher()
	sink := NewLineSink(pub, []string{"v"}, nil)
	sink.Close()

	select {
	case id := <-pub.unsubscribe:
		assert.Equal(t, "sub-1", id)
	default:
		t.Fatal("expected Unsubscribe to be called")
	}
}

func TestHeatmapSink_SavePNGWritesFile(t *testing.T) {
	pub := newFakePublisher()
	sink := NewHeatmapSink(pub, 0)
	defer sink.Close()

	pub.push(sweep.Point{Sample: sweep.Sample{Setpoints: []float64{0, 0}, Values: []float64{1}}})
	pub.push(sweep.Point{Sample: sweep.Sample{Setpoints: []float64{0, 1}, Values: []float64{2}}})
	pub.push(sweep.Point{Sample: sweep.Sample{Break: true}})
	pub.push(sweep.Point{Sample: sweep.Sample{Setpoints: []float64{1, 0}, Values: []float64{3}}})
	pub.push(sweep.Point{Sample: sweep.Sample{Break: true}})

	time.Sleep(20 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "grid.png")
	err := sink.SavePNG(path, 6*vg.Inch, 4*vg.Inch)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestHeatmapSink_SavePNGErrorsWithNoRows(t *testing.T) {
	pub := newFakePublisher()
	sink := NewHeatmapSink(pub, 0)
	defer sink.Close()

	path := filepath.Join(t.TempDir(), "grid.png")
	err := sink.SavePNG(path, 6*vg.Inch, 4*vg.Inch)
	assert.Error(t, err)
}
