// Package report collects per-event clustering quantities and renders them
// as histograms, either as PNG files or as an HTML page.
package report

import (
	"net/http"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/violatingcp/pixeltrack-standalone/internal/processor"
)

// DefaultBins is the number of bins of every histogram.
const DefaultBins = 40

// Collector is a processor.Sink accumulating histogram inputs. It is safe
// for concurrent use.
type Collector struct {
	mu               sync.Mutex
	events           int
	verticesPerEvent []float64
	tracksPerVertex  []float64
	vertexZ          []float64
	noiseFraction    []float64
	jobMillis        []float64
}

var _ processor.Sink = (*Collector)(nil)

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Consume records one event.
func (c *Collector) Consume(r *processor.EventResult) error {
	noise := 0
	for i := range r.Result.Assignment {
		if r.Result.IsNoise(i) {
			noise++
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events++
	c.verticesPerEvent = append(c.verticesPerEvent, float64(r.Result.Count))
	for _, v := range r.Vertices {
		c.tracksPerVertex = append(c.tracksPerVertex, float64(len(v.Tracks)))
		c.vertexZ = append(c.vertexZ, v.Z)
	}
	if n := len(r.Result.Assignment); n > 0 {
		c.noiseFraction = append(c.noiseFraction, float64(noise)/float64(n))
	}
	c.jobMillis = append(c.jobMillis, float64(r.Duration.Microseconds())/1000)
	return nil
}

// Events returns the number of consumed events.
func (c *Collector) Events() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// series is one histogram to render.
type series struct {
	name   string // file and chart id
	title  string
	xLabel string
	values []float64
}

// snapshot copies the collected values, each sorted ascending.
func (c *Collector) snapshot() []series {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []series{
		{"vertices_per_event", "Vertices per event", "vertices", c.verticesPerEvent},
		{"tracks_per_vertex", "Tracks per vertex", "tracks", c.tracksPerVertex},
		{"vertex_z", "Vertex z", "z (cm)", c.vertexZ},
		{"noise_fraction", "Noise track fraction", "fraction", c.noiseFraction},
		{"job_time", "Clustering time per event", "time (ms)", c.jobMillis},
	}
	for i := range out {
		vals := append([]float64(nil), out[i].values...)
		sort.Float64s(vals)
		out[i].values = vals
	}
	return out
}

// bin counts sorted values into n equal-width bins and returns the bin
// centres and counts.
func bin(sorted []float64, n int) (centres, counts []float64) {
	if len(sorted) == 0 || n < 1 {
		return nil, nil
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		hi = lo + 1
	}
	// The last divider must lie strictly above the largest value.
	hi += (hi - lo) / float64(n*1000)

	dividers := make([]float64, n+1)
	floats.Span(dividers, lo, hi)
	counts = stat.Histogram(nil, dividers, sorted, nil)
	centres = make([]float64, n)
	for i := range centres {
		centres[i] = (dividers[i] + dividers[i+1]) / 2
	}
	return centres, counts
}

// Handler serves the HTML report.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := c.RenderHTML(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
