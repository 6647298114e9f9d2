// Package events produces the track collections that the vertex finder
// clusters. The real detector pipeline is out of scope; the generator
// stands in for it with a simple beam-spot model.
package events

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

// Event is one collision: the reconstructed tracks and, for synthetic
// events, the generated vertex positions.
type Event struct {
	ID       int
	Tracks   []vertexing.Track
	TrueZ    []float64 // generated vertex z, one per pile-up vertex
	TrueFrom []int     // generated vertex of every track, -1 for fakes
}

// GeneratorConfig describes the synthetic beam-spot model.
type GeneratorConfig struct {
	Seed            uint64
	MeanVertices    float64 // Poisson mean of pile-up vertices per event
	MeanTracks      float64 // Poisson mean of tracks per vertex
	BeamSpotSigmaZ  float64 // Gaussian width of vertex z (cm)
	MinTrackError   float64 // Smallest track z error (cm)
	MaxTrackError   float64 // Largest track z error (cm)
	FakeTrackFrac   float64 // Fraction of extra tracks spread uniformly in z
	FakeTrackRangeZ float64 // Half-width of the fake track z range (cm)
}

// DefaultGeneratorConfig returns a configuration resembling high pile-up
// conditions.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:            1,
		MeanVertices:    50,
		MeanTracks:      12,
		BeamSpotSigmaZ:  3.5,
		MinTrackError:   0.002,
		MaxTrackError:   0.02,
		FakeTrackFrac:   0.05,
		FakeTrackRangeZ: 15,
	}
}

// Validate checks the configuration.
func (c GeneratorConfig) Validate() error {
	if c.MeanVertices <= 0 || c.MeanTracks <= 0 {
		return fmt.Errorf("mean vertices and tracks must be positive, got %g and %g", c.MeanVertices, c.MeanTracks)
	}
	if c.BeamSpotSigmaZ <= 0 {
		return fmt.Errorf("beam spot sigma must be positive, got %g", c.BeamSpotSigmaZ)
	}
	if c.MinTrackError <= 0 || c.MaxTrackError < c.MinTrackError {
		return fmt.Errorf("invalid track error range [%g, %g]", c.MinTrackError, c.MaxTrackError)
	}
	if c.FakeTrackFrac < 0 || c.FakeTrackFrac > 1 {
		return fmt.Errorf("fake track fraction must be between 0 and 1, got %g", c.FakeTrackFrac)
	}
	return nil
}

// Generator builds synthetic events. Every event is derived from the seed
// and its own id only, so events are reproducible in any order and from any
// goroutine.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a Generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	return &Generator{cfg: cfg}, nil
}

// Event builds the event with the given id.
func (g *Generator) Event(id int) Event {
	src := rand.NewPCG(g.cfg.Seed, uint64(id))
	nVertices := distuv.Poisson{Lambda: g.cfg.MeanVertices, Src: src}
	nTracks := distuv.Poisson{Lambda: g.cfg.MeanTracks, Src: src}
	vertexZ := distuv.Normal{Mu: 0, Sigma: g.cfg.BeamSpotSigmaZ, Src: src}
	trackErr := distuv.Uniform{Min: g.cfg.MinTrackError, Max: g.cfg.MaxTrackError, Src: src}
	fakeZ := distuv.Uniform{Min: -g.cfg.FakeTrackRangeZ, Max: g.cfg.FakeTrackRangeZ, Src: src}

	ev := Event{ID: id}
	nv := int(nVertices.Rand())
	for v := 0; v < nv; v++ {
		z := vertexZ.Rand()
		ev.TrueZ = append(ev.TrueZ, z)
		nt := int(nTracks.Rand())
		for k := 0; k < nt; k++ {
			ez := trackErr.Rand()
			smear := distuv.Normal{Mu: z, Sigma: ez, Src: src}
			ev.add(vertexing.Track{Z: float32(smear.Rand()), EZ2: float32(ez * ez)}, v)
		}
	}

	nFake := int(g.cfg.FakeTrackFrac * float64(len(ev.Tracks)))
	for k := 0; k < nFake; k++ {
		ez := trackErr.Rand()
		ev.add(vertexing.Track{Z: float32(fakeZ.Rand()), EZ2: float32(ez * ez)}, -1)
	}

	// The clusterer must not depend on generation order.
	r := rand.New(src)
	r.Shuffle(len(ev.Tracks), func(a, b int) {
		ev.Tracks[a], ev.Tracks[b] = ev.Tracks[b], ev.Tracks[a]
		ev.TrueFrom[a], ev.TrueFrom[b] = ev.TrueFrom[b], ev.TrueFrom[a]
	})

	if len(ev.Tracks) > vertexing.MaxTracks {
		ev.Tracks = ev.Tracks[:vertexing.MaxTracks]
		ev.TrueFrom = ev.TrueFrom[:vertexing.MaxTracks]
	}
	return ev
}

func (ev *Event) add(t vertexing.Track, from int) {
	ev.Tracks = append(ev.Tracks, t)
	ev.TrueFrom = append(ev.TrueFrom, from)
}

// Source hands out events in id order. It is safe for concurrent use.
type Source interface {
	// Next returns the next event, or false once the source is exhausted.
	Next() (Event, bool)
}
