package vertexing

import (
	"fmt"
	"math"
)

// Capacity and labeling constants.
const (
	// MaxTracks is the histogram capacity: the maximum number of tracks per job.
	MaxTracks = 16000
	// MaxVertices bounds the number of clusters per job. A job must finish with
	// strictly fewer clusters than this.
	MaxVertices = 1024
	// NumBins is the number of 8-bit histogram bins.
	NumBins = 256
	// NoiseID is the public cluster id of tracks that belong to no cluster.
	NoiseID = 9997
	// noiseMark is the labeling-phase encoding of noise; -noiseMark-1 == NoiseID.
	noiseMark = -9998

	// DefaultBinWidth is the z width of one histogram bin in cm.
	DefaultBinWidth = 0.1
	// DefaultMinNeighbors is the default core-point threshold.
	DefaultMinNeighbors = 2
	// DefaultEps is the default neighbourhood distance in cm.
	DefaultEps = 0.07
	// DefaultErrMax is the default maximum z error of a seed in cm.
	DefaultErrMax = 0.01
	// DefaultChi2Max is the default normalised distance cut for edge absorption.
	DefaultChi2Max = 9
)

// Track is the longitudinal projection of one reconstructed track.
type Track struct {
	Z   float32 // z at the beam line (cm)
	EZ2 float32 // variance of Z (cm²)
}

// Params holds the per-job clustering parameters.
type Params struct {
	MinNeighbors int     // Neighbour count needed to be a core point
	Eps          float32 // Max |dz| for two tracks to be neighbours
	ErrMax       float32 // Max sqrt(EZ2) for a track to count neighbours
	Chi2Max      float32 // Max dz²/(ez2_i+ez2_j) when absorbing edge points
	BinWidth     float32 // Histogram bin width; widened to Eps when smaller
	OrderByZ     bool    // Renumber clusters by ascending root z
}

// DefaultParams returns the production clustering parameters.
func DefaultParams() Params {
	return Params{
		MinNeighbors: DefaultMinNeighbors,
		Eps:          DefaultEps,
		ErrMax:       DefaultErrMax,
		Chi2Max:      DefaultChi2Max,
		BinWidth:     DefaultBinWidth,
		OrderByZ:     true,
	}
}

// Validate checks that the parameters can drive a clustering job.
func (p Params) Validate() error {
	if p.MinNeighbors < 0 {
		return fmt.Errorf("min neighbors must be non-negative, got %d", p.MinNeighbors)
	}
	if !(p.Eps > 0) || math.IsInf(float64(p.Eps), 0) {
		return fmt.Errorf("eps must be positive and finite, got %g", p.Eps)
	}
	if p.ErrMax < 0 || math.IsNaN(float64(p.ErrMax)) {
		return fmt.Errorf("errmax must be non-negative, got %g", p.ErrMax)
	}
	if p.Chi2Max < 0 || math.IsNaN(float64(p.Chi2Max)) {
		return fmt.Errorf("chi2max must be non-negative, got %g", p.Chi2Max)
	}
	if p.BinWidth < 0 || math.IsNaN(float64(p.BinWidth)) {
		return fmt.Errorf("bin width must be non-negative, got %g", p.BinWidth)
	}
	return nil
}

// binWidth returns the effective histogram bin width. A ±1 bin query only
// covers the eps neighbourhood when bins are wider than eps.
func (p Params) binWidth() float32 {
	w := p.BinWidth
	if w <= 0 {
		w = DefaultBinWidth
	}
	if w <= p.Eps {
		w = p.Eps * (1 + 1.0/1024)
	}
	return w
}

// BinOf quantizes z into one of NumBins bins of the given width.
func BinOf(z, width float32) uint8 {
	iz := math.Floor(float64(z) / float64(width))
	switch {
	case math.IsNaN(iz):
		iz = 0
	case iz < math.MinInt8:
		iz = math.MinInt8
	case iz > math.MaxInt8:
		iz = math.MaxInt8
	}
	return uint8(int(iz) - math.MinInt8)
}

// Result is the outcome of one clustering job.
type Result struct {
	// Assignment holds one entry per track: a cluster id in [0, Count) or NoiseID.
	Assignment []int32
	// Count is the number of clusters found.
	Count int
	// Neighbors is the neighbour count of every track.
	Neighbors []int32
	// Roots holds, per cluster id, the index of the track that seeded it.
	Roots []int32
}

// IsNoise reports whether track i was left out of every cluster.
func (r *Result) IsNoise(i int) bool {
	return r.Assignment[i] == NoiseID
}

// Members returns the track indices of every cluster, indexed by cluster id.
func (r *Result) Members() [][]int {
	out := make([][]int, r.Count)
	for i, id := range r.Assignment {
		if id == NoiseID {
			continue
		}
		out[id] = append(out[id], i)
	}
	return out
}
