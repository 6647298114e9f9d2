package vertexing

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minVariance keeps inverse-variance weights finite for tracks reporting no error.
const minVariance = 1e-8

// Vertex summarises one cluster.
type Vertex struct {
	ID     int
	Z      float64 // inverse-variance weighted mean z
	EZ2    float64 // variance of Z
	Chi2   float64 // sum of (z_i - Z)² / ez2_i over member tracks
	NDof   int     // member tracks minus one
	Tracks []int   // member track indices
}

// Summarize computes a Vertex for every cluster of res, indexed by cluster id.
func Summarize(tracks []Track, res *Result) []Vertex {
	if res == nil || res.Count == 0 {
		return nil
	}
	members := res.Members()
	vertices := make([]Vertex, res.Count)
	for id, idx := range members {
		z := make([]float64, len(idx))
		w := make([]float64, len(idx))
		for k, i := range idx {
			z[k] = float64(tracks[i].Z)
			ez2 := float64(tracks[i].EZ2)
			if ez2 < minVariance {
				ez2 = minVariance
			}
			w[k] = 1 / ez2
		}
		v := Vertex{ID: id, Tracks: idx, NDof: len(idx) - 1}
		if len(idx) > 0 {
			v.Z = stat.Mean(z, w)
			v.EZ2 = 1 / floats.Sum(w)
			for k := range z {
				d := z[k] - v.Z
				v.Chi2 += d * d * w[k]
			}
		}
		vertices[id] = v
	}
	return vertices
}
