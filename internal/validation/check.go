// Package validation verifies clustering results against the properties
// every job must satisfy, independently of how the result was computed.
package validation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

// Check verifies res against tracks and p:
//   - every track has a cluster id in [0, Count) or NoiseID,
//   - the ids in use are exactly 0..Count-1,
//   - neighbour counts match a direct recount,
//   - core tracks are never noise,
//   - the core tracks of one cluster form an eps-connected chain,
//   - clustered non-core tracks lie within eps of a core track of their cluster.
//
// All violations are returned joined together.
func Check(tracks []vertexing.Track, p vertexing.Params, res *vertexing.Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	n := len(tracks)
	if len(res.Assignment) != n || len(res.Neighbors) != n {
		return fmt.Errorf("result sized for %d/%d tracks, want %d", len(res.Assignment), len(res.Neighbors), n)
	}
	if res.Count < 0 || res.Count >= vertexing.MaxVertices {
		return fmt.Errorf("cluster count %d outside [0, %d)", res.Count, vertexing.MaxVertices)
	}

	var errs []error
	used := make([]bool, res.Count)
	for i, id := range res.Assignment {
		switch {
		case id == vertexing.NoiseID:
		case id < 0 || int(id) >= res.Count:
			errs = append(errs, fmt.Errorf("track %d: cluster id %d outside [0, %d)", i, id, res.Count))
		default:
			used[id] = true
		}
	}
	for id, ok := range used {
		if !ok {
			errs = append(errs, fmt.Errorf("cluster id %d has no tracks", id))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	want := NeighbourCounts(tracks, p)
	for i := range want {
		if want[i] != res.Neighbors[i] {
			errs = append(errs, fmt.Errorf("track %d: neighbour count %d, recount gives %d", i, res.Neighbors[i], want[i]))
		}
	}

	isCore := func(i int) bool { return int(res.Neighbors[i]) >= p.MinNeighbors }
	cores := make([][]int, res.Count)
	for i, id := range res.Assignment {
		if !isCore(i) {
			continue
		}
		if id == vertexing.NoiseID {
			errs = append(errs, fmt.Errorf("core track %d labelled noise", i))
			continue
		}
		cores[id] = append(cores[id], i)
	}

	for id, members := range cores {
		sort.Slice(members, func(a, b int) bool { return tracks[members[a]].Z < tracks[members[b]].Z })
		for k := 1; k < len(members); k++ {
			gap := tracks[members[k]].Z - tracks[members[k-1]].Z
			if gap > p.Eps {
				errs = append(errs, fmt.Errorf("cluster %d: core tracks %d and %d are %g apart, beyond eps %g",
					id, members[k-1], members[k], gap, p.Eps))
			}
		}
	}

	for i, id := range res.Assignment {
		if isCore(i) || id == vertexing.NoiseID {
			continue
		}
		if !nearCore(tracks, cores[id], i, p.Eps) {
			errs = append(errs, fmt.Errorf("edge track %d: no core track of cluster %d within eps", i, id))
		}
	}

	return errors.Join(errs...)
}

func nearCore(tracks []vertexing.Track, cores []int, i int, eps float32) bool {
	for _, c := range cores {
		d := tracks[i].Z - tracks[c].Z
		if d < 0 {
			d = -d
		}
		if d <= eps {
			return true
		}
	}
	return false
}

// NeighbourCounts recounts neighbours with a sorted sweep, independently of
// the histogram used by the clusterer.
func NeighbourCounts(tracks []vertexing.Track, p vertexing.Params) []int32 {
	n := len(tracks)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return tracks[order[a]].Z < tracks[order[b]].Z })

	er2mx := p.ErrMax * p.ErrMax
	counts := make([]int32, n)
	lo := 0
	for k, i := range order {
		z := tracks[i].Z
		for z-tracks[order[lo]].Z > p.Eps {
			lo++
		}
		if tracks[i].EZ2 > er2mx {
			continue
		}
		var c int32
		for h := lo; h < n; h++ {
			j := order[h]
			if tracks[j].Z-z > p.Eps {
				break
			}
			if h == k {
				continue
			}
			d := z - tracks[j].Z
			if d < 0 {
				d = -d
			}
			if d <= p.Eps {
				c++
			}
		}
		counts[i] = c
	}
	return counts
}
