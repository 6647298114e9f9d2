package vertexing

import "fmt"

// checkSeeds verifies that seed assignment produced no two-track cycles.
func (j *job) checkSeeds(m member) {
	iv := j.ws.iv[:]
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if iv[i] != int32(i) && iv[iv[i]] == int32(i) {
			j.ws.fail(fmt.Errorf("%w: tracks %d and %d point at each other", ErrInconsistentForest, i, iv[i]))
			return
		}
	}
}

// checkForest verifies that compression left every track pointing at a
// root, that roots never sit above their members, and that no two linked
// core tracks ended up in different trees. Core tracks sharing the same z
// may legitimately root separate trees and are not compared.
func (j *job) checkForest(m member) {
	ws, zt := j.ws, j.tracks
	iv := ws.iv[:]
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		r := iv[i]
		if iv[r] != r {
			ws.fail(fmt.Errorf("%w: track %d points at %d which is not a root", ErrInconsistentForest, i, r))
			return
		}
		if !j.isCore(i) {
			continue
		}
		if zt[r].Z > zt[i].Z {
			ws.fail(fmt.Errorf("%w: root %d of track %d has larger z", ErrInconsistentForest, r, i))
			return
		}
		for _, k := range ws.hist.Neighborhood(ws.iz[i], 1) {
			if !j.isCore(int(k)) || abs32(zt[i].Z-zt[k].Z) > j.p.Eps {
				continue
			}
			rk := iv[k]
			if rk != r && zt[rk].Z != zt[r].Z {
				ws.fail(fmt.Errorf("%w: neighbours %d and %d split between roots %d and %d",
					ErrInconsistentForest, i, k, r, rk))
				return
			}
		}
	}
}
