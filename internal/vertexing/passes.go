package vertexing

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// job binds one clustering invocation to its workspace.
type job struct {
	ws     *Workspace
	tracks []Track
	p      Params
	width  float32
	er2mx  float32
	checks bool
}

func newJob(ws *Workspace, tracks []Track, p Params, checks bool) *job {
	return &job{
		ws:     ws,
		tracks: tracks,
		p:      p,
		width:  p.binWidth(),
		er2mx:  p.ErrMax * p.ErrMax,
		checks: checks,
	}
}

func (j *job) n() int { return len(j.tracks) }

// A stage is one pass of the pipeline. Every member runs every stage and
// the group synchronises after each one. Stages report job failures
// through ws.fail so that all members stop at the same barrier.
type stage struct {
	name string
	run  func(j *job, m member)
}

// stages returns the pipeline in execution order.
func (j *job) stages() []stage {
	s := []stage{
		{"count-bins", (*job).countBins},
		{"finalize-bins", (*job).finalizeBins},
		{"fill-bins", (*job).fillBins},
		{"count-neighbours", (*job).countNeighbours},
		{"assign-seeds", (*job).assignSeeds},
	}
	if j.checks {
		s = append(s, stage{"check-seeds", (*job).checkSeeds})
	}
	s = append(s, stage{"compress", (*job).compress})
	if j.checks {
		s = append(s, stage{"check-forest", (*job).checkForest})
	}
	s = append(s,
		stage{"absorb-edges", (*job).absorbEdges},
		stage{"label-roots", (*job).labelRoots},
		stage{"propagate-labels", (*job).propagateLabels},
		stage{"finalize-labels", (*job).finalizeLabels},
	)
	if j.p.OrderByZ {
		s = append(s,
			stage{"order-clusters", (*job).orderClusters},
			stage{"apply-order", (*job).applyOrder},
		)
	}
	return s
}

// execute runs stages on member m, synchronising after each one.
func (j *job) execute(m member, stages []stage) error {
	for _, s := range stages {
		s.run(j, m)
		if err := m.sync(); err != nil {
			return err
		}
		if err := j.ws.failed(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// countBins quantizes every track, resets its per-job slots and counts
// it into the histogram.
func (j *job) countBins(m member) {
	ws := j.ws
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		ws.iz[i] = BinOf(j.tracks[i].Z, j.width)
		ws.nn[i] = 0
		ws.iv[i] = int32(i)
		ws.hist.Count(ws.iz[i])
	}
}

func (j *job) finalizeBins(m member) {
	if m.rank != 0 {
		return
	}
	if err := j.ws.hist.Finalize(); err != nil {
		j.ws.fail(err)
	}
}

func (j *job) fillBins(m member) {
	ws := j.ws
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if err := ws.hist.Fill(ws.iz[i], uint16(i)); err != nil {
			ws.fail(err)
			return
		}
	}
}

// countNeighbours counts, for every track precise enough to be a seed, the
// tracks within eps of it.
func (j *job) countNeighbours(m member) {
	ws, zt := j.ws, j.tracks
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if zt[i].EZ2 > j.er2mx {
			continue
		}
		for _, k := range ws.hist.Neighborhood(ws.iz[i], 1) {
			if int(k) == i {
				continue
			}
			if abs32(zt[i].Z-zt[k].Z) > j.p.Eps {
				continue
			}
			ws.nn[i]++
		}
	}
}

func (j *job) isCore(i int) bool {
	return int(j.ws.nn[i]) >= j.p.MinNeighbors
}

// assignSeeds links every core track to the core neighbour with the
// smallest z below its own. Links always point to a smaller z, so the
// resulting forest has no cycles.
func (j *job) assignSeeds(m member) {
	ws, zt := j.ws, j.tracks
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if !j.isCore(i) {
			continue
		}
		mz := zt[i].Z
		for _, k := range ws.hist.Neighborhood(ws.iz[i], 1) {
			if zt[k].Z >= mz {
				continue
			}
			if !j.isCore(int(k)) {
				continue
			}
			if abs32(zt[i].Z-zt[k].Z) > j.p.Eps {
				continue
			}
			mz = zt[k].Z
			ws.iv[i] = int32(k)
		}
	}
}

// compress points every track directly at the root of its tree. Other
// members rewrite their own slots concurrently; they only ever replace a
// pointer by one of its ancestors, so the chase always ends at the root.
func (j *job) compress(m member) {
	iv := j.ws.iv[:]
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		r := atomic.LoadInt32(&iv[i])
		for {
			next := atomic.LoadInt32(&iv[r])
			if next == r {
				break
			}
			r = next
		}
		atomic.StoreInt32(&iv[i], r)
	}
}

// absorbEdges attaches every non-core track to the root of its closest
// compatible core neighbour.
func (j *job) absorbEdges(m member) {
	ws, zt := j.ws, j.tracks
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if j.isCore(i) {
			continue
		}
		mdist := j.p.Eps
		for _, k := range ws.hist.Neighborhood(ws.iz[i], 1) {
			if !j.isCore(int(k)) {
				continue
			}
			dist := abs32(zt[i].Z - zt[k].Z)
			if dist > mdist {
				continue
			}
			if dist*dist > j.p.Chi2Max*(zt[i].EZ2+zt[k].EZ2) {
				continue
			}
			mdist = dist
			ws.iv[i] = ws.iv[k]
		}
	}
}

// labelRoots gives every core root a cluster id from the shared counter,
// encoded as -(id+1), and marks every other root as noise.
func (j *job) labelRoots(m member) {
	ws := j.ws
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if ws.iv[i] != int32(i) {
			continue
		}
		if !j.isCore(i) {
			ws.iv[i] = noiseMark
			continue
		}
		id := ws.found.Add(1) - 1
		if id >= MaxVertices-1 {
			ws.fail(&CapacityError{What: capVertices, Size: int(id) + 1, Capacity: MaxVertices - 1})
			return
		}
		ws.iv[i] = -(int32(id) + 1)
		ws.roots[id] = int32(i)
	}
}

// propagateLabels copies the root label to every member of its cluster.
func (j *job) propagateLabels(m member) {
	iv := j.ws.iv[:]
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if iv[i] >= 0 {
			iv[i] = iv[iv[i]]
		}
	}
}

// finalizeLabels converts -(id+1) to id; the noise mark becomes NoiseID.
func (j *job) finalizeLabels(m member) {
	iv := j.ws.iv[:]
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		iv[i] = -iv[i] - 1
	}
}

// orderClusters computes the renumbering by ascending root z.
func (j *job) orderClusters(m member) {
	if m.rank != 0 {
		return
	}
	ws := j.ws
	count := int(ws.found.Load())
	order := make([]int32, count)
	for id := range order {
		order[id] = int32(id)
	}
	sort.Slice(order, func(a, b int) bool {
		ra, rb := ws.roots[order[a]], ws.roots[order[b]]
		if za, zb := j.tracks[ra].Z, j.tracks[rb].Z; za != zb {
			return za < zb
		}
		return ra < rb
	})
	roots := make([]int32, count)
	for newID, oldID := range order {
		ws.remap[oldID] = int32(newID)
		roots[newID] = ws.roots[oldID]
	}
	copy(ws.roots[:count], roots)
}

func (j *job) applyOrder(m member) {
	ws := j.ws
	start, step := m.stride()
	for i := start; i < j.n(); i += step {
		if ws.iv[i] != NoiseID {
			ws.iv[i] = ws.remap[ws.iv[i]]
		}
	}
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
