package vertexing

import (
	"fmt"
	"runtime"

	"github.com/violatingcp/pixeltrack-standalone/internal/monitoring"
)

// Clusterer runs clustering jobs on a work group of a fixed size.
// A Clusterer is safe for concurrent use as long as concurrent jobs use
// different workspaces.
type Clusterer struct {
	groupSize int
	checks    bool
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithGroupSize sets the number of cooperating members per job.
func WithGroupSize(n int) Option {
	return func(c *Clusterer) {
		if n > 0 {
			c.groupSize = n
		}
	}
}

// WithConsistencyChecks enables the forest checks between passes. They cost
// an extra neighbourhood scan and are meant for debugging.
func WithConsistencyChecks(enabled bool) Option {
	return func(c *Clusterer) { c.checks = enabled }
}

// NewClusterer creates a Clusterer. The default group size is GOMAXPROCS.
func NewClusterer(opts ...Option) *Clusterer {
	c := &Clusterer{groupSize: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GroupSize returns the number of members per job.
func (c *Clusterer) GroupSize() int {
	return c.groupSize
}

// ClusterTracks clusters tracks with a default Clusterer and a fresh workspace.
func ClusterTracks(tracks []Track, p Params) (*Result, error) {
	return NewClusterer().Cluster(tracks, p)
}

// Cluster runs one job on a freshly allocated workspace.
func (c *Clusterer) Cluster(tracks []Track, p Params) (*Result, error) {
	return c.ClusterInto(NewWorkspace(), tracks, p)
}

// ClusterInto runs one job on a caller-owned workspace. The returned Result
// does not alias the workspace, which may be reused immediately.
func (c *Clusterer) ClusterInto(ws *Workspace, tracks []Track, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(tracks)
	if n > MaxTracks {
		return nil, &CapacityError{What: capTracks, Size: n, Capacity: MaxTracks}
	}

	ws.reset()
	if n == 0 {
		return &Result{}, nil
	}

	j := newJob(ws, tracks, p, c.checks)
	stages := j.stages()

	// Small jobs do not benefit from more members than tracks.
	size := c.groupSize
	if size > n {
		size = n
	}
	if err := runGroup(size, func(m member) error {
		return j.execute(m, stages)
	}); err != nil {
		return nil, fmt.Errorf("cluster %d tracks: %w", n, err)
	}

	count := int(ws.found.Load())
	res := &Result{
		Assignment: append([]int32(nil), ws.iv[:n]...),
		Count:      count,
		Neighbors:  append([]int32(nil), ws.nn[:n]...),
		Roots:      append([]int32(nil), ws.roots[:count]...),
	}
	monitoring.Debugf("vertexing: found %d proto vertices in %d tracks (group size %d)", count, n, size)
	return res, nil
}
