package vertexing

import "sync/atomic"

// Workspace holds the per-job buffers of a clustering job. It is allocated
// once at full capacity and reset by every job that uses it, so a stream of
// jobs can run without allocating. A Workspace must not be shared by jobs
// running at the same time.
type Workspace struct {
	hist  Histogram
	iz    [MaxTracks]uint8
	nn    [MaxTracks]int32
	iv    [MaxTracks]int32
	roots [MaxVertices]int32
	remap [MaxVertices]int32

	found atomic.Uint32
	err   atomic.Pointer[error]
}

// NewWorkspace allocates a workspace sized for MaxTracks tracks.
func NewWorkspace() *Workspace {
	return &Workspace{}
}

func (ws *Workspace) reset() {
	ws.hist.Reset()
	ws.found.Store(0)
	ws.err.Store(nil)
}

// fail records the first job-level error. Members keep running to the next
// barrier and stop there, so every member leaves at the same pass.
func (ws *Workspace) fail(err error) {
	ws.err.CompareAndSwap(nil, &err)
}

func (ws *Workspace) failed() error {
	if p := ws.err.Load(); p != nil {
		return *p
	}
	return nil
}
