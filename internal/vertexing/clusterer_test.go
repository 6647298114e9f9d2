package vertexing

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var groupSizes = []int{1, 2, 3, 8, 32}

func tracksAt(ez2 float32, zs ...float32) []Track {
	tracks := make([]Track, len(zs))
	for i, z := range zs {
		tracks[i] = Track{Z: z, EZ2: ez2}
	}
	return tracks
}

func scenarioParams(minNeighbors int) Params {
	return Params{
		MinNeighbors: minNeighbors,
		Eps:          0.3,
		ErrMax:       0.02,
		Chi2Max:      9,
		OrderByZ:     true,
	}
}

func TestCluster_Scenarios(t *testing.T) {
	five := tracksAt(0.0001, 0.0, 0.1, 0.2, 5.0, 5.1)
	tests := []struct {
		name      string
		tracks    []Track
		params    Params
		wantCount int
		want      []int32
	}{
		{
			name:      "dense triplet, sparse pair is noise",
			tracks:    five,
			params:    scenarioParams(2),
			wantCount: 1,
			want:      []int32{0, 0, 0, NoiseID, NoiseID},
		},
		{
			name:      "pair becomes a second cluster",
			tracks:    five,
			params:    scenarioParams(1),
			wantCount: 2,
			want:      []int32{0, 0, 0, 1, 1},
		},
		{
			name:      "single track is noise",
			tracks:    tracksAt(0.0001, 1.5),
			params:    scenarioParams(1),
			wantCount: 0,
			want:      []int32{NoiseID},
		},
	}
	for _, tt := range tests {
		for _, size := range groupSizes {
			t.Run(tt.name, func(t *testing.T) {
				res, err := NewClusterer(WithGroupSize(size), WithConsistencyChecks(true)).Cluster(tt.tracks, tt.params)
				require.NoError(t, err)
				assert.Equal(t, tt.wantCount, res.Count, "group size %d", size)
				if diff := cmp.Diff(tt.want, res.Assignment); diff != "" {
					t.Errorf("group size %d: assignment mismatch (-want +got):\n%s", size, diff)
				}
			})
		}
	}
}

func TestCluster_EmptyInput(t *testing.T) {
	res, err := ClusterTracks(nil, DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, res.Assignment)
}

func TestCluster_TooManyTracksFailsFast(t *testing.T) {
	tracks := make([]Track, MaxTracks+1)
	res, err := ClusterTracks(tracks, DefaultParams())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.NotErrorIs(t, err, ErrTooManyVertices)
}

// separatedPairs builds n clusters of two tracks each, 0.01 apart within a
// pair and 0.2 apart between pairs.
func separatedPairs(n int) []Track {
	tracks := make([]Track, 0, 2*n)
	for k := 0; k < n; k++ {
		z := float32(-110 + 0.2*float64(k))
		tracks = append(tracks, Track{Z: z, EZ2: 1e-6}, Track{Z: z + 0.01, EZ2: 1e-6})
	}
	return tracks
}

func TestCluster_VertexCapacity(t *testing.T) {
	p := Params{MinNeighbors: 1, Eps: 0.05, ErrMax: 0.01, Chi2Max: 9, OrderByZ: true}

	t.Run("largest allowed count", func(t *testing.T) {
		res, err := NewClusterer(WithGroupSize(4)).Cluster(separatedPairs(MaxVertices-1), p)
		require.NoError(t, err)
		assert.Equal(t, MaxVertices-1, res.Count)
	})

	for _, n := range []int{MaxVertices, MaxVertices + 76} {
		res, err := NewClusterer(WithGroupSize(4)).Cluster(separatedPairs(n), p)
		require.Error(t, err, "%d clusters", n)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrTooManyVertices)
		assert.ErrorIs(t, err, ErrCapacity)
	}
}

func TestCluster_InvalidParams(t *testing.T) {
	p := DefaultParams()
	p.Eps = 0
	_, err := ClusterTracks(tracksAt(0.0001, 0, 0.01), p)
	assert.Error(t, err)

	p = DefaultParams()
	p.MinNeighbors = -1
	_, err = ClusterTracks(tracksAt(0.0001, 0, 0.01), p)
	assert.Error(t, err)
}

func TestCluster_ImpreciseTracksHaveNoNeighbours(t *testing.T) {
	tracks := []Track{
		{Z: 0.00, EZ2: 0.00005},
		{Z: 0.01, EZ2: 0.00005},
		{Z: 0.02, EZ2: 0.00005},
		{Z: 0.03, EZ2: 0.04}, // error 0.2 > errmax
	}
	res, err := ClusterTracks(tracks, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 3, 3, 0}, res.Neighbors)
}

func TestCluster_EdgeAbsorption(t *testing.T) {
	tracks := []Track{
		{Z: 0.00, EZ2: 0.00005},
		{Z: 0.01, EZ2: 0.00005},
		{Z: 0.02, EZ2: 0.00005},
		{Z: 0.08, EZ2: 0.01}, // too imprecise to be core, 0.06 from the triplet
	}

	t.Run("compatible edge joins the cluster", func(t *testing.T) {
		res, err := ClusterTracks(tracks, DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		assert.Equal(t, []int32{0, 0, 0, 0}, res.Assignment)
	})

	t.Run("chi2 cut leaves it as noise", func(t *testing.T) {
		p := DefaultParams()
		p.Chi2Max = 0.1
		res, err := ClusterTracks(tracks, p)
		require.NoError(t, err)
		assert.Equal(t, []int32{0, 0, 0, NoiseID}, res.Assignment)
	})

	t.Run("edge goes to the closest core track", func(t *testing.T) {
		two := []Track{
			{Z: 0.00, EZ2: 0.00005},
			{Z: 0.01, EZ2: 0.00005},
			{Z: 0.02, EZ2: 0.00005},
			{Z: 0.13, EZ2: 0.00005},
			{Z: 0.14, EZ2: 0.00005},
			{Z: 0.15, EZ2: 0.00005},
			{Z: 0.07, EZ2: 0.01},
			{Z: 0.09, EZ2: 0.01},
		}
		res, err := NewClusterer(WithGroupSize(3)).Cluster(two, DefaultParams())
		require.NoError(t, err)
		require.Equal(t, 2, res.Count)
		assert.Equal(t, []int32{0, 0, 0, 1, 1, 1, 0, 1}, res.Assignment)
	})
}

func TestCluster_RootsSeedTheirClusters(t *testing.T) {
	res, err := ClusterTracks(tracksAt(0.0001, 5.1, 0.2, 5.0, 0.1, 0.0), scenarioParams(1))
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	// Roots are the lowest-z core tracks, ordered by z.
	assert.Equal(t, []int32{4, 2}, res.Roots)
	assert.Equal(t, []int32{1, 0, 1, 0, 0}, res.Assignment)
}

func randomEvent(seed uint64, vertices, perVertex int) []Track {
	r := rand.New(rand.NewPCG(seed, 99))
	var tracks []Track
	for v := 0; v < vertices; v++ {
		vz := r.NormFloat64() * 4
		for k := 0; k < perVertex; k++ {
			ez := 0.002 + r.Float64()*0.02
			tracks = append(tracks, Track{
				Z:   float32(vz + r.NormFloat64()*ez),
				EZ2: float32(ez * ez),
			})
		}
	}
	for k := 0; k < vertices; k++ {
		tracks = append(tracks, Track{Z: float32(r.Float64()*30 - 15), EZ2: 0.0004})
	}
	r.Shuffle(len(tracks), func(a, b int) { tracks[a], tracks[b] = tracks[b], tracks[a] })
	return tracks
}

func TestCluster_SameResultForEveryGroupSize(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		tracks := randomEvent(seed, 40, 12)
		want, err := NewClusterer(WithGroupSize(1), WithConsistencyChecks(true)).Cluster(tracks, DefaultParams())
		require.NoError(t, err)
		require.Positive(t, want.Count)

		for _, size := range groupSizes[1:] {
			got, err := NewClusterer(WithGroupSize(size), WithConsistencyChecks(true)).Cluster(tracks, DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, want.Count, got.Count, "seed %d size %d", seed, size)
			if diff := cmp.Diff(want.Assignment, got.Assignment); diff != "" {
				t.Errorf("seed %d size %d: assignment mismatch (-want +got):\n%s", seed, size, diff)
			}
		}
	}
}

func TestCluster_UnorderedIDsAreDense(t *testing.T) {
	p := DefaultParams()
	p.OrderByZ = false
	res, err := NewClusterer(WithGroupSize(8)).Cluster(randomEvent(7, 30, 10), p)
	require.NoError(t, err)

	used := make(map[int32]bool)
	for _, id := range res.Assignment {
		if id != NoiseID {
			require.Less(t, int(id), res.Count)
			used[id] = true
		}
	}
	assert.Len(t, used, res.Count)
	assert.Len(t, res.Roots, res.Count)
	for id, root := range res.Roots {
		assert.Equal(t, int32(id), res.Assignment[root])
	}
}

func TestCluster_WorkspaceReuse(t *testing.T) {
	c := NewClusterer(WithGroupSize(4))
	ws := NewWorkspace()

	first := randomEvent(11, 25, 8)
	second := randomEvent(12, 10, 20)

	a, err := c.ClusterInto(ws, first, DefaultParams())
	require.NoError(t, err)
	snapshot := append([]int32(nil), a.Assignment...)

	b, err := c.ClusterInto(ws, second, DefaultParams())
	require.NoError(t, err)
	fresh, err := c.Cluster(second, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, snapshot, a.Assignment, "result must not alias the workspace")
	assert.Equal(t, fresh.Assignment, b.Assignment)
	assert.Equal(t, fresh.Count, b.Count)
}

func TestCompress_Idempotent(t *testing.T) {
	tracks := randomEvent(3, 20, 15)
	for _, size := range []int{1, 4} {
		ws := NewWorkspace()
		ws.reset()
		j := newJob(ws, tracks, DefaultParams(), false)

		all := j.stages()
		upTo := -1
		for k, s := range all {
			if s.name == "compress" {
				upTo = k
			}
		}
		require.NotEqual(t, -1, upTo)

		require.NoError(t, runGroup(size, func(m member) error { return j.execute(m, all[:upTo+1]) }))
		once := append([]int32(nil), ws.iv[:len(tracks)]...)
		for i, r := range once {
			assert.Equal(t, r, once[r], "track %d does not point at a root", i)
		}

		require.NoError(t, runGroup(size, func(m member) error { return j.execute(m, all[upTo:upTo+1]) }))
		assert.Equal(t, once, ws.iv[:len(tracks)])
	}
}

func TestCluster_ConsistencyChecksCatchCorruptForest(t *testing.T) {
	tracks := tracksAt(0.00005, 0, 0.01, 0.02)
	ws := NewWorkspace()
	ws.reset()
	j := newJob(ws, tracks, DefaultParams(), true)

	corrupt := stage{"corrupt", func(j *job, m member) {
		if m.rank == 0 {
			j.ws.iv[1] = 2
			j.ws.iv[2] = 1
		}
	}}
	var pipeline []stage
	for _, s := range j.stages() {
		pipeline = append(pipeline, s)
		if s.name == "assign-seeds" {
			pipeline = append(pipeline, corrupt)
		}
	}
	err := runGroup(2, func(m member) error { return j.execute(m, pipeline) })
	assert.ErrorIs(t, err, ErrInconsistentForest)
}
