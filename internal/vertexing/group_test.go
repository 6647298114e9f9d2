package vertexing

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGroup_BarrierOrdersPhases(t *testing.T) {
	const size = 8
	var arrived atomic.Int32
	var early atomic.Int32

	err := runGroup(size, func(m member) error {
		for phase := 1; phase <= 3; phase++ {
			arrived.Add(1)
			if err := m.sync(); err != nil {
				return err
			}
			// Every member of this phase arrived before anyone left the barrier.
			if arrived.Load() < int32(phase*size) {
				early.Add(1)
			}
			if err := m.sync(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3*size), arrived.Load())
	assert.Zero(t, early.Load())
}

func TestRunGroup_StridesCoverEveryIndex(t *testing.T) {
	const n = 101
	var hits [n]atomic.Int32
	err := runGroup(7, func(m member) error {
		start, step := m.stride()
		for i := start; i < n; i += step {
			hits[i].Add(1)
		}
		return nil
	})
	require.NoError(t, err)
	for i := range hits {
		assert.Equal(t, int32(1), hits[i].Load(), "index %d", i)
	}
}

func TestRunGroup_ErrorReleasesWaiters(t *testing.T) {
	boom := errors.New("boom")
	err := runGroup(4, func(m member) error {
		if m.rank == 2 {
			return boom
		}
		return m.sync()
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunGroup_PanicReleasesWaiters(t *testing.T) {
	err := runGroup(3, func(m member) error {
		if m.rank == 0 {
			panic("bad slot")
		}
		return m.sync()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.NotErrorIs(t, err, ErrBarrierBroken)
}

func TestRunGroup_ZeroSizeRunsOneMember(t *testing.T) {
	var calls atomic.Int32
	require.NoError(t, runGroup(0, func(m member) error {
		calls.Add(1)
		assert.Equal(t, 1, m.size)
		return m.sync()
	}))
	assert.Equal(t, int32(1), calls.Load())
}
