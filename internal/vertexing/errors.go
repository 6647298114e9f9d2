package vertexing

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity is returned when a job does not fit the fixed-size buffers.
	ErrCapacity = errors.New("vertexing: capacity exceeded")
	// ErrTooManyVertices is returned when a job finds MaxVertices or more clusters.
	ErrTooManyVertices = errors.New("vertexing: too many vertices")
	// ErrInconsistentForest is returned by the consistency checks.
	ErrInconsistentForest = errors.New("vertexing: inconsistent cluster forest")
	// ErrBarrierBroken is returned to group members released by a failing member.
	ErrBarrierBroken = errors.New("vertexing: work group barrier broken")
)

// Buffers named by CapacityError.
const (
	capTracks    = "tracks"
	capHistogram = "histogram"
	capVertices  = "vertices"
)

// CapacityError describes which fixed-size buffer overflowed.
type CapacityError struct {
	What     string
	Size     int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("vertexing: %s: %d exceeds capacity %d", e.What, e.Size, e.Capacity)
}

// Is makes errors.Is(err, ErrCapacity) hold for every CapacityError, and
// errors.Is(err, ErrTooManyVertices) hold for the cluster counter overflow.
func (e *CapacityError) Is(target error) bool {
	switch target {
	case ErrCapacity:
		return true
	case ErrTooManyVertices:
		return e.What == capVertices
	}
	return false
}
