package vertexing

import "sync/atomic"

// Histogram maps each 8-bit bin to the indices of the tracks in it.
//
// It is filled in three group-wide steps, each followed by a barrier:
// Count for every entry, Finalize on a single member, then Fill for every
// entry. Count and Fill are safe to call from all members at once. After Fill
// the histogram is read-only.
type Histogram struct {
	// off[b] counts bin b during Count, holds the running total after
	// Finalize, and holds the first slot of bin b after Fill.
	off     [NumBins + 1]uint32
	content [MaxTracks]uint16
}

// Reset empties the histogram for the next job.
func (h *Histogram) Reset() {
	h.off = [NumBins + 1]uint32{}
}

// Count registers one entry for bin b.
func (h *Histogram) Count(b uint8) {
	atomic.AddUint32(&h.off[b], 1)
}

// Finalize turns the per-bin counts into slot offsets. It must run on
// exactly one member, between the Count and Fill barriers.
func (h *Histogram) Finalize() error {
	for b := 1; b <= NumBins; b++ {
		h.off[b] += h.off[b-1]
	}
	if total := int(h.off[NumBins]); total > MaxTracks {
		return &CapacityError{What: capHistogram, Size: total, Capacity: MaxTracks}
	}
	return nil
}

// Fill stores track index i in bin b.
func (h *Histogram) Fill(b uint8, i uint16) error {
	w := atomic.AddUint32(&h.off[b], ^uint32(0))
	if w >= MaxTracks {
		return &CapacityError{What: capHistogram, Size: int(w) + 1, Capacity: MaxTracks}
	}
	h.content[w] = i
	return nil
}

// Size returns the number of entries in the filled histogram.
func (h *Histogram) Size() int {
	return int(h.off[NumBins])
}

// Bin returns the track indices stored in bin b.
func (h *Histogram) Bin(b int) []uint16 {
	return h.content[h.off[b]:h.off[b+1]]
}

// Neighborhood returns the entries of bins b-width..b+width, clamped to the
// histogram range. Neighbouring bins are stored contiguously, so the result
// is a view into the histogram and must not be modified.
func (h *Histogram) Neighborhood(b uint8, width int) []uint16 {
	lo := int(b) - width
	if lo < 0 {
		lo = 0
	}
	hi := int(b) + width
	if hi > NumBins-1 {
		hi = NumBins - 1
	}
	return h.content[h.off[lo]:h.off[hi+1]]
}
