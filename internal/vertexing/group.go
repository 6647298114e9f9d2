package vertexing

import (
	"fmt"
	"sync"
)

// barrier is a reusable cyclic barrier for a fixed number of members.
// A member that cannot reach the next barrier breaks it, which releases every
// waiting member with ErrBarrierBroken.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	waiting int
	gen     uint64
	broken  bool
}

func newBarrier(size int) *barrier {
	b := &barrier{size: size}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until all members have arrived. Writes made before wait are
// visible to every member after it returns.
func (b *barrier) wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		return ErrBarrierBroken
	}
	gen := b.gen
	b.waiting++
	if b.waiting == b.size {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	if b.broken {
		return ErrBarrierBroken
	}
	return nil
}

func (b *barrier) breakBarrier() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = true
	b.cond.Broadcast()
}

// member is one execution unit of a work group.
type member struct {
	rank int
	size int
	bar  *barrier
}

// stride returns the loop bounds for rank-strided iteration over n items:
// for i := start; i < n; i += step.
func (m member) stride() (start, step int) {
	return m.rank, m.size
}

// sync waits for every member of the group.
func (m member) sync() error {
	return m.bar.wait()
}

// runGroup starts size members running body and waits for all of them.
// The first error returned (or panic raised) by any member is returned.
func runGroup(size int, body func(m member) error) error {
	if size < 1 {
		size = 1
	}
	bar := newBarrier(size)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		// A broken barrier is a consequence, not a cause.
		if firstErr == nil || firstErr == ErrBarrierBroken {
			firstErr = err
		}
	}

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(m member) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("vertexing: member %d panicked: %v", m.rank, r))
					bar.breakBarrier()
				}
			}()
			if err := body(m); err != nil {
				record(err)
				bar.breakBarrier()
			}
		}(member{rank: rank, size: size, bar: bar})
	}
	wg.Wait()
	return firstErr
}
