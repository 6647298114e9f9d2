package events

import "sync"

// generatorSource serves max events from a Generator.
type generatorSource struct {
	gen  *Generator
	mu   sync.Mutex
	next int
	max  int
}

// Source returns a Source producing events 0..max-1.
func (g *Generator) Source(max int) Source {
	return &generatorSource{gen: g, max: max}
}

func (s *generatorSource) Next() (Event, bool) {
	s.mu.Lock()
	id := s.next
	if id >= s.max {
		s.mu.Unlock()
		return Event{}, false
	}
	s.next++
	s.mu.Unlock()
	return s.gen.Event(id), true
}

// sliceSource serves a fixed list of events.
type sliceSource struct {
	mu     sync.Mutex
	events []Event
}

// FromSlice returns a Source serving the given events in order.
func FromSlice(events []Event) Source {
	return &sliceSource{events: events}
}

func (s *sliceSource) Next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}
