// Package processor runs clustering jobs for a stream of events.
//
// Each stream owns a Clusterer and a Workspace and processes one event at a
// time; streams run concurrently and share nothing but the event source and
// the sinks. The backend decides how many members cooperate on one job.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/violatingcp/pixeltrack-standalone/internal/events"
	"github.com/violatingcp/pixeltrack-standalone/internal/monitoring"
	"github.com/violatingcp/pixeltrack-standalone/internal/timeutil"
	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

// Backend selects how a single job is executed.
type Backend string

const (
	// BackendSerial runs every job on a single member.
	BackendSerial Backend = "serial"
	// BackendThreads runs every job on InnerThreads cooperating members.
	BackendThreads Backend = "threads"
)

// ParseBackend converts a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendSerial, BackendThreads:
		return b, nil
	}
	return "", fmt.Errorf("unknown backend %q (want %q or %q)", s, BackendSerial, BackendThreads)
}

// Options configures an EventProcessor.
type Options struct {
	Backend           Backend
	Streams           int  // Concurrent jobs
	InnerThreads      int  // Members per job for BackendThreads
	ConsistencyChecks bool // Run the forest checks between passes
	Params            vertexing.Params
}

// GroupSize returns the number of members per job.
func (o Options) GroupSize() int {
	if o.Backend == BackendSerial || o.InnerThreads < 1 {
		return 1
	}
	return o.InnerThreads
}

// Validate checks the options.
func (o Options) Validate() error {
	if _, err := ParseBackend(string(o.Backend)); err != nil {
		return err
	}
	if o.Streams < 1 {
		return fmt.Errorf("streams must be at least 1, got %d", o.Streams)
	}
	return o.Params.Validate()
}

// EventResult is the outcome of clustering one event.
type EventResult struct {
	Event    events.Event
	Params   vertexing.Params
	Result   *vertexing.Result
	Vertices []vertexing.Vertex
	Stream   int
	Duration time.Duration
}

// Sink receives every EventResult. Sinks are called from all streams
// concurrently and must be safe for concurrent use.
type Sink interface {
	Consume(r *EventResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r *EventResult) error

// Consume calls f(r).
func (f SinkFunc) Consume(r *EventResult) error { return f(r) }

// Summary describes a finished run.
type Summary struct {
	Events   int
	Tracks   int
	Vertices int
	Wall     time.Duration
}

// Throughput returns processed events per second.
func (s Summary) Throughput() float64 {
	if s.Wall <= 0 {
		return 0
	}
	return float64(s.Events) / s.Wall.Seconds()
}

func (s Summary) String() string {
	return fmt.Sprintf("Processed %d events (%d tracks, %d vertices) in %.3f s, throughput %.2f events/s",
		s.Events, s.Tracks, s.Vertices, s.Wall.Seconds(), s.Throughput())
}

// EventProcessor drives the clustering of every event of a source.
type EventProcessor struct {
	opts   Options
	source events.Source
	sinks  []Sink
	clock  timeutil.Clock
}

// New creates an EventProcessor.
func New(opts Options, source events.Source, sinks ...Sink) (*EventProcessor, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor options: %w", err)
	}
	if source == nil {
		return nil, errors.New("processor: nil event source")
	}
	return &EventProcessor{
		opts:   opts,
		source: source,
		sinks:  sinks,
		clock:  timeutil.RealClock{},
	}, nil
}

// SetClock replaces the clock used to time jobs.
func (p *EventProcessor) SetClock(c timeutil.Clock) {
	p.clock = c
}

// Run processes events until the source is exhausted, ctx is cancelled or
// a job fails. A job that has started always runs to completion.
func (p *EventProcessor) Run(ctx context.Context) (Summary, error) {
	start := p.clock.Now()
	monitoring.Logf("Running %d streams on the %s backend, %d member(s) per job",
		p.opts.Streams, p.opts.Backend, p.opts.GroupSize())

	totals := make([]Summary, p.opts.Streams)
	g, ctx := errgroup.WithContext(ctx)
	for s := 0; s < p.opts.Streams; s++ {
		g.Go(func() error {
			return p.runStream(ctx, s, &totals[s])
		})
	}
	err := g.Wait()

	var sum Summary
	for _, t := range totals {
		sum.Events += t.Events
		sum.Tracks += t.Tracks
		sum.Vertices += t.Vertices
	}
	sum.Wall = p.clock.Since(start)
	return sum, err
}

func (p *EventProcessor) runStream(ctx context.Context, stream int, total *Summary) error {
	clusterer := vertexing.NewClusterer(
		vertexing.WithGroupSize(p.opts.GroupSize()),
		vertexing.WithConsistencyChecks(p.opts.ConsistencyChecks),
	)
	ws := vertexing.NewWorkspace()
	backend := string(p.opts.Backend)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := p.source.Next()
		if !ok {
			return nil
		}

		t0 := p.clock.Now()
		res, err := clusterer.ClusterInto(ws, ev.Tracks, p.opts.Params)
		elapsed := p.clock.Since(t0)
		if err != nil {
			jobFailures.Add(backend, 1)
			return fmt.Errorf("event %d: %w", ev.ID, err)
		}

		r := &EventResult{
			Event:    ev,
			Params:   p.opts.Params,
			Result:   res,
			Vertices: vertexing.Summarize(ev.Tracks, res),
			Stream:   stream,
			Duration: elapsed,
		}
		recordJob(backend, r)
		monitoring.Debugf("stream %d: event %d: %d tracks -> %d vertices in %s",
			stream, ev.ID, len(ev.Tracks), res.Count, elapsed)

		for _, sink := range p.sinks {
			if err := sink.Consume(r); err != nil {
				return fmt.Errorf("event %d: sink: %w", ev.ID, err)
			}
		}

		total.Events++
		total.Tracks += len(ev.Tracks)
		total.Vertices += res.Count
	}
}
