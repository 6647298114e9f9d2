package processor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/violatingcp/pixeltrack-standalone/internal/events"
	"github.com/violatingcp/pixeltrack-standalone/internal/processor"
	"github.com/violatingcp/pixeltrack-standalone/internal/timeutil"
	"github.com/violatingcp/pixeltrack-standalone/internal/validation"
	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

// collector keeps every result by event id.
type collector struct {
	mu      sync.Mutex
	results map[int]*processor.EventResult
}

func newCollector() *collector {
	return &collector{results: make(map[int]*processor.EventResult)}
}

func (c *collector) Consume(r *processor.EventResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.Event.ID] = r
	return nil
}

func newGenerator(t *testing.T) *events.Generator {
	t.Helper()
	cfg := events.DefaultGeneratorConfig()
	cfg.MeanVertices = 20
	g, err := events.NewGenerator(cfg)
	require.NoError(t, err)
	return g
}

func threadsOptions() processor.Options {
	return processor.Options{
		Backend:      processor.BackendThreads,
		Streams:      3,
		InnerThreads: 4,
		Params:       vertexing.DefaultParams(),
	}
}

func TestEventProcessor_Run(t *testing.T) {
	sink := newCollector()
	validator := validation.NewCountValidator()
	p, err := processor.New(threadsOptions(), newGenerator(t).Source(20), sink, validator)
	require.NoError(t, err)
	p.SetClock(timeutil.NewStepClock(time.Unix(0, 0), time.Millisecond))

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, validator.Err())

	assert.Equal(t, 20, sum.Events)
	require.Len(t, sink.results, 20)

	tracks, vertices := 0, 0
	for id, r := range sink.results {
		assert.Equal(t, id, r.Event.ID)
		assert.Len(t, r.Vertices, r.Result.Count)
		assert.Positive(t, r.Duration)
		assert.Less(t, r.Stream, 3)
		tracks += len(r.Event.Tracks)
		vertices += r.Result.Count
	}
	assert.Equal(t, tracks, sum.Tracks)
	assert.Equal(t, vertices, sum.Vertices)
	assert.Positive(t, sum.Throughput())
	assert.Contains(t, sum.String(), "Processed 20 events")
}

func TestEventProcessor_BackendsAgree(t *testing.T) {
	serialOpts := threadsOptions()
	serialOpts.Backend = processor.BackendSerial
	serialOpts.Streams = 1

	run := func(opts processor.Options) map[int]*processor.EventResult {
		sink := newCollector()
		p, err := processor.New(opts, newGenerator(t).Source(8), sink)
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)
		return sink.results
	}

	serial := run(serialOpts)
	threads := run(threadsOptions())
	require.Len(t, threads, len(serial))
	for id, want := range serial {
		got := threads[id]
		if diff := cmp.Diff(want.Result.Assignment, got.Result.Assignment); diff != "" {
			t.Errorf("event %d: backends disagree (-serial +threads):\n%s", id, diff)
		}
	}
}

func TestEventProcessor_JobFailureStopsRun(t *testing.T) {
	huge := events.Event{ID: 9, Tracks: make([]vertexing.Track, vertexing.MaxTracks+1)}
	p, err := processor.New(threadsOptions(), events.FromSlice([]events.Event{huge}))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vertexing.ErrCapacity)
	assert.Contains(t, err.Error(), "event 9")
}

func TestEventProcessor_SinkErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	sink := processor.SinkFunc(func(*processor.EventResult) error { return boom })
	p, err := processor.New(threadsOptions(), newGenerator(t).Source(5), sink)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestEventProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := processor.New(threadsOptions(), newGenerator(t).Source(5))
	require.NoError(t, err)
	sum, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Events)
}

func TestOptions(t *testing.T) {
	b, err := processor.ParseBackend("serial")
	require.NoError(t, err)
	assert.Equal(t, processor.BackendSerial, b)

	_, err = processor.ParseBackend("cuda")
	assert.Error(t, err)

	opts := threadsOptions()
	assert.Equal(t, 4, opts.GroupSize())
	opts.Backend = processor.BackendSerial
	assert.Equal(t, 1, opts.GroupSize())

	opts.Streams = 0
	assert.Error(t, opts.Validate())

	_, err = processor.New(threadsOptions(), nil)
	assert.Error(t, err)
}
