package main

import (
	"bytes"
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/violatingcp/pixeltrack-standalone/internal/config"
	"github.com/violatingcp/pixeltrack-standalone/internal/db"
	"github.com/violatingcp/pixeltrack-standalone/internal/report"
)

// resetFlags restores every command-line flag to its default after t.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		flag.VisitAll(func(f *flag.Flag) {
			// Leave the testing package's own flags (test.*) alone.
			if strings.HasPrefix(f.Name, "test.") {
				return
			}
			_ = f.Value.Set(f.DefValue)
		})
		// Set marks flags as visited; a fresh FlagSet forgets that.
		fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		flag.VisitAll(func(f *flag.Flag) { fs.Var(f.Value, f.Name, f.Usage) })
		flag.CommandLine = fs
	})
}

func TestFlagDefaults(t *testing.T) {
	assert.False(t, *serialBackend)
	assert.False(t, *threadsBackend)
	assert.Equal(t, 1, *numberOfThreads)
	assert.Equal(t, 0, *numberOfStreams)
	assert.Equal(t, -1, *maxEvents)
	assert.Equal(t, "histograms", *histogramDir)
}

func TestOverrideConfig(t *testing.T) {
	resetFlags(t)
	require.NoError(t, flag.Set("serial", "true"))
	require.NoError(t, flag.Set("numberOfThreads", "6"))
	require.NoError(t, flag.Set("maxEvents", "25"))
	require.NoError(t, flag.Set("seed", "9"))
	require.NoError(t, flag.Set("checks", "true"))

	cfg := config.DefaultVertexingConfig()
	require.NoError(t, overrideConfig(cfg, flag.CommandLine))

	assert.Equal(t, "serial", cfg.GetBackend())
	assert.Equal(t, 6, cfg.GetStreams(), "streams follow numberOfThreads")
	assert.Equal(t, 25, cfg.GetMaxEvents())
	assert.Equal(t, uint64(9), cfg.GeneratorConfig().Seed)
	assert.True(t, cfg.GetConsistencyChecks())
	// Not set on the command line.
	assert.Equal(t, config.DefaultInnerThreads, cfg.GetInnerThreads())
}

func TestOverrideConfigStreams(t *testing.T) {
	resetFlags(t)
	require.NoError(t, flag.Set("numberOfThreads", "6"))
	require.NoError(t, flag.Set("numberOfStreams", "2"))
	require.NoError(t, flag.Set("numberOfInnerThreads", "3"))

	cfg := config.DefaultVertexingConfig()
	require.NoError(t, overrideConfig(cfg, flag.CommandLine))
	assert.Equal(t, 2, cfg.GetStreams())
	assert.Equal(t, 3, cfg.GetInnerThreads())
}

func TestOverrideConfigConflicts(t *testing.T) {
	resetFlags(t)
	require.NoError(t, flag.Set("serial", "true"))
	require.NoError(t, flag.Set("threads", "true"))
	assert.Error(t, overrideConfig(config.DefaultVertexingConfig(), flag.CommandLine))
}

func testPipeline(t *testing.T, events int) (*pipeline, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultVertexingConfig()
	n := events
	streams := 2
	cfg.MaxEvents = &n
	cfg.Streams = &streams
	mean := 10.0
	cfg.MeanVertices = &mean

	var out bytes.Buffer
	return &pipeline{
		cfg:        cfg,
		validation: true,
		collector:  report.NewCollector(),
		out:        &out,
	}, &out
}

func TestPipelineRun(t *testing.T) {
	pl, out := testPipeline(t, 12)
	pl.histogram = true
	pl.histDir = filepath.Join(t.TempDir(), "hist")

	store, err := db.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()
	pl.store = store

	summary, err := pl.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Events)
	assert.Contains(t, out.String(), "Processed 12 events")
	assert.Contains(t, out.String(), "CountValidator: 12 events, 0 failed")

	assert.FileExists(t, filepath.Join(pl.histDir, "report.html"))
	assert.FileExists(t, filepath.Join(pl.histDir, "vertices_per_event.png"))

	runs, err := store.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 12, runs[0].Events)
	assert.Empty(t, runs[0].Error)
	evs, err := store.RunEvents(runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, evs, 12)
}

func TestPipelineCancelled(t *testing.T) {
	pl, _ := testPipeline(t, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pl.run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServeMux(t *testing.T) {
	pl, _ := testPipeline(t, 4)
	_, err := pl.run(context.Background())
	require.NoError(t, err)

	mux, err := newServeMux(pl.collector, nil, pl.cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vertices per event")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/varz", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vertexfinder_jobs")
}

func TestServeMuxWithStore(t *testing.T) {
	pl, _ := testPipeline(t, 3)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	defer store.Close()
	pl.store = store
	_, err = pl.run(context.Background())
	require.NoError(t, err)

	mux, err := newServeMux(pl.collector, store, pl.cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":3`)
}
