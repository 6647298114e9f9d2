package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultVertexingConfig(t *testing.T) {
	cfg := DefaultVertexingConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, vertexing.DefaultParams(), cfg.Params())
	assert.Equal(t, "threads", cfg.GetBackend())
	assert.Equal(t, 1, cfg.GetStreams())
	assert.Equal(t, 4, cfg.GetInnerThreads())
	assert.Equal(t, -1, cfg.GetMaxEvents())
	assert.False(t, cfg.GetConsistencyChecks())
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	empty := EmptyVertexingConfig()
	def := DefaultVertexingConfig()

	assert.Equal(t, def.Params(), empty.Params())
	assert.Equal(t, def.GeneratorConfig(), empty.GeneratorConfig())
	assert.Equal(t, def.GetBackend(), empty.GetBackend())
	assert.Equal(t, def.GetStreams(), empty.GetStreams())
	assert.Equal(t, def.GetInnerThreads(), empty.GetInnerThreads())
	assert.Equal(t, def.GetMaxEvents(), empty.GetMaxEvents())
}

func TestLoadVertexingConfig(t *testing.T) {
	path := writeConfig(t, "cfg.json", `{
		"eps": 0.3,
		"min_neighbors": 3,
		"backend": "serial",
		"streams": 4,
		"seed": 42,
		"mean_vertices": 5
	}`)

	cfg, err := LoadVertexingConfig(path)
	require.NoError(t, err)

	p := cfg.Params()
	assert.Equal(t, float32(0.3), p.Eps)
	assert.Equal(t, 3, p.MinNeighbors)
	// Unset fields keep their defaults.
	assert.Equal(t, float32(vertexing.DefaultChi2Max), p.Chi2Max)
	assert.True(t, p.OrderByZ)

	assert.Equal(t, "serial", cfg.GetBackend())
	assert.Equal(t, 4, cfg.GetStreams())

	gen := cfg.GeneratorConfig()
	assert.Equal(t, uint64(42), gen.Seed)
	assert.Equal(t, 5.0, gen.MeanVertices)
	assert.Equal(t, 12.0, gen.MeanTracks)
}

func TestLoadVertexingConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "cfg.json", `{"eps": `, "parse config JSON"},
		{"negative eps", "cfg.json", `{"eps": -1}`, "eps must be positive"},
		{"unknown backend", "cfg.json", `{"backend": "gpu"}`, "backend must be"},
		{"zero inner threads", "cfg.json", `{"inner_threads": 0}`, "inner_threads"},
		{"max events", "cfg.json", `{"max_events": -2}`, "max_events"},
		{"fake fraction", "cfg.json", `{"fake_track_fraction": 1.5}`, "fake_track_fraction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadVertexingConfig(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadVertexingConfigMissingFile(t *testing.T) {
	_, err := LoadVertexingConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat config file")
}

func TestLoadVertexingConfigTooLarge(t *testing.T) {
	big := `{"eps": 0.07, "pad": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadVertexingConfig(writeConfig(t, "big.json", big))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestDefaultsFileMatchesCode(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	def := DefaultVertexingConfig()

	assert.Equal(t, def.Params(), cfg.Params())
	assert.Equal(t, def.GeneratorConfig(), cfg.GeneratorConfig())
	assert.Equal(t, def.GetBackend(), cfg.GetBackend())
	assert.Equal(t, def.GetStreams(), cfg.GetStreams())
	assert.Equal(t, def.GetInnerThreads(), cfg.GetInnerThreads())
	assert.Equal(t, def.GetMaxEvents(), cfg.GetMaxEvents())
}
