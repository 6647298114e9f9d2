package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/violatingcp/pixeltrack-standalone/internal/events"
	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

// DefaultConfigPath is the path to the canonical vertexing defaults file.
const DefaultConfigPath = "config/vertexing.defaults.json"

// Default values used when a field is absent from the configuration.
const (
	DefaultBackend      = "threads"
	DefaultStreams      = 1
	DefaultInnerThreads = 4
	DefaultMaxEvents    = -1
	// SyntheticEvents is the number of generated events when MaxEvents is -1.
	SyntheticEvents = 1000
)

// VertexingConfig is the root configuration of the vertex finder. All
// fields are optional; the Get* methods supply defaults for absent ones.
type VertexingConfig struct {
	// Clustering params
	MinNeighbors      *int     `json:"min_neighbors,omitempty"`
	Eps               *float64 `json:"eps,omitempty"`
	ErrMax            *float64 `json:"errmax,omitempty"`
	Chi2Max           *float64 `json:"chi2max,omitempty"`
	BinWidth          *float64 `json:"bin_width,omitempty"`
	OrderByZ          *bool    `json:"order_by_z,omitempty"`
	ConsistencyChecks *bool    `json:"consistency_checks,omitempty"`

	// Execution params
	Backend      *string `json:"backend,omitempty"` // "serial" or "threads"
	Streams      *int    `json:"streams,omitempty"`
	InnerThreads *int    `json:"inner_threads,omitempty"`
	MaxEvents    *int    `json:"max_events,omitempty"`

	// Synthetic event params
	Seed           *uint64  `json:"seed,omitempty"`
	MeanVertices   *float64 `json:"mean_vertices,omitempty"`
	MeanTracks     *float64 `json:"mean_tracks,omitempty"`
	BeamSpotSigmaZ *float64 `json:"beam_spot_sigma_z,omitempty"`
	FakeTrackFrac  *float64 `json:"fake_track_fraction,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyVertexingConfig returns a VertexingConfig with all fields unset.
func EmptyVertexingConfig() *VertexingConfig {
	return &VertexingConfig{}
}

// DefaultVertexingConfig returns a VertexingConfig with every field set to
// its default value.
func DefaultVertexingConfig() *VertexingConfig {
	gen := events.DefaultGeneratorConfig()
	return &VertexingConfig{
		MinNeighbors:      ptrInt(vertexing.DefaultMinNeighbors),
		Eps:               ptrFloat64(vertexing.DefaultEps),
		ErrMax:            ptrFloat64(vertexing.DefaultErrMax),
		Chi2Max:           ptrFloat64(vertexing.DefaultChi2Max),
		BinWidth:          ptrFloat64(vertexing.DefaultBinWidth),
		OrderByZ:          ptrBool(true),
		ConsistencyChecks: ptrBool(false),
		Backend:           ptrString(DefaultBackend),
		Streams:           ptrInt(DefaultStreams),
		InnerThreads:      ptrInt(DefaultInnerThreads),
		MaxEvents:         ptrInt(DefaultMaxEvents),
		Seed:              ptrUint64(gen.Seed),
		MeanVertices:      ptrFloat64(gen.MeanVertices),
		MeanTracks:        ptrFloat64(gen.MeanTracks),
		BeamSpotSigmaZ:    ptrFloat64(gen.BeamSpotSigmaZ),
		FakeTrackFrac:     ptrFloat64(gen.FakeTrackFrac),
	}
}

// LoadVertexingConfig loads a VertexingConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadVertexingConfig(path string) (*VertexingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyVertexingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *VertexingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadVertexingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set fields hold usable values.
func (c *VertexingConfig) Validate() error {
	if c.MinNeighbors != nil && *c.MinNeighbors < 0 {
		return fmt.Errorf("min_neighbors must be non-negative, got %d", *c.MinNeighbors)
	}
	if c.Eps != nil && *c.Eps <= 0 {
		return fmt.Errorf("eps must be positive, got %f", *c.Eps)
	}
	if c.ErrMax != nil && *c.ErrMax < 0 {
		return fmt.Errorf("errmax must be non-negative, got %f", *c.ErrMax)
	}
	if c.Chi2Max != nil && *c.Chi2Max < 0 {
		return fmt.Errorf("chi2max must be non-negative, got %f", *c.Chi2Max)
	}
	if c.BinWidth != nil && *c.BinWidth <= 0 {
		return fmt.Errorf("bin_width must be positive, got %f", *c.BinWidth)
	}
	if c.Backend != nil && *c.Backend != "serial" && *c.Backend != "threads" {
		return fmt.Errorf("backend must be 'serial' or 'threads', got %q", *c.Backend)
	}
	if c.Streams != nil && *c.Streams < 0 {
		return fmt.Errorf("streams must be non-negative, got %d", *c.Streams)
	}
	if c.InnerThreads != nil && *c.InnerThreads < 1 {
		return fmt.Errorf("inner_threads must be at least 1, got %d", *c.InnerThreads)
	}
	if c.MaxEvents != nil && *c.MaxEvents < -1 {
		return fmt.Errorf("max_events must be -1 or non-negative, got %d", *c.MaxEvents)
	}
	if c.FakeTrackFrac != nil && (*c.FakeTrackFrac < 0 || *c.FakeTrackFrac > 1) {
		return fmt.Errorf("fake_track_fraction must be between 0 and 1, got %f", *c.FakeTrackFrac)
	}
	return nil
}

// GetMinNeighbors returns the min_neighbors value or the default.
func (c *VertexingConfig) GetMinNeighbors() int {
	if c.MinNeighbors == nil {
		return vertexing.DefaultMinNeighbors
	}
	return *c.MinNeighbors
}

// GetEps returns the eps value or the default.
func (c *VertexingConfig) GetEps() float64 {
	if c.Eps == nil {
		return vertexing.DefaultEps
	}
	return *c.Eps
}

// GetErrMax returns the errmax value or the default.
func (c *VertexingConfig) GetErrMax() float64 {
	if c.ErrMax == nil {
		return vertexing.DefaultErrMax
	}
	return *c.ErrMax
}

// GetChi2Max returns the chi2max value or the default.
func (c *VertexingConfig) GetChi2Max() float64 {
	if c.Chi2Max == nil {
		return vertexing.DefaultChi2Max
	}
	return *c.Chi2Max
}

// GetBinWidth returns the bin_width value or the default.
func (c *VertexingConfig) GetBinWidth() float64 {
	if c.BinWidth == nil {
		return vertexing.DefaultBinWidth
	}
	return *c.BinWidth
}

// GetOrderByZ returns the order_by_z value or the default.
func (c *VertexingConfig) GetOrderByZ() bool {
	if c.OrderByZ == nil {
		return true
	}
	return *c.OrderByZ
}

// GetConsistencyChecks returns the consistency_checks value or the default.
func (c *VertexingConfig) GetConsistencyChecks() bool {
	if c.ConsistencyChecks == nil {
		return false
	}
	return *c.ConsistencyChecks
}

// GetBackend returns the backend value or the default.
func (c *VertexingConfig) GetBackend() string {
	if c.Backend == nil || *c.Backend == "" {
		return DefaultBackend
	}
	return *c.Backend
}

// GetStreams returns the streams value or the default. Zero means one.
func (c *VertexingConfig) GetStreams() int {
	if c.Streams == nil || *c.Streams == 0 {
		return DefaultStreams
	}
	return *c.Streams
}

// GetInnerThreads returns the inner_threads value or the default.
func (c *VertexingConfig) GetInnerThreads() int {
	if c.InnerThreads == nil {
		return DefaultInnerThreads
	}
	return *c.InnerThreads
}

// GetMaxEvents returns the max_events value or the default.
func (c *VertexingConfig) GetMaxEvents() int {
	if c.MaxEvents == nil {
		return DefaultMaxEvents
	}
	return *c.MaxEvents
}

// Params converts the clustering fields to vertexing.Params.
func (c *VertexingConfig) Params() vertexing.Params {
	return vertexing.Params{
		MinNeighbors: c.GetMinNeighbors(),
		Eps:          float32(c.GetEps()),
		ErrMax:       float32(c.GetErrMax()),
		Chi2Max:      float32(c.GetChi2Max()),
		BinWidth:     float32(c.GetBinWidth()),
		OrderByZ:     c.GetOrderByZ(),
	}
}

// GeneratorConfig converts the synthetic event fields, starting from the
// generator defaults.
func (c *VertexingConfig) GeneratorConfig() events.GeneratorConfig {
	gen := events.DefaultGeneratorConfig()
	if c.Seed != nil {
		gen.Seed = *c.Seed
	}
	if c.MeanVertices != nil {
		gen.MeanVertices = *c.MeanVertices
	}
	if c.MeanTracks != nil {
		gen.MeanTracks = *c.MeanTracks
	}
	if c.BeamSpotSigmaZ != nil {
		gen.BeamSpotSigmaZ = *c.BeamSpotSigmaZ
	}
	if c.FakeTrackFrac != nil {
		gen.FakeTrackFrac = *c.FakeTrackFrac
	}
	return gen
}
