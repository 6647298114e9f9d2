// Package api serves the recorded runs as JSON.
package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/violatingcp/pixeltrack-standalone/internal/config"
	"github.com/violatingcp/pixeltrack-standalone/internal/db"
	"github.com/violatingcp/pixeltrack-standalone/internal/httputil"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// DefaultRunLimit is the number of runs listed when no limit is given.
const DefaultRunLimit = 100

type Server struct {
	db  *db.DB
	cfg *config.VertexingConfig
}

func NewServer(db *db.DB, cfg *config.VertexingConfig) *Server {
	return &Server{db: db, cfg: cfg}
}

// ParamsAPI is the JSON form of the clustering parameters.
type ParamsAPI struct {
	MinNeighbors int     `json:"min_neighbors"`
	Eps          float32 `json:"eps"`
	ErrMax       float32 `json:"errmax"`
	Chi2Max      float32 `json:"chi2max"`
	BinWidth     float32 `json:"bin_width"`
	OrderByZ     bool    `json:"order_by_z"`
}

// RunAPI is the JSON form of db.Run.
type RunAPI struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Backend      string     `json:"backend"`
	Streams      int        `json:"streams"`
	InnerThreads int        `json:"inner_threads"`
	Params       ParamsAPI  `json:"params"`
	Seed         uint64     `json:"seed"`
	Version      string     `json:"version"`
	Events       int        `json:"events"`
	Tracks       int        `json:"tracks"`
	Vertices     int        `json:"vertices"`
	WallSeconds  float64    `json:"wall_seconds"`
	Throughput   float64    `json:"events_per_second"`
	Error        string     `json:"error,omitempty"`
}

// RunToAPI converts a stored run.
func RunToAPI(r db.Run) RunAPI {
	out := RunAPI{
		ID:           r.ID,
		StartedAt:    r.StartedAt.UTC(),
		Backend:      r.Backend,
		Streams:      r.Streams,
		InnerThreads: r.InnerThreads,
		Params: ParamsAPI{
			MinNeighbors: r.Params.MinNeighbors,
			Eps:          r.Params.Eps,
			ErrMax:       r.Params.ErrMax,
			Chi2Max:      r.Params.Chi2Max,
			BinWidth:     r.Params.BinWidth,
			OrderByZ:     r.Params.OrderByZ,
		},
		Seed:        r.Seed,
		Version:     r.Version,
		Events:      r.Events,
		Tracks:      r.Tracks,
		Vertices:    r.Vertices,
		WallSeconds: r.Wall.Seconds(),
		Error:       r.Error,
	}
	if r.FinishedAt != nil {
		t := r.FinishedAt.UTC()
		out.FinishedAt = &t
	}
	if r.Wall > 0 {
		out.Throughput = float64(r.Events) / r.Wall.Seconds()
	}
	return out
}

// EventAPI is the JSON form of db.EventRecord.
type EventAPI struct {
	EventID      int     `json:"event_id"`
	Stream       int     `json:"stream"`
	Tracks       int     `json:"tracks"`
	Vertices     int     `json:"vertices"`
	NoiseTracks  int     `json:"noise_tracks"`
	TrueVertices int     `json:"true_vertices"`
	DurationMs   float64 `json:"duration_ms"`
}

// VertexAPI is the JSON form of db.VertexRecord.
type VertexAPI struct {
	ID     int     `json:"id"`
	Z      float64 `json:"z"`
	EZ2    float64 `json:"ez2"`
	Chi2   float64 `json:"chi2"`
	NDof   int     `json:"ndof"`
	Tracks int     `json:"tracks"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{run}", s.showRun)
	mux.HandleFunc("GET /api/runs/{run}/events", s.listEvents)
	mux.HandleFunc("GET /api/runs/{run}/events/{event}/vertices", s.listVertices)
}

// ServeMux returns a mux holding only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg
	if cfg == nil {
		cfg = config.DefaultVertexingConfig()
	}
	httputil.WriteJSONOK(w, cfg)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.Runs(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	out := make([]RunAPI, len(runs))
	for i, run := range runs {
		out[i] = RunToAPI(run)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.Run(r.PathValue("run"))
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}
	httputil.WriteJSONOK(w, RunToAPI(*run))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run")
	if _, err := s.db.Run(runID); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	evs, err := s.db.RunEvents(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	out := make([]EventAPI, len(evs))
	for i, e := range evs {
		out[i] = EventAPI{
			EventID:      e.EventID,
			Stream:       e.Stream,
			Tracks:       e.Tracks,
			Vertices:     e.Vertices,
			NoiseTracks:  e.NoiseTracks,
			TrueVertices: e.TrueVertices,
			DurationMs:   float64(e.Duration.Microseconds()) / 1000,
		}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listVertices(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.Atoi(r.PathValue("event"))
	if err != nil || eventID < 0 {
		httputil.BadRequest(w, "Invalid event id")
		return
	}
	verts, err := s.db.EventVertices(r.PathValue("run"), eventID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve vertices: %v", err))
		return
	}
	out := make([]VertexAPI, len(verts))
	for i, v := range verts {
		out[i] = VertexAPI{ID: v.VertexID, Z: v.Z, EZ2: v.EZ2, Chi2: v.Chi2, NDof: v.NDof, Tracks: v.Tracks}
	}
	httputil.WriteJSONOK(w, out)
}
