package processor

import (
	"expvar"

	"tailscale.com/metrics"
)

// Counters are published through expvar and served in Prometheus format by
// the tsweb debug handler at /debug/varz.
var (
	jobsProcessed = &metrics.LabelMap{Label: "backend"}
	jobFailures   = &metrics.LabelMap{Label: "backend"}
	tracksSeen    = &metrics.LabelMap{Label: "backend"}
	verticesFound = &metrics.LabelMap{Label: "backend"}
	noiseTracks   = &metrics.LabelMap{Label: "backend"}
	jobNanos      = &metrics.LabelMap{Label: "backend"}
)

func init() {
	expvar.Publish("counter_vertexfinder_jobs", jobsProcessed)
	expvar.Publish("counter_vertexfinder_job_failures", jobFailures)
	expvar.Publish("counter_vertexfinder_tracks", tracksSeen)
	expvar.Publish("counter_vertexfinder_vertices", verticesFound)
	expvar.Publish("counter_vertexfinder_noise_tracks", noiseTracks)
	expvar.Publish("counter_vertexfinder_job_nanoseconds", jobNanos)
}

func recordJob(backend string, r *EventResult) {
	noise := 0
	for i := range r.Result.Assignment {
		if r.Result.IsNoise(i) {
			noise++
		}
	}
	jobsProcessed.Add(backend, 1)
	tracksSeen.Add(backend, int64(len(r.Event.Tracks)))
	verticesFound.Add(backend, int64(r.Result.Count))
	noiseTracks.Add(backend, int64(noise))
	jobNanos.Add(backend, r.Duration.Nanoseconds())
}
