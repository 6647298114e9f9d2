package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/violatingcp/pixeltrack-standalone/internal/processor"
)

// maxReportedFailures caps the per-event failures kept for the report.
const maxReportedFailures = 20

// CountValidator checks every processed event and accumulates vertex
// counts. It implements processor.Sink.
type CountValidator struct {
	mu       sync.Mutex
	events   int
	failed   int
	failures []error
	found    []float64
	truth    []float64
}

// NewCountValidator creates an empty CountValidator.
func NewCountValidator() *CountValidator {
	return &CountValidator{}
}

// Consume validates one event. Violations are recorded, not returned, so
// the run continues and the report lists every failing event.
func (v *CountValidator) Consume(r *processor.EventResult) error {
	err := Check(r.Event.Tracks, r.Params, r.Result)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.events++
	if err != nil {
		v.failed++
		if len(v.failures) < maxReportedFailures {
			v.failures = append(v.failures, fmt.Errorf("event %d: %w", r.Event.ID, err))
		}
	}
	v.found = append(v.found, float64(r.Result.Count))
	v.truth = append(v.truth, float64(len(r.Event.TrueZ)))
	return nil
}

// Err returns the recorded failures, or nil if every event passed.
func (v *CountValidator) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d events failed validation: %w", v.failed, v.events, errors.Join(v.failures...))
}

// Report summarises the validated events.
func (v *CountValidator) Report() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "CountValidator: %d events, %d failed\n", v.events, v.failed)
	if v.events == 0 {
		return b.String()
	}
	meanFound, sdFound := stat.MeanStdDev(v.found, nil)
	fmt.Fprintf(&b, "  vertices per event: mean %.2f, std dev %.2f\n", meanFound, sdFound)

	if hasTruth(v.truth) {
		meanTruth := stat.Mean(v.truth, nil)
		fmt.Fprintf(&b, "  generated vertices per event: mean %.2f, found/generated %.3f\n",
			meanTruth, meanFound/meanTruth)
		fmt.Fprintf(&b, "  correlation found vs generated: %.3f\n", stat.Correlation(v.found, v.truth, nil))
	}

	sorted := append([]float64(nil), v.found...)
	sort.Float64s(sorted)
	fmt.Fprintf(&b, "  vertices per event: min %.0f, median %.0f, max %.0f\n",
		sorted[0], stat.Quantile(0.5, stat.Empirical, sorted, nil), sorted[len(sorted)-1])
	return b.String()
}

func hasTruth(truth []float64) bool {
	for _, t := range truth {
		if t > 0 {
			return true
		}
	}
	return false
}

var _ processor.Sink = (*CountValidator)(nil)
