package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/violatingcp/pixeltrack-standalone/internal/config"
	"github.com/violatingcp/pixeltrack-standalone/internal/db"
	"github.com/violatingcp/pixeltrack-standalone/internal/events"
	"github.com/violatingcp/pixeltrack-standalone/internal/monitoring"
	"github.com/violatingcp/pixeltrack-standalone/internal/processor"
	"github.com/violatingcp/pixeltrack-standalone/internal/report"
	"github.com/violatingcp/pixeltrack-standalone/internal/validation"
	"github.com/violatingcp/pixeltrack-standalone/internal/version"
)

// pipeline wires the event source, the processor and the optional sinks
// for one run.
type pipeline struct {
	cfg        *config.VertexingConfig
	validation bool
	histogram  bool
	histDir    string
	store      *db.DB            // nil disables recording
	collector  *report.Collector // nil disables histograms
	out        io.Writer
}

func processorOptions(cfg *config.VertexingConfig) (processor.Options, error) {
	backend, err := processor.ParseBackend(cfg.GetBackend())
	if err != nil {
		return processor.Options{}, err
	}
	return processor.Options{
		Backend:           backend,
		Streams:           cfg.GetStreams(),
		InnerThreads:      cfg.GetInnerThreads(),
		ConsistencyChecks: cfg.GetConsistencyChecks(),
		Params:            cfg.Params(),
	}, nil
}

// run processes every event and prints the summary. A validation failure
// is returned as an error after the summary and the histograms are written.
func (pl *pipeline) run(ctx context.Context) (processor.Summary, error) {
	opts, err := processorOptions(pl.cfg)
	if err != nil {
		return processor.Summary{}, err
	}
	gen, err := events.NewGenerator(pl.cfg.GeneratorConfig())
	if err != nil {
		return processor.Summary{}, err
	}
	n := pl.cfg.GetMaxEvents()
	if n < 0 {
		n = config.SyntheticEvents
	}

	var sinks []processor.Sink
	var validator *validation.CountValidator
	if pl.validation {
		validator = validation.NewCountValidator()
		sinks = append(sinks, validator)
	}
	if pl.collector != nil {
		sinks = append(sinks, pl.collector)
	}
	var run *db.Run
	if pl.store != nil {
		run = &db.Run{
			Backend:      string(opts.Backend),
			Streams:      opts.Streams,
			InnerThreads: opts.GroupSize(),
			Params:       opts.Params,
			Seed:         pl.cfg.GeneratorConfig().Seed,
			Version:      version.String(),
		}
		if err := pl.store.CreateRun(run); err != nil {
			return processor.Summary{}, err
		}
		sinks = append(sinks, pl.store.Recorder(run.ID))
		monitoring.Logf("Recording run %s", run.ID)
	}

	proc, err := processor.New(opts, gen.Source(n), sinks...)
	if err != nil {
		return processor.Summary{}, err
	}
	summary, runErr := proc.Run(ctx)
	if run != nil {
		if err := pl.store.FinishRun(run.ID, summary, runErr); err != nil {
			monitoring.Logf("Failed to finish run %s: %v", run.ID, err)
		}
	}
	if runErr != nil {
		return summary, runErr
	}
	fmt.Fprintln(pl.out, summary)

	if pl.histogram && pl.collector != nil {
		if err := pl.writeHistograms(); err != nil {
			return summary, err
		}
	}
	if validator != nil {
		fmt.Fprint(pl.out, validator.Report())
		if err := validator.Err(); err != nil {
			return summary, fmt.Errorf("validation: %w", err)
		}
	}
	return summary, nil
}

func (pl *pipeline) writeHistograms() error {
	if _, err := pl.collector.WritePNG(pl.histDir); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(pl.histDir, "report.html"))
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := pl.collector.RenderHTML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
