// Command vertexfinder clusters synthetic pile-up events into primary
// vertices and reports throughput.
//
// Usage:
//
//	vertexfinder [flags] [run|serve|migrate <action>|version|help]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/violatingcp/pixeltrack-standalone/internal/config"
	"github.com/violatingcp/pixeltrack-standalone/internal/db"
	"github.com/violatingcp/pixeltrack-standalone/internal/monitoring"
	"github.com/violatingcp/pixeltrack-standalone/internal/report"
	"github.com/violatingcp/pixeltrack-standalone/internal/version"
)

var (
	configFile           = flag.String("config", "", "Path to a JSON vertexing config (defaults are built in)")
	serialBackend        = flag.Bool("serial", false, "Run every job on a single goroutine")
	threadsBackend       = flag.Bool("threads", false, "Run every job on --numberOfInnerThreads cooperating goroutines")
	numberOfThreads      = flag.Int("numberOfThreads", 1, "Number of OS threads used (GOMAXPROCS)")
	numberOfStreams      = flag.Int("numberOfStreams", 0, "Number of concurrent jobs (0 = numberOfThreads)")
	numberOfInnerThreads = flag.Int("numberOfInnerThreads", config.DefaultInnerThreads, "Goroutines cooperating on one job")
	maxEvents            = flag.Int("maxEvents", config.DefaultMaxEvents, "Number of events to process (-1 = all)")
	seed                 = flag.Uint64("seed", 1, "Seed of the synthetic event generator")
	checks               = flag.Bool("checks", false, "Verify the cluster forest between passes")
	validationFlag       = flag.Bool("validation", false, "Validate every clustering result")
	histogram            = flag.Bool("histogram", false, "Write histograms at the end of the run")
	histogramDir         = flag.String("histogram-dir", "histograms", "Output directory for --histogram")
	dbPath               = flag.String("db", "", "SQLite database recording runs (empty = no recording)")
	listen               = flag.String("listen", ":8080", "Listen address for serve")
	verbose              = flag.Bool("verbose", false, "Log every job")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()
	monitoring.SetVerbose(*verbose)

	command := "run"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "run", "serve":
	case "migrate":
		path := *dbPath
		if path == "" {
			path = "vertexfinder.db"
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], path, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	case "version":
		fmt.Printf("vertexfinder %s\n", version.String())
		return
	case "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := execute(command); err != nil {
		log.Fatalf("vertexfinder: %v", err)
	}
}

// execute runs the run and serve commands.
func execute(command string) error {
	cfg := config.DefaultVertexingConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadVertexingConfig(*configFile); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := overrideConfig(cfg, flag.CommandLine); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if isSet(flag.CommandLine, "numberOfThreads") && *numberOfThreads > 0 {
		runtime.GOMAXPROCS(*numberOfThreads)
	}

	var store *db.DB
	if *dbPath != "" {
		var err error
		if store, err = db.NewDB(*dbPath); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pl := &pipeline{
		cfg:        cfg,
		validation: *validationFlag,
		histogram:  *histogram,
		histDir:    *histogramDir,
		store:      store,
		collector:  report.NewCollector(),
		out:        os.Stdout,
	}
	if command == "serve" {
		return serve(ctx, pl, *listen)
	}
	_, err := pl.run(ctx)
	return err
}

// overrideConfig copies the explicitly set flags of fs into cfg.
func overrideConfig(cfg *config.VertexingConfig, fs *flag.FlagSet) error {
	if *serialBackend && *threadsBackend {
		return fmt.Errorf("--serial and --threads are mutually exclusive")
	}
	if *serialBackend {
		cfg.Backend = stringPtr("serial")
	}
	if *threadsBackend {
		cfg.Backend = stringPtr("threads")
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "numberOfStreams":
			if *numberOfStreams > 0 {
				cfg.Streams = intPtr(*numberOfStreams)
			}
		case "numberOfThreads":
			if !isSet(fs, "numberOfStreams") || *numberOfStreams == 0 {
				cfg.Streams = intPtr(*numberOfThreads)
			}
		case "numberOfInnerThreads":
			cfg.InnerThreads = intPtr(*numberOfInnerThreads)
		case "maxEvents":
			cfg.MaxEvents = intPtr(*maxEvents)
		case "seed":
			v := *seed
			cfg.Seed = &v
		case "checks":
			v := *checks
			cfg.ConsistencyChecks = &v
		}
	})
	return cfg.Validate()
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }

func printUsage() {
	fmt.Fprintf(os.Stderr, `vertexfinder - parallel DBSCAN primary vertex finder

Usage: vertexfinder [flags] [command]

Commands:
  run               Cluster the events and print the throughput (default)
  serve             Run, then keep serving /report and /debug/ until interrupted
  migrate <action>  Manage the --db schema (up, down, status, force, help)
  version           Show the version
  help              Show this help

Flags:
`)
	flag.PrintDefaults()
}
