package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"salesdwh/internal/config"
	"salesdwh/internal/metrics"
	"salesdwh/internal/metrics/datadog"
	"salesdwh/internal/pipeline"
	"salesdwh/internal/source"
	"salesdwh/internal/warehouse"

	// register all backends with the warehouse factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "salesdwh/internal/warehouse/all"
)

// main is the entry point for the load binary. It loads the pipeline config,
// optionally initializes a metrics backend, connects the operational source
// and the warehouse, and executes one load run.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/sample.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default (none).
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		jobName := p.Job
		if jobName == "" {
			jobName = "salesdwh_load"
		}
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: jobName,
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			metrics.SetBackend(b)
			// Close stops the periodic flush loop and performs a final Flush.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("pipeline: source=%s parser=%s warehouse=%s",
			p.Source.Kind, p.Parser.Kind, p.Warehouse.Kind)
	}

	src, err := source.Connect(ctx, p.OLTP.DSN)
	if err != nil {
		log.Fatalf("connect oltp: %v", err)
	}
	defer src.Close()

	repo, err := warehouse.New(ctx, warehouse.Config{
		Kind:      p.Warehouse.Kind,
		DSN:       p.Warehouse.DSN,
		BatchSize: p.Runtime.BatchSize,
	})
	if err != nil {
		log.Fatalf("connect warehouse: %v", err)
	}
	defer repo.Close()

	r := &pipeline.Runner{Source: src, Repo: repo, Logger: log.Default()}
	rep, err := r.Run(ctx, p)
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("summary rows_read=%d rows_kept=%d rows_dropped=%d quarantined=%d facts=%d written=%d",
		rep.Cleanse.Total, rep.Cleanse.Kept, rep.Cleanse.Dropped(), rep.Resolve.Dropped(), rep.FactRows, rep.FactsWritten)

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
