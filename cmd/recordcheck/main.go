package main

// #region imports
import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"recordcheck/internal/cache"
	"recordcheck/internal/checks"
	"recordcheck/internal/config"
	"recordcheck/internal/diffdetect"
	"recordcheck/internal/fetch"
	"recordcheck/internal/orchestrator"
	"recordcheck/internal/persist"
	"recordcheck/internal/record"
	"recordcheck/internal/revstore"
	"recordcheck/internal/sampling"
	"recordcheck/internal/validator"
)

// #endregion

// #region main
func main() {
	cfgPath := flag.String("config", envOr("RECORDCHECK_CONFIG", ""), "path to YAML config")
	recordsPath := flag.String("records", "records.json", "path to records JSON file")
	diffMode := flag.Bool("diff", false, "diff-targeted run: validate exactly what changed since the last revision")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	records, err := loadRecords(*recordsPath)
	if err != nil {
		log.Fatalf("failed to load records: %v", err)
	}

	// Revision store and persistence sink share one database.
	store, err := revstore.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	sink, err := persist.NewStore(store.DB())
	if err != nil {
		log.Fatalf("failed to init persistence: %v", err)
	}

	urlCache, err := cache.New(cfg.CacheDir, cfg.CacheTTLDays)
	if err != nil {
		log.Fatalf("failed to init cache: %v", err)
	}
	fetcher := fetch.NewClient(cfg.FetchConfig(), urlCache, nil)

	registry := validator.NewRegistry()
	mustRegister(registry, checks.NewScoreBounds())
	mustRegister(registry, &checks.SourceConsistency{})
	mustRegister(registry, &checks.CitationFormat{})
	mustRegister(registry, checks.NewCitationReachability(fetcher, cfg.CostPerFetchUSD))
	// checks.NarrativeConsistency needs a concrete Judge client; register
	// it here once one is available.
	for name, on := range cfg.Enabled {
		registry.SetEnabled(name, on)
	}

	fromRev, err := store.LatestRevision()
	if err != nil {
		log.Fatalf("failed to read latest revision: %v", err)
	}

	rev, err := store.BeginRevision(fromRev, "batch validation")
	if err != nil {
		log.Fatalf("failed to begin revision: %v", err)
	}
	if err := store.SnapshotRecords(rev, records); err != nil {
		log.Fatalf("failed to snapshot records: %v", err)
	}

	var detector *diffdetect.Detector
	if *diffMode {
		if fromRev == "" {
			log.Fatalf("diff mode requires a prior revision in %s", cfg.DBPath)
		}
		detector = diffdetect.NewDetector(store, cfg.Diff)
	}

	sampler := sampling.NewEngine(cfg.SamplingConfig(), nil)
	orch := orchestrator.New(cfg.OrchestratorConfig(), registry, sampler, detector, sink, sink)

	// Interrupt cancels cooperatively between records; the partial
	// report still prints.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report := orch.Run(ctx, orchestrator.RunRequest{
		Records:      records,
		FromRevision: fromRev,
		RevisionID:   rev,
	})

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal report: %v", err)
	}
	fmt.Println(string(out))
	log.Printf("cache hit rate: %.2f", urlCache.HitRate())
}

// #endregion main

// #region helpers
func loadRecords(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func mustRegister(r *validator.Registry, v validator.Validator) {
	if err := r.Register(v); err != nil {
		log.Fatalf("failed to register validator: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
