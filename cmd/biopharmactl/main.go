package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"biopharma/internal/storage"
	bioapi "biopharma/pkg/biopharma"
)

const version = "0.1.0"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "optimise":
		return runOptimise(ctx, args[1:])
	case "sensitivity":
		return runSensitivity(ctx, args[1:])
	case "experiments":
		return runExperiments(ctx, args[1:])
	case "version":
		fmt.Printf("biopharmactl %s\n", version)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "biopharma.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := bioapi.New(bioapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runOptimise(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimise", flag.ContinueOnError)
	configPath := fs.String("config", "", "optimisation config JSON path")
	outPath := fs.String("out", "", "write the results YAML document here instead of stdout")
	dataPath := fs.String("data-path", "", "facility data directory holding parameter files")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "biopharma.db", "sqlite database path")
	quiet := fs.Bool("quiet", false, "suppress run progress logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("optimise requires -config")
	}

	req, err := loadOptimisationRequest(*configPath)
	if err != nil {
		return err
	}

	client, logger, err := newClient(*storeKind, *dbPath, *dataPath, *quiet)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.RunOptimisation(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("optimisation completed experiment_id=%s seed=[%d,%d]\n",
		summary.ExperimentID, summary.Seed[0], summary.Seed[1])
	for i, values := range summary.BestObjectiveValues {
		fmt.Printf("best individual=%d objectives=%v\n", i, values)
	}

	if *outPath == "" {
		_, err = os.Stdout.Write(summary.ResultsYAML)
		return err
	}
	if err := os.WriteFile(*outPath, summary.ResultsYAML, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	fmt.Printf("results written to %s\n", *outPath)
	return nil
}

func runSensitivity(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sensitivity", flag.ContinueOnError)
	configPath := fs.String("config", "", "sensitivity config JSON path")
	dataPath := fs.String("data-path", "", "facility data directory holding parameter files")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "biopharma.db", "sqlite database path")
	quiet := fs.Bool("quiet", false, "suppress run progress logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("sensitivity requires -config")
	}

	req, err := loadSensitivityRequest(*configPath)
	if err != nil {
		return err
	}

	client, logger, err := newClient(*storeKind, *dbPath, *dataPath, *quiet)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.RunSensitivity(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("sensitivity completed experiment_id=%s seed=[%d,%d] failed_runs=%d\n",
		summary.ExperimentID, summary.Seed[0], summary.Seed[1], summary.FailedRuns)
	names := make([]string, 0, len(summary.Outputs))
	for name := range summary.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := summary.Outputs[name]
		fmt.Printf("output=%s unit=%s min=%.6f max=%.6f avg=%.6f var=%.6f samples=%d\n",
			name, stats.Unit, stats.Min, stats.Max, stats.Avg, stats.Var, stats.NSamples)
	}
	return nil
}

func runExperiments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("experiments", flag.ContinueOnError)
	id := fs.String("id", "", "show a single experiment by id")
	jsonOut := fs.Bool("json", false, "emit experiments as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "biopharma.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := bioapi.New(bioapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	if *id != "" {
		record, ok, err := client.Experiment(ctx, *id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("experiment not found: %s", *id)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	records, err := client.Experiments(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no experiments found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, record := range records {
		fmt.Printf("experiment_id=%s kind=%s created_at=%s seed=[%d,%d]\n",
			record.ID, record.Kind, record.CreatedAtUTC, record.Seed[0], record.Seed[1])
	}
	return nil
}

func newClient(storeKind, dbPath, dataPath string, quiet bool) (*bioapi.Client, *zap.Logger, error) {
	logger := zap.NewNop()
	if !quiet {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
	}
	client, err := bioapi.New(bioapi.Options{
		StoreKind: storeKind,
		DBPath:    dbPath,
		DataPath:  dataPath,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: biopharmactl <init|optimise|sensitivity|experiments|version> [flags]", msg)
}
