package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunRejectsMissingOrUnknownCommand(t *testing.T) {
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage error, got %v", err)
	}
	err = run(context.Background(), []string{"optimize"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	if err := run(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
}

func TestOptimiseRequiresConfig(t *testing.T) {
	err := run(context.Background(), []string{"optimise", "-store", "memory"})
	if err == nil || !strings.Contains(err.Error(), "-config") {
		t.Fatalf("expected config requirement error, got %v", err)
	}
}

func TestSensitivityRequiresConfig(t *testing.T) {
	err := run(context.Background(), []string{"sensitivity", "-store", "memory"})
	if err == nil || !strings.Contains(err.Error(), "-config") {
		t.Fatalf("expected config requirement error, got %v", err)
	}
}

func TestOptimiseCommandWritesResults(t *testing.T) {
	base := t.TempDir()
	configPath := writeConfig(t, "optimise.json", `{
  "population": 8,
  "generations": 2,
  "seed": [5, 9],
  "variables": [
    {"step": "Chromatography", "item": "yield", "min": "0.6", "max": "0.95", "continuous": true}
  ],
  "objectives": [
    {"item": "totalCost", "direction": "minimise"}
  ]
}`)
	outPath := filepath.Join(base, "results.yaml")

	err := run(context.Background(), []string{
		"optimise",
		"-config", configPath,
		"-store", "memory",
		"-out", outPath,
		"-quiet",
	})
	if err != nil {
		t.Fatalf("optimise command: %v", err)
	}

	results, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	if !strings.Contains(string(results), "seed:") {
		t.Fatalf("expected results document with seed, got:\n%s", results)
	}
}

func TestSensitivityCommandRuns(t *testing.T) {
	configPath := writeConfig(t, "sensitivity.json", `{
  "samples": 20,
  "seed": [13, 17],
  "variables": [
    {
      "step": "Bioreactor",
      "item": "titre",
      "distribution": {"kind": "uniform", "min": "2 g/L", "max": "3 g/L"}
    }
  ],
  "outputs": [
    {"name": "totalCost", "item": "totalCost"}
  ]
}`)

	err := run(context.Background(), []string{
		"sensitivity",
		"-config", configPath,
		"-store", "memory",
		"-quiet",
	})
	if err != nil {
		t.Fatalf("sensitivity command: %v", err)
	}
}

func TestExperimentsCommandEmptyStore(t *testing.T) {
	if err := run(context.Background(), []string{"experiments", "-store", "memory"}); err != nil {
		t.Fatalf("experiments command: %v", err)
	}
	err := run(context.Background(), []string{"experiments", "-store", "memory", "-id", "missing"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
