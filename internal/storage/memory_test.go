package storage

import (
	"context"
	"testing"

	"biopharma/internal/model"
)

func testRecord(id, createdAt string) model.ExperimentRecord {
	return model.ExperimentRecord{
		VersionedRecord:     model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:                  id,
		Kind:                model.KindOptimisation,
		CreatedAtUTC:        createdAt,
		Seed:                [2]uint64{7, 11},
		PopulationSize:      20,
		Generations:         10,
		Objectives:          []model.ObjectiveRecord{{Target: "facility[totalCost]", Direction: "minimise", Weight: 1}},
		BestObjectiveValues: [][]float64{{42.5}},
		ResultsYAML:         []byte("seed: [7, 11]\n"),
	}
}

func TestMemoryStoreExperimentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := testRecord("exp-1", "2026-01-02T03:04:05Z")
	if err := store.SaveExperiment(ctx, input); err != nil {
		t.Fatalf("save experiment: %v", err)
	}

	output, ok, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted experiment")
	}
	if output.Kind != model.KindOptimisation || output.Seed != [2]uint64{7, 11} {
		t.Fatalf("unexpected experiment: %+v", output)
	}
	if len(output.BestObjectiveValues) != 1 || output.BestObjectiveValues[0][0] != 42.5 {
		t.Fatalf("unexpected best values: %v", output.BestObjectiveValues)
	}
}

func TestMemoryStoreGetMissingExperiment(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, ok, err := store.GetExperiment(ctx, "missing")
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if ok {
		t.Fatal("expected no experiment")
	}
}

func TestMemoryStoreListsByCreationTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, record := range []model.ExperimentRecord{
		testRecord("exp-b", "2026-01-02T00:00:00Z"),
		testRecord("exp-a", "2026-01-01T00:00:00Z"),
	} {
		if err := store.SaveExperiment(ctx, record); err != nil {
			t.Fatalf("save experiment: %v", err)
		}
	}

	records, err := store.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("list experiments: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("listed %d experiments, want 2", len(records))
	}
	if records[0].ID != "exp-a" || records[1].ID != "exp-b" {
		t.Fatalf("unexpected order: %s, %s", records[0].ID, records[1].ID)
	}
}

func TestMemoryStoreReturnsDefensiveCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := testRecord("exp-1", "2026-01-02T03:04:05Z")
	if err := store.SaveExperiment(ctx, input); err != nil {
		t.Fatalf("save experiment: %v", err)
	}

	first, _, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	first.BestObjectiveValues[0][0] = -1
	first.ResultsYAML[0] = 'x'

	second, _, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if second.BestObjectiveValues[0][0] != 42.5 {
		t.Error("mutating a returned record leaked into the store")
	}
	if second.ResultsYAML[0] != 's' {
		t.Error("mutating returned results leaked into the store")
	}
}
