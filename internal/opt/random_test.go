package opt

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSourceSnapshotRestoreReplays(t *testing.T) {
	src := NewSource(Seed{Hi: 314, Lo: 159})
	for i := 0; i < 10; i++ {
		src.Float64()
	}
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	first := make([]float64, 20)
	for i := range first {
		first[i] = src.Float64()
	}
	src.Restore(snap)
	for i := range first {
		if got := src.Float64(); got != first[i] {
			t.Fatalf("draw %d after restore = %v, want %v", i, got, first[i])
		}
	}

	// A fresh source in the snapshotted state produces the same stream.
	other := NewSource(snap)
	for i := range first {
		if got := other.Float64(); got != first[i] {
			t.Fatalf("draw %d from fresh source = %v, want %v", i, got, first[i])
		}
	}
}

func TestSourceSnapshotAdvancesWithState(t *testing.T) {
	src := NewSource(Seed{Hi: 1, Lo: 2})
	before, err := src.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	src.Uint64()
	after, err := src.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if before == after {
		t.Fatal("expected the state to advance after a draw")
	}
}

func TestRandomSeedIsNotRepeatable(t *testing.T) {
	a, b := RandomSeed(), RandomSeed()
	if a == b {
		t.Fatalf("two random seeds coincide: %+v", a)
	}
}

func TestSeedYAMLRoundTrip(t *testing.T) {
	in := Seed{Hi: 18446744073709551615, Lo: 42}
	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	var out Seed
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal seed: %v", err)
	}
	if out != in {
		t.Fatalf("round-tripped seed = %+v, want %+v", out, in)
	}

	if err := yaml.Unmarshal([]byte("[1]"), &out); err == nil {
		t.Fatal("expected a one-element seed to be rejected")
	}
	if err := yaml.Unmarshal([]byte("not-a-seed"), &out); err == nil {
		t.Fatal("expected a scalar seed to be rejected")
	}
}
