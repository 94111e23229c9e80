package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Experiment kinds recorded by the store.
const (
	KindOptimisation = "optimisation"
	KindSensitivity  = "sensitivity"
)

// ExperimentRecord is one completed optimisation or sensitivity run: the
// configuration it ran with and the results it produced.
type ExperimentRecord struct {
	VersionedRecord
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	CreatedAtUTC string `json:"created_at_utc"`

	// Seed is the [hi, lo] random state the run started from.
	Seed [2]uint64 `json:"seed"`

	// Optimisation configuration and results.
	PopulationSize      int               `json:"population_size,omitempty"`
	Generations         int               `json:"generations,omitempty"`
	Objectives          []ObjectiveRecord `json:"objectives,omitempty"`
	BestObjectiveValues [][]float64       `json:"best_objective_values,omitempty"`
	// ResultsYAML is the self-describing results document, loadable through
	// an identically configured optimiser.
	ResultsYAML []byte `json:"results_yaml,omitempty"`

	// Sensitivity configuration and results.
	Samples    int                          `json:"samples,omitempty"`
	FailedRuns int                          `json:"failed_runs,omitempty"`
	Outputs    map[string]OutputStatsRecord `json:"outputs,omitempty"`
}

// ObjectiveRecord snapshots one optimisation objective.
type ObjectiveRecord struct {
	Target    string  `json:"target"`
	Direction string  `json:"direction"`
	Weight    float64 `json:"weight"`
}

// OutputStatsRecord snapshots the statistics of one tracked sensitivity
// output. Magnitudes are in Unit; the variance is in Unit squared.
type OutputStatsRecord struct {
	Unit     string  `json:"unit"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Avg      float64 `json:"avg"`
	Var      float64 `json:"var"`
	NSamples int     `json:"n_samples"`
}
