package storage

import (
	"context"

	"biopharma/internal/model"
)

// Store defines persistence operations for experiment records.
type Store interface {
	Init(ctx context.Context) error
	SaveExperiment(ctx context.Context, record model.ExperimentRecord) error
	GetExperiment(ctx context.Context, id string) (model.ExperimentRecord, bool, error)
	ListExperiments(ctx context.Context) ([]model.ExperimentRecord, error)
}
