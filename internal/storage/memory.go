package storage

import (
	"context"
	"sort"
	"sync"

	"biopharma/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]model.ExperimentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiments = make(map[string]model.ExperimentRecord)
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, record model.ExperimentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiments[record.ID] = copyRecord(record)
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (model.ExperimentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.experiments[id]
	if !ok {
		return model.ExperimentRecord{}, false, nil
	}
	return copyRecord(record), true, nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]model.ExperimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]model.ExperimentRecord, 0, len(s.experiments))
	for _, record := range s.experiments {
		records = append(records, copyRecord(record))
	}
	sort.Slice(records, func(a, b int) bool {
		if records[a].CreatedAtUTC != records[b].CreatedAtUTC {
			return records[a].CreatedAtUTC < records[b].CreatedAtUTC
		}
		return records[a].ID < records[b].ID
	})
	return records, nil
}

func copyRecord(record model.ExperimentRecord) model.ExperimentRecord {
	copied := record
	copied.Objectives = append([]model.ObjectiveRecord(nil), record.Objectives...)
	copied.ResultsYAML = append([]byte(nil), record.ResultsYAML...)
	if record.BestObjectiveValues != nil {
		copied.BestObjectiveValues = make([][]float64, len(record.BestObjectiveValues))
		for i, values := range record.BestObjectiveValues {
			copied.BestObjectiveValues[i] = append([]float64(nil), values...)
		}
	}
	if record.Outputs != nil {
		copied.Outputs = make(map[string]model.OutputStatsRecord, len(record.Outputs))
		for name, stats := range record.Outputs {
			copied.Outputs[name] = stats
		}
	}
	return copied
}
