package storage

import (
	"encoding/json"
	"errors"

	"biopharma/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeExperiment(record model.ExperimentRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeExperiment(data []byte) (model.ExperimentRecord, error) {
	var record model.ExperimentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ExperimentRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ExperimentRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
