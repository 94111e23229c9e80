package main

import (
	"encoding/json"
	"fmt"
	"os"

	bioapi "biopharma/pkg/biopharma"
)

func loadOptimisationRequest(path string) (bioapi.OptimisationRequest, error) {
	raw, err := loadConfigMap(path)
	if err != nil {
		return bioapi.OptimisationRequest{}, err
	}

	var req bioapi.OptimisationRequest
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asFloat64(raw["crossover_probability"]); ok {
		req.CrossoverProbability = v
	}
	if v, ok := asFloat64(raw["gene_crossover_probability"]); ok {
		req.GeneCrossoverProbability = v
	}
	if v, ok := asFloat64(raw["mutation_rate"]); ok {
		req.MutationRate = v
	}
	if v, ok := asSeed(raw["seed"]); ok {
		req.Seed = v
	}

	for i, entry := range asList(raw["variables"]) {
		item, ok := entry.(map[string]any)
		if !ok {
			return bioapi.OptimisationRequest{}, fmt.Errorf("variable %d: expected an object", i)
		}
		req.Variables = append(req.Variables, variableFromConfig(item))
	}
	for i, entry := range asList(raw["objectives"]) {
		item, ok := entry.(map[string]any)
		if !ok {
			return bioapi.OptimisationRequest{}, fmt.Errorf("objective %d: expected an object", i)
		}
		req.Objectives = append(req.Objectives, objectiveFromConfig(item))
	}
	return req, nil
}

func loadSensitivityRequest(path string) (bioapi.SensitivityRequest, error) {
	raw, err := loadConfigMap(path)
	if err != nil {
		return bioapi.SensitivityRequest{}, err
	}

	var req bioapi.SensitivityRequest
	if v, ok := asInt(raw["samples"]); ok {
		req.Samples = v
	}
	if v, ok := asSeed(raw["seed"]); ok {
		req.Seed = v
	}

	for i, entry := range asList(raw["variables"]) {
		item, ok := entry.(map[string]any)
		if !ok {
			return bioapi.SensitivityRequest{}, fmt.Errorf("variable %d: expected an object", i)
		}
		variable := bioapi.SensitivityVariableRequest{}
		if v, ok := asString(item["step"]); ok {
			variable.Step = v
		}
		if v, ok := asInt(item["product"]); ok {
			variable.Product = v
		}
		if v, ok := asString(item["item"]); ok {
			variable.Item = v
		}
		if v, ok := asString(item["collection"]); ok {
			variable.Collection = v
		}
		if dist, ok := item["distribution"].(map[string]any); ok {
			variable.Distribution = distributionFromConfig(dist)
		}
		req.Variables = append(req.Variables, variable)
	}
	for i, entry := range asList(raw["outputs"]) {
		item, ok := entry.(map[string]any)
		if !ok {
			return bioapi.SensitivityRequest{}, fmt.Errorf("output %d: expected an object", i)
		}
		output := bioapi.SensitivityOutputRequest{}
		if v, ok := asString(item["name"]); ok {
			output.Name = v
		}
		if v, ok := asString(item["step"]); ok {
			output.Step = v
		}
		if v, ok := asInt(item["product"]); ok {
			output.Product = v
		}
		if v, ok := asString(item["item"]); ok {
			output.Item = v
		}
		if v, ok := asString(item["collection"]); ok {
			output.Collection = v
		}
		req.Outputs = append(req.Outputs, output)
	}
	return req, nil
}

func loadConfigMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return raw, nil
}

func variableFromConfig(item map[string]any) bioapi.VariableRequest {
	var variable bioapi.VariableRequest
	if v, ok := asString(item["step"]); ok {
		variable.Step = v
	}
	if v, ok := asInt(item["product"]); ok {
		variable.Product = v
	}
	if v, ok := asString(item["item"]); ok {
		variable.Item = v
	}
	if v, ok := asString(item["collection"]); ok {
		variable.Collection = v
	}
	if v, ok := asString(item["min"]); ok {
		variable.Min = v
	}
	if v, ok := asString(item["max"]); ok {
		variable.Max = v
	}
	if v, ok := asBool(item["continuous"]); ok {
		variable.Continuous = v
	}
	for _, choice := range asList(item["choices"]) {
		if v, ok := asString(choice); ok {
			variable.Choices = append(variable.Choices, v)
		}
	}
	if v, ok := asBool(item["binary"]); ok {
		variable.Binary = v
	}
	if v, ok := asString(item["track"]); ok {
		variable.Track = v
	}
	return variable
}

func objectiveFromConfig(item map[string]any) bioapi.ObjectiveRequest {
	var objective bioapi.ObjectiveRequest
	if v, ok := asString(item["step"]); ok {
		objective.Step = v
	}
	if v, ok := asInt(item["product"]); ok {
		objective.Product = v
	}
	if v, ok := asString(item["item"]); ok {
		objective.Item = v
	}
	for _, part := range asList(item["path"]) {
		if v, ok := asString(part); ok {
			objective.Path = append(objective.Path, v)
		}
	}
	if v, ok := asString(item["collection"]); ok {
		objective.Collection = v
	}
	if v, ok := asString(item["direction"]); ok {
		objective.Direction = v
	}
	if v, ok := asFloat64(item["weight"]); ok {
		objective.Weight = v
	}
	return objective
}

func distributionFromConfig(item map[string]any) bioapi.DistributionRequest {
	var dist bioapi.DistributionRequest
	if v, ok := asString(item["kind"]); ok {
		dist.Kind = v
	}
	if v, ok := asString(item["min"]); ok {
		dist.Min = v
	}
	if v, ok := asString(item["max"]); ok {
		dist.Max = v
	}
	if v, ok := asString(item["mean"]); ok {
		dist.Mean = v
	}
	if v, ok := asString(item["std"]); ok {
		dist.Std = v
	}
	return dist
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asList(v any) []any {
	xs, ok := v.([]any)
	if !ok {
		return nil
	}
	return xs
}

// asSeed reads a [hi, lo] pair. JSON numbers pass through float64, which
// holds seeds up to 2^53 exactly; larger states round-trip through the
// results document instead.
func asSeed(v any) ([2]uint64, bool) {
	xs, ok := v.([]any)
	if !ok || len(xs) != 2 {
		return [2]uint64{}, false
	}
	hi, ok := asFloat64(xs[0])
	if !ok {
		return [2]uint64{}, false
	}
	lo, ok := asFloat64(xs[1])
	if !ok {
		return [2]uint64{}, false
	}
	return [2]uint64{uint64(hi), uint64(lo)}, true
}
