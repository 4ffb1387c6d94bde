package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"faultline/pkg/faultline"
)

func loadCampaignRequest(path string) (faultline.CampaignRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return faultline.CampaignRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return faultline.CampaignRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}

	var req faultline.CampaignRequest
	if dims, ok := raw["dimensions"].([]any); ok {
		for _, d := range dims {
			dm, ok := d.(map[string]any)
			if !ok {
				continue
			}
			spec := faultline.DimensionSpec{}
			if v, ok := asString(dm["name"]); ok {
				spec.Name = v
			}
			if v, ok := asFloat64(dm["lower"]); ok {
				spec.Lower = v
			}
			if v, ok := asFloat64(dm["upper"]); ok {
				spec.Upper = v
			}
			if v, ok := asInt(dm["bins"]); ok {
				spec.Bins = v
			}
			req.Dimensions = append(req.Dimensions, spec)
		}
	}
	if v, ok := asInt(raw["trials"]); ok {
		req.Trials = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.PopulationSize = v
	}
	if v, ok := asInt(raw["genome_length"]); ok {
		req.GenomeLength = v
	}
	if v, ok := asFloat64(raw["malus_factor"]); ok {
		req.MalusFactor = v
	}
	if v, ok := asInt(raw["generation_cadence"]); ok {
		req.GenerationCadence = v
	}
	if v, ok := asString(raw["selection"]); ok {
		req.Selection = v
	}
	if v, ok := asString(raw["classifier"]); ok {
		req.Classifier = v
	}
	if v, ok := asString(raw["trigger"]); ok {
		req.TriggerSource = v
	}
	if v, ok := asString(raw["trigger_pattern"]); ok {
		req.TriggerPattern = v
	}
	if v, ok := asString(raw["backend"]); ok {
		req.Backend = v
	}
	if rails, ok := raw["rails"].(map[string]any); ok {
		req.Rails = make(map[string]float64, len(rails))
		for name, voltage := range rails {
			if v, ok := asFloat64(voltage); ok {
				req.Rails[name] = v
			}
		}
	}
	if v, ok := asInt(raw["cooldown_ms"]); ok {
		req.Cooldown = time.Duration(v) * time.Millisecond
	}
	if v, ok := asInt(raw["arm_timeout_ms"]); ok {
		req.ArmTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := asInt(raw["read_timeout_ms"]); ok {
		req.ReadTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := asInt(raw["fail_limit"]); ok {
		req.FailLimit = v
	}
	if v, ok := asInt(raw["fail_window"]); ok {
		req.FailWindow = v
	}
	if v, ok := asBool(raw["power_cycle_after_fault"]); ok {
		req.PowerCycleAfterFault = v
	}
	if v, ok := asString(raw["target_response"]); ok {
		req.TargetResponse = v
	}
	return req, nil
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

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
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

func columnsFromRequest(req faultline.CampaignRequest) []string {
	if len(req.Dimensions) == 0 {
		return nil
	}
	columns := make([]string, len(req.Dimensions))
	for i, d := range req.Dimensions {
		columns[i] = d.Name
	}
	return columns
}
