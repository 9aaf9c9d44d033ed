package validator

import (
	"fmt"
	"regexp"
	"sort"
)

// RuleKind selects one of the supported per-column checks.
type RuleKind string

const (
	RuleTypeCheck        RuleKind = "type_check"
	RuleRangeCheck       RuleKind = "range_check"
	RuleUniqueCheck      RuleKind = "unique_check"
	RulePatternCheck     RuleKind = "pattern_check"
	RuleMissingCheck     RuleKind = "missing_check"
	RuleCategoricalCheck RuleKind = "categorical_check"
)

// Rule binds a check kind to its parameters. Parameters are not validated at
// registration time: a malformed rule surfaces as a failed RuleResult carrying
// the error message when the rule is applied.
type Rule struct {
	Kind       RuleKind               `json:"type"`
	Parameters map[string]interface{} `json:"parameters"`
}

// RuleResult is the outcome of applying one rule to one column.
type RuleResult struct {
	RuleType RuleKind               `json:"rule_type"`
	IsValid  bool                   `json:"is_valid"`
	Details  map[string]interface{} `json:"details"`
}

// applyRule evaluates a single rule. Any error or panic during evaluation is
// converted into a failed result with the message in details["error"], never
// propagated, so one bad rule cannot abort the rest of the run.
func applyRule(col Column, rule Rule) (result RuleResult) {
	result = RuleResult{
		RuleType: rule.Kind,
		IsValid:  true,
		Details:  map[string]interface{}{},
	}

	defer func() {
		if r := recover(); r != nil {
			result.IsValid = false
			result.Details["error"] = fmt.Sprint(r)
		}
	}()

	var err error
	switch rule.Kind {
	case RuleTypeCheck:
		err = applyTypeCheck(col, rule.Parameters, &result)
	case RuleRangeCheck:
		err = applyRangeCheck(col, rule.Parameters, &result)
	case RuleUniqueCheck:
		err = applyUniqueCheck(col, &result)
	case RulePatternCheck:
		err = applyPatternCheck(col, rule.Parameters, &result)
	case RuleMissingCheck:
		err = applyMissingCheck(col, rule.Parameters, &result)
	case RuleCategoricalCheck:
		err = applyCategoricalCheck(col, rule.Parameters, &result)
	default:
		err = fmt.Errorf("unknown rule type: %s", rule.Kind)
	}

	if err != nil {
		result.IsValid = false
		result.Details["error"] = err.Error()
	}
	return result
}

func applyTypeCheck(col Column, params map[string]interface{}, result *RuleResult) error {
	expected, ok := params["expected_type"].(string)
	if !ok {
		return fmt.Errorf("missing expected_type parameter")
	}
	result.IsValid = col.Type == expected
	result.Details["actual_type"] = col.Type
	return nil
}

func applyRangeCheck(col Column, params map[string]interface{}, result *RuleResult) error {
	min, max, err := columnMinMax(col)
	if err != nil {
		return err
	}

	if minParam, ok := params["min"]; ok {
		bound, ok := asFloat(minParam)
		if !ok {
			return fmt.Errorf("min parameter is not numeric")
		}
		if min < bound {
			result.IsValid = false
		}
	}
	if maxParam, ok := params["max"]; ok {
		bound, ok := asFloat(maxParam)
		if !ok {
			return fmt.Errorf("max parameter is not numeric")
		}
		if max > bound {
			result.IsValid = false
		}
	}

	result.Details["min"] = min
	result.Details["max"] = max
	return nil
}

func applyUniqueCheck(col Column, result *RuleResult) error {
	seen := make(map[string]int)
	duplicates := 0
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		key := valueKey(v)
		if seen[key] > 0 {
			duplicates++
		}
		seen[key]++
	}
	result.IsValid = duplicates == 0
	result.Details["duplicate_count"] = duplicates
	return nil
}

func applyPatternCheck(col Column, params map[string]interface{}, result *RuleResult) error {
	pattern, ok := params["pattern"].(string)
	if !ok {
		return fmt.Errorf("missing pattern parameter")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %v", err)
	}

	nonMatching := 0
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("pattern_check requires string values, got %T", v)
		}
		if !re.MatchString(s) {
			nonMatching++
		}
	}
	result.IsValid = nonMatching == 0
	result.Details["non_matching"] = nonMatching
	return nil
}

func applyMissingCheck(col Column, params map[string]interface{}, result *RuleResult) error {
	threshold := 0.0
	if t, ok := params["threshold"]; ok {
		v, ok := asFloat(t)
		if !ok {
			return fmt.Errorf("threshold parameter is not numeric")
		}
		threshold = v
	}

	missing := 0
	for _, v := range col.Values {
		if v == nil {
			missing++
		}
	}
	result.IsValid = float64(missing) <= threshold
	result.Details["missing_count"] = missing
	return nil
}

func applyCategoricalCheck(col Column, params map[string]interface{}, result *RuleResult) error {
	allowedParam, ok := params["allowed_values"].([]interface{})
	if !ok {
		return fmt.Errorf("missing allowed_values parameter")
	}

	allowed := make(map[string]bool, len(allowedParam))
	for _, v := range allowedParam {
		allowed[valueKey(v)] = true
	}

	invalidSet := make(map[string]bool)
	var invalid []string
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		key := valueKey(v)
		if !allowed[key] && !invalidSet[key] {
			invalidSet[key] = true
			invalid = append(invalid, key)
		}
	}
	sort.Strings(invalid)

	result.IsValid = len(invalid) == 0
	result.Details["invalid_values"] = invalid
	return nil
}

func columnMinMax(col Column) (float64, float64, error) {
	first := true
	var min, max float64
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		f, ok := asFloat(v)
		if !ok {
			return 0, 0, fmt.Errorf("range_check requires numeric values, got %T", v)
		}
		if first {
			min, max = f, f
			first = false
			continue
		}
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	if first {
		return 0, 0, fmt.Errorf("range_check requires at least one non-missing value")
	}
	return min, max, nil
}

// asFloat widens any numeric value to float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// valueKey normalizes a value for set membership so that e.g. int(3) and
// float64(3) from a JSON-imported rule compare equal.
func valueKey(v interface{}) string {
	if f, ok := asFloat(v); ok {
		return fmt.Sprintf("%g", f)
	}
	return fmt.Sprint(v)
}
