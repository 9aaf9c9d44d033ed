package validator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericColumn(values ...interface{}) Column {
	return Column{Type: "float64", Values: values}
}

func stringColumn(values ...interface{}) Column {
	return Column{Type: "string", Values: values}
}

func TestValidateMissingColumn(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("temperature", RuleRangeCheck, map[string]interface{}{"min": 0})
	engine.AddRule("pressure", RuleMissingCheck, nil)

	report := engine.Validate(Table{Columns: map[string]Column{
		"pressure": numericColumn(101.2, 100.9),
	}})

	assert.False(t, report.OverallValidity)
	require.Contains(t, report.ColumnResults, "temperature")
	assert.Equal(t, "column not found in dataset", report.ColumnResults["temperature"].Error)
	assert.False(t, report.ColumnResults["temperature"].IsValid)

	// The present column is still validated
	assert.True(t, report.ColumnResults["pressure"].IsValid)
}

func TestRangeCheckBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
		want   bool
	}{
		{"inclusive bounds", map[string]interface{}{"min": 1, "max": 10}, true},
		{"max too low", map[string]interface{}{"max": 9}, false},
		{"min too high", map[string]interface{}{"min": 2}, false},
		{"min only", map[string]interface{}{"min": 1}, true},
		{"max only", map[string]interface{}{"max": 10}, true},
		{"no bounds", map[string]interface{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(nil)
			engine.AddRule("values", RuleRangeCheck, tt.params)

			report := engine.Validate(Table{Columns: map[string]Column{
				"values": numericColumn(1, 5, 10),
			}})
			assert.Equal(t, tt.want, report.OverallValidity)
		})
	}
}

func TestTypeCheck(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("id", RuleTypeCheck, map[string]interface{}{"expected_type": "int64"})

	report := engine.Validate(Table{Columns: map[string]Column{
		"id": {Type: "int64", Values: []interface{}{1, 2}},
	}})
	assert.True(t, report.OverallValidity)

	report = engine.Validate(Table{Columns: map[string]Column{
		"id": {Type: "string", Values: []interface{}{"a"}},
	}})
	assert.False(t, report.OverallValidity)
	result := report.ColumnResults["id"].RuleResults[0]
	assert.Equal(t, "string", result.Details["actual_type"])
}

func TestUniqueCheck(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("id", RuleUniqueCheck, nil)

	report := engine.Validate(Table{Columns: map[string]Column{
		"id": numericColumn(1, 2, 3, 2, 2),
	}})
	assert.False(t, report.OverallValidity)
	assert.Equal(t, 2, report.ColumnResults["id"].RuleResults[0].Details["duplicate_count"])
}

func TestPatternCheck(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("code", RulePatternCheck, map[string]interface{}{"pattern": `^[A-Z]{3}-\d+$`})

	report := engine.Validate(Table{Columns: map[string]Column{
		"code": stringColumn("ABC-1", "XYZ-22", "bad", "also bad"),
	}})
	assert.False(t, report.OverallValidity)
	assert.Equal(t, 2, report.ColumnResults["code"].RuleResults[0].Details["non_matching"])
}

func TestPatternCheckSkipsMissingValues(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("code", RulePatternCheck, map[string]interface{}{"pattern": `^[A-Z]{3}-\d+$`})

	report := engine.Validate(Table{Columns: map[string]Column{
		"code": {Type: "string", Values: []interface{}{"ABC-1", nil, "XYZ-22", nil}},
	}})
	assert.True(t, report.OverallValidity)
	assert.Equal(t, 0, report.ColumnResults["code"].RuleResults[0].Details["non_matching"])
}

func TestMissingCheckThreshold(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("optional", RuleMissingCheck, map[string]interface{}{"threshold": 1})
	engine.AddRule("required", RuleMissingCheck, nil)

	report := engine.Validate(Table{Columns: map[string]Column{
		"optional": numericColumn(1.0, nil),
		"required": numericColumn(1.0, nil),
	}})

	assert.True(t, report.ColumnResults["optional"].IsValid)
	assert.False(t, report.ColumnResults["required"].IsValid)
	assert.False(t, report.OverallValidity)
}

func TestCategoricalCheck(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("status", RuleCategoricalCheck, map[string]interface{}{
		"allowed_values": []interface{}{"active", "inactive"},
	})

	report := engine.Validate(Table{Columns: map[string]Column{
		"status": stringColumn("active", "unknown", "inactive", "unknown", "bogus"),
	}})
	assert.False(t, report.OverallValidity)
	assert.Equal(t, []string{"bogus", "unknown"},
		report.ColumnResults["status"].RuleResults[0].Details["invalid_values"])
}

func TestMalformedRuleFailsWithoutAborting(t *testing.T) {
	engine := NewEngine(nil)
	// pattern parameter missing entirely
	engine.AddRule("code", RulePatternCheck, map[string]interface{}{})
	engine.AddRule("code", RuleMissingCheck, nil)

	report := engine.Validate(Table{Columns: map[string]Column{
		"code": stringColumn("A", "B"),
	}})

	results := report.ColumnResults["code"].RuleResults
	require.Len(t, results, 2)
	assert.False(t, results[0].IsValid)
	assert.Contains(t, results[0].Details["error"], "pattern")
	// The second rule still ran
	assert.True(t, results[1].IsValid)
	assert.False(t, report.OverallValidity)
}

func TestRangeCheckOnNonNumericValues(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("name", RuleRangeCheck, map[string]interface{}{"min": 0})

	report := engine.Validate(Table{Columns: map[string]Column{
		"name": stringColumn("alice", "bob"),
	}})

	result := report.ColumnResults["name"].RuleResults[0]
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Details["error"], "numeric")
}

func TestExportImportRules(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("temperature", RuleRangeCheck, map[string]interface{}{"min": -50.0, "max": 60.0})
	engine.AddRule("station", RuleCategoricalCheck, map[string]interface{}{
		"allowed_values": []interface{}{"north", "south"},
	})

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, engine.ExportRules(path))

	restored := NewEngine(nil)
	restored.AddRule("obsolete", RuleUniqueCheck, nil)
	require.NoError(t, restored.ImportRules(path))

	// Import replaces the whole rule set
	report := restored.Validate(Table{Columns: map[string]Column{
		"temperature": numericColumn(10.0, 55.0),
		"station":     stringColumn("north"),
	}})
	assert.True(t, report.OverallValidity)
	assert.Len(t, report.ColumnResults, 2)
	assert.NotContains(t, report.ColumnResults, "obsolete")
}

func TestImportRulesInvalidFileKeepsExisting(t *testing.T) {
	engine := NewEngine(nil)
	engine.AddRule("kept", RuleUniqueCheck, nil)

	require.Error(t, engine.ImportRules(filepath.Join(t.TempDir(), "missing.json")))

	report := engine.Validate(Table{Columns: map[string]Column{
		"kept": numericColumn(1, 2),
	}})
	assert.Contains(t, report.ColumnResults, "kept")
}

func TestGenerateReport(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.GenerateReport()
	assert.ErrorIs(t, err, ErrNoHistory)

	engine.AddRule("values", RuleRangeCheck, map[string]interface{}{"min": 0})
	engine.AddRule("values", RuleMissingCheck, nil)

	engine.Validate(Table{Columns: map[string]Column{"values": numericColumn(1, 2)}})   // valid
	engine.Validate(Table{Columns: map[string]Column{"values": numericColumn(-1, 2)}})  // range fails
	engine.Validate(Table{Columns: map[string]Column{"values": numericColumn(3, 4)}})   // valid

	report, err := engine.GenerateReport()
	require.NoError(t, err)

	assert.Equal(t, 3, report.HistoricalStats.TotalValidations)
	assert.InDelta(t, 2.0/3.0, report.HistoricalStats.SuccessRate, 1e-9)
	require.NotNil(t, report.HistoricalStats.LastSuccessful)

	assert.Equal(t, 1, report.RuleCoverage.TotalColumns)
	assert.Equal(t, 2, report.RuleCoverage.TotalRules)
	assert.Equal(t, 2, report.RuleCoverage.RulesPerColumn["values"])

	require.Len(t, report.ValidationTrend, 3)
	assert.True(t, report.ValidationTrend[0].Validity)
	assert.False(t, report.ValidationTrend[1].Validity)
	assert.Equal(t, 1, report.ValidationTrend[1].TotalErrors)
	assert.True(t, report.LatestValidation.OverallValidity)
}

func TestHistoryRetentionCap(t *testing.T) {
	engine := NewEngine(map[string]interface{}{"max_history": 2})
	engine.AddRule("v", RuleMissingCheck, nil)

	for i := 0; i < 5; i++ {
		engine.Validate(Table{Columns: map[string]Column{"v": numericColumn(1)}})
	}

	assert.Len(t, engine.History(), 2)
}
