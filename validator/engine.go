package validator

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// ColumnResult aggregates the rule results for one configured column. When
// the column is absent from the validated table, Error is set and no rule
// results are recorded.
type ColumnResult struct {
	IsValid     bool         `json:"is_valid"`
	Error       string       `json:"error,omitempty"`
	RuleResults []RuleResult `json:"rule_results,omitempty"`
}

// Report is the outcome of one validation run. Reports are appended to the
// engine's history and never mutated afterwards.
type Report struct {
	Timestamp       time.Time               `json:"timestamp"`
	TotalRows       int                     `json:"total_rows"`
	ColumnResults   map[string]ColumnResult `json:"column_results"`
	OverallValidity bool                    `json:"overall_validity"`
}

// Engine owns a per-column rule set and the accumulated validation history.
// An Engine is meant for single-owner use; it does no internal locking.
type Engine struct {
	rules   map[string][]Rule
	columns []string // registration order, for deterministic iteration
	history []Report

	// 0 means unbounded; otherwise the oldest reports are evicted once the
	// history exceeds maxHistory.
	maxHistory int
}

func NewEngine(config map[string]interface{}) *Engine {
	maxHistory := 0
	switch v := config["max_history"].(type) {
	case int:
		maxHistory = v
	case float64:
		maxHistory = int(v)
	}

	return &Engine{
		rules:      make(map[string][]Rule),
		maxHistory: maxHistory,
	}
}

// AddRule registers a rule for a column. Multiple rules per column are
// permitted; they are applied in registration order. Parameters are not
// checked here — a malformed rule fails at evaluation time instead.
func (e *Engine) AddRule(column string, kind RuleKind, parameters map[string]interface{}) {
	if _, ok := e.rules[column]; !ok {
		e.columns = append(e.columns, column)
	}
	e.rules[column] = append(e.rules[column], Rule{Kind: kind, Parameters: parameters})
}

// Validate runs every registered rule against the table and appends the
// resulting report to the history. A configured column that is absent from
// the table records a column-level error and forces overall invalidity.
func (e *Engine) Validate(table Table) Report {
	report := Report{
		Timestamp:       time.Now().UTC(),
		TotalRows:       table.RowCount(),
		ColumnResults:   make(map[string]ColumnResult, len(e.rules)),
		OverallValidity: true,
	}

	for _, column := range e.columns {
		col, ok := table.Columns[column]
		if !ok {
			report.ColumnResults[column] = ColumnResult{
				IsValid: false,
				Error:   "column not found in dataset",
			}
			report.OverallValidity = false
			continue
		}

		colResult := ColumnResult{IsValid: true}
		for _, rule := range e.rules[column] {
			ruleResult := applyRule(col, rule)
			colResult.RuleResults = append(colResult.RuleResults, ruleResult)
			if !ruleResult.IsValid {
				colResult.IsValid = false
			}
		}
		report.ColumnResults[column] = colResult

		if !colResult.IsValid {
			report.OverallValidity = false
		}
	}

	e.history = append(e.history, report)
	if e.maxHistory > 0 && len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}

	return report
}

// History returns the retained validation reports in run order.
func (e *Engine) History() []Report {
	return append([]Report{}, e.history...)
}

// ExportRules serializes the rule set to a JSON file.
func (e *Engine) ExportRules(path string) error {
	data, err := json.MarshalIndent(e.rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}

// ImportRules replaces the entire rule set from a JSON file. The replacement
// is atomic: on any error the existing rules are left untouched.
func (e *Engine) ImportRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	imported := make(map[string][]Rule)
	if err := json.Unmarshal(data, &imported); err != nil {
		return fmt.Errorf("failed to decode rules file: %w", err)
	}

	columns := make([]string, 0, len(imported))
	for column := range imported {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	e.rules = imported
	e.columns = columns
	return nil
}
