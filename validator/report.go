package validator

import (
	"fmt"
	"time"
)

// HistoricalStats summarizes the validation history.
type HistoricalStats struct {
	TotalValidations int        `json:"total_validations"`
	SuccessRate      float64    `json:"success_rate"`
	LastSuccessful   *time.Time `json:"last_successful,omitempty"`
}

// RuleCoverage counts how many rules are configured per column.
type RuleCoverage struct {
	TotalColumns   int            `json:"total_columns"`
	TotalRules     int            `json:"total_rules"`
	RulesPerColumn map[string]int `json:"rules_per_column"`
}

// TrendPoint is one entry of the per-run validation trend.
type TrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Validity    bool      `json:"validity"`
	TotalErrors int       `json:"total_errors"`
}

// AggregateReport is the full trend/coverage report over the engine history.
type AggregateReport struct {
	LatestValidation Report          `json:"latest_validation"`
	HistoricalStats  HistoricalStats `json:"historical_stats"`
	RuleCoverage     RuleCoverage    `json:"rule_coverage"`
	ValidationTrend  []TrendPoint    `json:"validation_trend"`
}

// ErrNoHistory is returned by GenerateReport before any validation has run.
var ErrNoHistory = fmt.Errorf("no validation history available")

// GenerateReport derives aggregate statistics over the retained history.
func (e *Engine) GenerateReport() (*AggregateReport, error) {
	if len(e.history) == 0 {
		return nil, ErrNoHistory
	}

	return &AggregateReport{
		LatestValidation: e.history[len(e.history)-1],
		HistoricalStats:  e.historicalStats(),
		RuleCoverage:     e.ruleCoverage(),
		ValidationTrend:  e.validationTrend(),
	}, nil
}

func (e *Engine) historicalStats() HistoricalStats {
	stats := HistoricalStats{TotalValidations: len(e.history)}

	successes := 0
	for _, report := range e.history {
		if report.OverallValidity {
			successes++
		}
	}
	stats.SuccessRate = float64(successes) / float64(len(e.history))

	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].OverallValidity {
			ts := e.history[i].Timestamp
			stats.LastSuccessful = &ts
			break
		}
	}
	return stats
}

func (e *Engine) ruleCoverage() RuleCoverage {
	coverage := RuleCoverage{
		TotalColumns:   len(e.rules),
		RulesPerColumn: make(map[string]int, len(e.rules)),
	}
	for column, rules := range e.rules {
		coverage.RulesPerColumn[column] = len(rules)
		coverage.TotalRules += len(rules)
	}
	return coverage
}

func (e *Engine) validationTrend() []TrendPoint {
	trend := make([]TrendPoint, 0, len(e.history))
	for _, report := range e.history {
		errors := 0
		for _, colResult := range report.ColumnResults {
			if !colResult.IsValid {
				errors++
			}
		}
		trend = append(trend, TrendPoint{
			Timestamp:   report.Timestamp,
			Validity:    report.OverallValidity,
			TotalErrors: errors,
		})
	}
	return trend
}
