package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/datanovaai/marketplace-backend/store"
	"github.com/datanovaai/marketplace-backend/validator"
)

// RequestKind selects one of the fixed analysis capabilities. Requests are an
// explicit tagged union; there is no free-text dispatch.
type RequestKind string

const (
	KindSummary    RequestKind = "summary"
	KindSimilarity RequestKind = "similarity"
	KindQuality    RequestKind = "quality"
)

// Request describes one analysis invocation.
type Request struct {
	Kind RequestKind `json:"kind"`

	// Table carries the tabular snapshot for summary and quality requests.
	Table *validator.Table `json:"-"`

	// Metadata and Threshold drive similarity requests.
	Metadata  *store.Metadata `json:"metadata,omitempty"`
	Threshold float64         `json:"threshold,omitempty"`
}

// ColumnSummary holds descriptive statistics for one column.
type ColumnSummary struct {
	MissingValues int      `json:"missing_values"`
	Mean          *float64 `json:"mean,omitempty"`
	Median        *float64 `json:"median,omitempty"`
	StdDev        *float64 `json:"std_dev,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
}

// SummaryResult is the outcome of a summary request.
type SummaryResult struct {
	RowCount     int                      `json:"row_count"`
	ColumnCount  int                      `json:"column_count"`
	Columns      map[string]ColumnSummary `json:"columns"`
	Correlations map[string]float64       `json:"correlations,omitempty"`
}

// SimilarityMatch pairs a catalog entry with its similarity score.
type SimilarityMatch struct {
	Metadata store.Metadata `json:"metadata"`
	Score    float64        `json:"score"`
}

// Result is the tagged analysis outcome; exactly one branch is populated.
type Result struct {
	Kind    RequestKind       `json:"kind"`
	Summary *SummaryResult    `json:"summary,omitempty"`
	Similar []SimilarityMatch `json:"similar,omitempty"`
	Quality *validator.Report `json:"quality,omitempty"`
}

// Analyzer runs analysis requests over the content store's catalog and a
// validation engine.
type Analyzer struct {
	datastore *store.DataStore
	engine    *validator.Engine
}

func NewAnalyzer(datastore *store.DataStore, engine *validator.Engine) *Analyzer {
	return &Analyzer{datastore: datastore, engine: engine}
}

func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	switch req.Kind {
	case KindSummary:
		if req.Table == nil {
			return nil, fmt.Errorf("summary request requires a table")
		}
		summary := summarize(*req.Table)
		return &Result{Kind: KindSummary, Summary: summary}, nil

	case KindSimilarity:
		if req.Metadata == nil {
			return nil, fmt.Errorf("similarity request requires metadata")
		}
		matches, err := a.findSimilar(*req.Metadata, req.Threshold)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindSimilarity, Similar: matches}, nil

	case KindQuality:
		if req.Table == nil {
			return nil, fmt.Errorf("quality request requires a table")
		}
		if a.engine == nil {
			return nil, fmt.Errorf("no validation engine configured")
		}
		report := a.engine.Validate(*req.Table)
		return &Result{Kind: KindQuality, Quality: &report}, nil

	default:
		return nil, fmt.Errorf("unknown analysis kind %q", req.Kind)
	}
}

func summarize(table validator.Table) *SummaryResult {
	result := &SummaryResult{
		RowCount:    table.RowCount(),
		ColumnCount: len(table.Columns),
		Columns:     make(map[string]ColumnSummary, len(table.Columns)),
	}

	numeric := make(map[string][]float64)
	for name, col := range table.Columns {
		summary := ColumnSummary{}
		var values []float64
		allNumeric := true

		for _, v := range col.Values {
			if v == nil {
				summary.MissingValues++
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				allNumeric = false
				continue
			}
			values = append(values, f)
		}

		if allNumeric && len(values) > 0 {
			summary.Mean = statOrNil(stats.Mean(values))
			summary.Median = statOrNil(stats.Median(values))
			summary.StdDev = statOrNil(stats.StandardDeviation(values))
			summary.Min = statOrNil(stats.Min(values))
			summary.Max = statOrNil(stats.Max(values))
			numeric[name] = values
		}
		result.Columns[name] = summary
	}

	result.Correlations = correlations(numeric)
	return result
}

// correlations computes Pearson coefficients for every pair of equal-length
// numeric columns, keyed "a:b" with names in sorted order.
func correlations(numeric map[string][]float64) map[string]float64 {
	if len(numeric) < 2 {
		return nil
	}

	names := make([]string, 0, len(numeric))
	for name := range numeric {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]float64)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := numeric[names[i]], numeric[names[j]]
			if len(a) != len(b) {
				continue
			}
			r, err := stats.Pearson(a, b)
			if err != nil {
				continue
			}
			out[names[i]+":"+names[j]] = r
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// findSimilar scores every cataloged dataset against the query metadata:
// Jaccard overlap of keywords and authors, plus a bonus for a matching data
// type. Matches below the threshold are dropped; results are sorted by score.
func (a *Analyzer) findSimilar(query store.Metadata, threshold float64) ([]SimilarityMatch, error) {
	if a.datastore == nil {
		return nil, fmt.Errorf("no datastore configured")
	}

	catalog, err := a.datastore.List(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	var matches []SimilarityMatch
	for _, candidate := range catalog {
		score := 0.5 * jaccard(query.Keywords, candidate.Keywords)
		score += 0.3 * jaccard(query.Authors, candidate.Authors)
		if query.DataType == candidate.DataType {
			score += 0.2
		}
		if score >= threshold {
			matches = append(matches, SimilarityMatch{Metadata: candidate, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	intersection := 0
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		if setB[s] {
			continue
		}
		setB[s] = true
		if setA[s] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toFloat(v interface{}) (float64, bool) {
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
	}
	return 0, false
}

func statOrNil(v float64, err error) *float64 {
	if err != nil {
		return nil
	}
	return &v
}
