package realtime

import (
	"encoding/json"
	"time"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
)

// ReportDefinition describes a realtime report to materialize as a continuous
// aggregate. Request-scoped; validated and turned into query text during Create.
type ReportDefinition struct {
	Project     string                `json:"project" binding:"required"`
	Name        string                `json:"name" binding:"required"`
	TableName   string                `json:"table_name"` // derived from Name when empty
	Collections []string              `json:"collections" binding:"required"`
	Measures    []aggregation.Measure `json:"measures" binding:"required"`
	Dimensions  []string              `json:"dimensions"`
	Filter      string                `json:"filter"`
}

// WindowQuerySpec selects a window of buckets from a stored continuous
// aggregate and says how to recombine them.
type WindowQuerySpec struct {
	Project    string              `json:"project" binding:"required"`
	TableName  string              `json:"table_name" binding:"required"`
	Filter     string              `json:"filter"`
	Measure    aggregation.Measure `json:"measure"`
	Dimensions []string            `json:"dimensions"`
	Aggregate  bool                `json:"aggregate"`
	DateStart  *time.Time          `json:"date_start"`
	DateEnd    *time.Time          `json:"date_end"`
}

// QueryResult is the reshaped answer for one window query. Start and End are
// window boundaries in epoch seconds. Result is one of: a scalar, []TimeValue,
// []DimensionValue, or []DimensionSeries, keyed by (Aggregate x dimensions).
type QueryResult struct {
	Start  int64 `json:"start"`
	End    int64 `json:"end"`
	Result any   `json:"result"`
}

// TimeValue is one point of a time series.
type TimeValue struct {
	Timestamp int64
	Value     any
}

// MarshalJSON encodes the point as a two-element [timestamp, value] array.
func (v TimeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{v.Timestamp, v.Value})
}

// DimensionValue is one (dimension tuple, combined value) pair of a
// dimensioned aggregate result.
type DimensionValue struct {
	Dimensions []any `json:"dimensions"`
	Value      any   `json:"value"`
}

// DimensionSeries is the time series observed for one dimension tuple.
// Buckets with no rows for the tuple are absent, not zero-filled.
type DimensionSeries struct {
	Dimensions []any       `json:"dimensions"`
	Points     []TimeValue `json:"points"`
}
