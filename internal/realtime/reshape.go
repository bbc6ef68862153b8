package realtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// reshapeResult converts raw window-query rows into the response shape for
// (Aggregate x dimension presence). Row layout is fixed by the builder:
// time expression, dimension columns, combined value.
func reshapeResult(rows [][]any, spec WindowQuerySpec, b bounds, slideSeconds int64) any {
	hasDimensions := len(spec.Dimensions) > 0
	switch {
	case !spec.Aggregate && !hasDimensions:
		return denseSeries(rows, b, slideSeconds)
	case !spec.Aggregate && hasDimensions:
		return dimensionSeries(rows, len(spec.Dimensions))
	case spec.Aggregate && !hasDimensions:
		return scalarValue(rows)
	default:
		return dimensionValues(rows, len(spec.Dimensions))
	}
}

// denseSeries gap-fills the window: exactly one point per slide over
// [previous, current), value 0 where no bucket row exists.
func denseSeries(rows [][]any, b bounds, slideSeconds int64) []TimeValue {
	byTimestamp := make(map[int64]any, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		ts, ok := toInt64(row[0])
		if !ok {
			continue
		}
		byTimestamp[ts] = row[1]
	}

	capacity := b.current - b.previous
	if capacity < 0 {
		capacity = 0
	}

	points := make([]TimeValue, 0, capacity)
	for bucket := b.previous; bucket < b.current; bucket++ {
		ts := bucket * slideSeconds
		value, ok := byTimestamp[ts]
		if !ok {
			value = 0
		}
		points = append(points, TimeValue{Timestamp: ts, Value: value})
	}
	return points
}

// dimensionSeries groups rows by their full dimension tuple. Points keep the
// engine's ascending time order; absent tuple x bucket combinations stay
// absent. Output is ordered by dimension tuple.
func dimensionSeries(rows [][]any, dimensionCount int) []DimensionSeries {
	valueIndex := dimensionCount + 1

	grouped := make(map[string]*DimensionSeries)
	var keys []string
	for _, row := range rows {
		if len(row) <= valueIndex {
			continue
		}
		ts, ok := toInt64(row[0])
		if !ok {
			continue
		}

		dims := append([]any(nil), row[1:valueIndex]...)
		key := tupleKey(dims)
		series, exists := grouped[key]
		if !exists {
			series = &DimensionSeries{Dimensions: dims}
			grouped[key] = series
			keys = append(keys, key)
		}
		series.Points = append(series.Points, TimeValue{Timestamp: ts, Value: row[valueIndex]})
	}

	sort.Strings(keys)
	out := make([]DimensionSeries, 0, len(keys))
	for _, key := range keys {
		out = append(out, *grouped[key])
	}
	return out
}

// scalarValue collapses the window to the sole row's value, or 0 when the
// range holds no data.
func scalarValue(rows [][]any) any {
	if len(rows) == 0 || len(rows[0]) < 2 {
		return 0
	}
	return rows[0][1]
}

// dimensionValues lists one (dimension tuple, combined value) pair per row.
// Missing combinations are omitted, not zero-filled. Output is ordered by
// dimension tuple.
func dimensionValues(rows [][]any, dimensionCount int) []DimensionValue {
	valueIndex := dimensionCount + 1

	out := make([]DimensionValue, 0, len(rows))
	for _, row := range rows {
		if len(row) <= valueIndex {
			continue
		}
		out = append(out, DimensionValue{
			Dimensions: append([]any(nil), row[1:valueIndex]...),
			Value:      row[valueIndex],
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return tupleKey(out[i].Dimensions) < tupleKey(out[j].Dimensions)
	})
	return out
}

func tupleKey(dims []any) string {
	var b strings.Builder
	for i, d := range dims {
		if i > 0 {
			b.WriteByte(0)
		}
		fmt.Fprint(&b, d)
	}
	return b.String()
}

// toInt64 coerces the numeric cell types the engine adapter produces.
func toInt64(cell any) (int64, bool) {
	switch v := cell.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case decimal.Decimal:
		return v.IntPart(), true
	default:
		return 0, false
	}
}
