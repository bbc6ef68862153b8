package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
	"github.com/riptide-lab/riptide/internal/core/sqlexpr"
)

const (
	// bucketColumn is the bucket-index column every continuous aggregate carries.
	bucketColumn = "_time"

	// ContinuousSchema is the namespace continuous aggregates materialize under.
	ContinuousSchema = "continuous"

	// windowRowLimit caps the recombination result size.
	windowRowLimit = 5000
)

// bounds delimit a queried window in bucket-index units, inclusive.
type bounds struct {
	previous int64
	current  int64
}

// computeBounds resolves the queried range. The default range is one full
// window ending at the newest complete bucket (now - slide); explicit dates
// override either edge.
func computeBounds(now time.Time, slideSeconds, windowSeconds int64, dateStart, dateEnd *time.Time) bounds {
	lastUpdate := now.Unix() - slideSeconds

	startSeconds := lastUpdate - windowSeconds
	if dateStart != nil {
		startSeconds = dateStart.Unix()
	}

	endSeconds := lastUpdate
	if dateEnd != nil {
		endSeconds = dateEnd.Unix()
	}

	return bounds{
		previous: startSeconds / slideSeconds,
		current:  endSeconds / slideSeconds,
	}
}

func (b bounds) startSeconds(slideSeconds int64) int64 { return b.previous * slideSeconds }
func (b bounds) endSeconds(slideSeconds int64) int64   { return b.current * slideSeconds }

// buildWindowQuery emits the recombination query over a continuous aggregate's
// bucket range: time expression, requested dimensions, the combine expression
// over the measure's materialized column, the bucket-range predicate conjoined
// with the caller's filter (column references re-qualified against the
// aggregate's table), positional grouping, ascending time order, row cap.
func buildWindowQuery(tableRef string, spec WindowQuerySpec, filter *sqlexpr.Expr, b bounds, slideSeconds int64) (string, error) {
	dimensions := make([]string, len(spec.Dimensions))
	for i, dim := range spec.Dimensions {
		column, err := sqlexpr.Column(dim)
		if err != nil {
			return "", validationf("invalid dimension %q: %v", dim, err)
		}
		dimensions[i] = column
	}

	measureColumn := sqlexpr.QuoteIdentifier(spec.Measure.OutputColumn())
	combine, err := aggregation.CombineExpr(spec.Measure.Aggregation, measureColumn)
	if err != nil {
		return "", err
	}

	var q strings.Builder
	q.WriteString("select ")
	if spec.Aggregate {
		fmt.Fprintf(&q, "%d * cast(%d as bigint)", b.current, slideSeconds)
	} else {
		fmt.Fprintf(&q, "%s * cast(%d as bigint)", bucketColumn, slideSeconds)
	}

	for _, dim := range dimensions {
		q.WriteString(", ")
		q.WriteString(dim)
	}

	q.WriteString(", ")
	q.WriteString(combine)

	fmt.Fprintf(&q, " from %s where %s between %d and %d", tableRef, bucketColumn, b.previous, b.current)

	if filter != nil {
		formatted, err := filter.Format(func(parts []string) string {
			return tableRef + "." + sqlexpr.QuoteIdentifier(parts[len(parts)-1])
		})
		if err != nil {
			return "", validationf("invalid filter: %v", err)
		}
		q.WriteString(" and ")
		q.WriteString(formatted)
	}

	if !spec.Aggregate || len(dimensions) > 0 {
		q.WriteString(" group by 1")
		for i := range dimensions {
			fmt.Fprintf(&q, ", %d", i+2)
		}
	}

	fmt.Fprintf(&q, " order by 1 asc limit %d", windowRowLimit)

	return q.String(), nil
}
