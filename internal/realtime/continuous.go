package realtime

import (
	"fmt"
	"strings"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
	"github.com/riptide-lab/riptide/internal/core/sqlexpr"
	"github.com/riptide-lab/riptide/internal/engine"
)

// buildContinuousQuery produces the generating query for a report: one row per
// (bucket, dimension tuple), one partial-aggregate column per measure.
// The bucket index floor(epoch/slide) is aliased to the bucket column so the
// window query can address it later.
func (s *Service) buildContinuousQuery(def ReportDefinition, filter *sqlexpr.Expr) (string, error) {
	timeColumn := sqlexpr.QuoteIdentifier(s.timeColumn)

	dimensions := make([]string, len(def.Dimensions))
	for i, dim := range def.Dimensions {
		column, err := sqlexpr.Column(dim)
		if err != nil {
			return "", validationf("invalid dimension %q: %v", dim, err)
		}
		dimensions[i] = column
	}

	var q strings.Builder
	q.WriteString("select ")
	fmt.Fprintf(&q, "(cast(%s(%s) as bigint) / %d) as %s",
		s.epochFunction, timeColumn, s.slideSeconds(), bucketColumn)

	for _, dim := range dimensions {
		q.WriteString(", ")
		q.WriteString(dim)
	}

	measureColumns := make([]string, 0, len(def.Measures))
	for _, measure := range def.Measures {
		column, err := sqlexpr.Column(measure.Column)
		if err != nil {
			return "", validationf("invalid measure column %q: %v", measure.Column, err)
		}
		measureColumns = append(measureColumns, column)

		expr, err := aggregation.BucketExpr(measure.Aggregation, column)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&q, ", %s as %s", expr, sqlexpr.QuoteIdentifier(measure.OutputColumn()))
	}

	// Every collection is projected to the same column set before the union:
	// time column, dimensions, raw measure columns.
	projection := dedupeColumns(timeColumn, dimensions, measureColumns)

	q.WriteString(" from (")
	for i, collection := range def.Collections {
		if i > 0 {
			q.WriteString(" union all ")
		}
		ref := s.executor.FormatTableReference(def.Project, engine.QualifiedName{collection})
		fmt.Fprintf(&q, "(select %s from %s)", strings.Join(projection, ", "), ref)
	}
	q.WriteString(") as data")

	if filter != nil {
		formatted, err := filter.Format(nil)
		if err != nil {
			return "", validationf("invalid filter: %v", err)
		}
		q.WriteString(" where ")
		q.WriteString(formatted)
	}

	q.WriteString(" group by 1")
	for i := range dimensions {
		fmt.Fprintf(&q, ", %d", i+2)
	}

	return q.String(), nil
}

// dedupeColumns keeps first occurrences so a column serving as both dimension
// and measure source is projected once.
func dedupeColumns(timeColumn string, dimensions, measures []string) []string {
	seen := map[string]struct{}{timeColumn: {}}
	columns := make([]string, 0, 1+len(dimensions)+len(measures))
	columns = append(columns, timeColumn)
	for _, column := range append(append([]string{}, dimensions...), measures...) {
		if _, ok := seen[column]; ok {
			continue
		}
		seen[column] = struct{}{}
		columns = append(columns, column)
	}
	return columns
}
