package aggregation

import (
	"fmt"
	"strings"
)

// Type identifies an aggregation function. The wire form is the upper-snake
// name; column suffixes use the lowercase form.
type Type string

const (
	Count              Type = "COUNT"
	Sum                Type = "SUM"
	Minimum            Type = "MINIMUM"
	Maximum            Type = "MAXIMUM"
	Average            Type = "AVERAGE"
	ApproximateUnique  Type = "APPROXIMATE_UNIQUE"
	StandardDeviation  Type = "STANDARD_DEVIATION"
	PopulationVariance Type = "POPULATION_VARIANCE"
)

var allTypes = map[Type]struct{}{
	Count:              {},
	Sum:                {},
	Minimum:            {},
	Maximum:            {},
	Average:            {},
	ApproximateUnique:  {},
	StandardDeviation:  {},
	PopulationVariance: {},
}

// ParseType maps a case-insensitive name to its Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := allTypes[t]; !ok {
		return "", fmt.Errorf("unknown aggregation type %q", s)
	}
	return t, nil
}

// Known reports whether t is a member of the closed type set.
func (t Type) Known() bool {
	_, ok := allTypes[t]
	return ok
}

// Canonical normalizes case and surrounding space to the wire form.
// It does not reject unknown names; table lookups do that.
func (t Type) Canonical() Type {
	return Type(strings.ToUpper(strings.TrimSpace(string(t))))
}

// Measure pairs a source column with the aggregation applied to it.
type Measure struct {
	Column      string `json:"column"`
	Aggregation Type   `json:"aggregation"`
}

// OutputColumn is the column name a measure materializes under in a
// continuous-aggregate table, e.g. {clicks SUM} -> "clicks_sum".
func (m Measure) OutputColumn() string {
	return m.Column + "_" + strings.ToLower(string(m.Aggregation))
}
