package aggregation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotSupported marks aggregations the continuous pipeline is structurally
	// incapable of: AVERAGE is not incrementally mergeable, and a type without a
	// combine entry cannot be recombined from bucket partials.
	ErrNotSupported = errors.New("aggregation not supported for continuous computation")

	// ErrUnsupported marks requests naming aggregation types outside the caller's
	// enabled set or the per-bucket function table. A bad-input error, unlike
	// ErrNotSupported.
	ErrUnsupported = errors.New("unsupported aggregation")
)

// bucketExprs maps each continuous-capable aggregation to the SQL applied over
// raw rows within a single slide bucket. APPROXIMATE_UNIQUE materializes a
// mergeable sketch, not a scalar. Supporting a new type means adding entries
// here and in combineExprs; there is no default arm anywhere.
var bucketExprs = map[Type]string{
	Count:             "count(%s)",
	Sum:               "sum(%s)",
	Minimum:           "min(%s)",
	Maximum:           "max(%s)",
	ApproximateUnique: "approx_set(%s)",
}

// combineExprs maps each aggregation to the SQL merging already-aggregated
// bucket values into a window total. Inputs are partials, so COUNT combines
// with sum and APPROXIMATE_UNIQUE merges sketches before measuring cardinality.
var combineExprs = map[Type]string{
	Count:             "sum(%s)",
	Sum:               "sum(%s)",
	Minimum:           "min(%s)",
	Maximum:           "max(%s)",
	ApproximateUnique: "cardinality(merge(%s))",
}

// BucketExpr returns the per-bucket aggregation SQL over column.
func BucketExpr(t Type, column string) (string, error) {
	if t == Average {
		return "", fmt.Errorf("%w: %s (use SUM and COUNT and divide at read time)", ErrNotSupported, t)
	}
	expr, ok := bucketExprs[t]
	if !ok {
		return "", fmt.Errorf("%w: %s has no per-bucket function", ErrUnsupported, t)
	}
	return fmt.Sprintf(expr, column), nil
}

// CombineExpr returns the SQL recombining bucket partials of column into a
// window total.
func CombineExpr(t Type, column string) (string, error) {
	expr, ok := combineExprs[t]
	if !ok {
		return "", fmt.Errorf("%w: %s has no combine function", ErrNotSupported, t)
	}
	return fmt.Sprintf(expr, column), nil
}

// DefaultEnabled returns the aggregations enabled when no allow-list narrows
// them: exactly the continuous-capable set.
func DefaultEnabled() []Type {
	return []Type{Count, Sum, Minimum, Maximum, ApproximateUnique}
}

// Validate checks every requested aggregation against the enabled set.
// All-or-nothing: the returned error names every offending type. AVERAGE is
// refused outright with ErrNotSupported regardless of the enabled set.
func Validate(requested []Type, enabled []Type) error {
	for _, t := range requested {
		if t == Average {
			return fmt.Errorf("%w: %s", ErrNotSupported, t)
		}
	}

	set := make(map[Type]struct{}, len(enabled))
	for _, t := range enabled {
		set[t] = struct{}{}
	}

	var missing []string
	seen := make(map[Type]struct{}, len(requested))
	for _, t := range requested {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnsupported, strings.Join(missing, ", "))
	}
	return nil
}
