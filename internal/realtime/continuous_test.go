package realtime

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/require"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
	"github.com/riptide-lab/riptide/internal/core/catalog"
)

func newBuilderService(t *testing.T) *Service {
	t.Helper()
	return newTestService(catalog.NewMemoryStore(), &fakeExecutor{})
}

func TestBuildContinuousQuery(t *testing.T) {
	svc := newBuilderService(t)

	tests := []struct {
		name string
		def  ReportDefinition
		want string
	}{
		{
			name: "single collection with dimension and filter",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"pageview"},
				Measures:    []aggregation.Measure{{Column: "total", Aggregation: aggregation.Sum}},
				Dimensions:  []string{"country"},
				Filter:      "country != 'US'",
			},
			want: `select (cast(to_unixtime(_time) as bigint) / 60) as _time, country, sum(total) as total_sum` +
				` from ((select _time, country, total from "demo"."pageview")) as data` +
				` where (country <> 'US') group by 1, 2`,
		},
		{
			name: "multiple collections share the measure column once",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"pageview", "click"},
				Measures: []aggregation.Measure{
					{Column: "clicks", Aggregation: aggregation.Count},
					{Column: "clicks", Aggregation: aggregation.Sum},
				},
			},
			want: `select (cast(to_unixtime(_time) as bigint) / 60) as _time, count(clicks) as clicks_count, sum(clicks) as clicks_sum` +
				` from ((select _time, clicks from "demo"."pageview") union all (select _time, clicks from "demo"."click")) as data` +
				` group by 1`,
		},
		{
			name: "approximate unique emits a mergeable sketch",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"events"},
				Measures:    []aggregation.Measure{{Column: "visitor", Aggregation: aggregation.ApproximateUnique}},
			},
			want: `select (cast(to_unixtime(_time) as bigint) / 60) as _time, approx_set(visitor) as visitor_approximate_unique` +
				` from ((select _time, visitor from "demo"."events")) as data group by 1`,
		},
		{
			name: "dimension doubling as measure source projected once",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"orders"},
				Measures:    []aggregation.Measure{{Column: "country", Aggregation: aggregation.Count}},
				Dimensions:  []string{"country"},
			},
			want: `select (cast(to_unixtime(_time) as bigint) / 60) as _time, country, count(country) as country_count` +
				` from ((select _time, country from "demo"."orders")) as data group by 1, 2`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := svc.parseFilter(tc.def.Filter)
			require.NoError(t, err)

			got, err := svc.buildContinuousQuery(tc.def, filter)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			// The builder must only ever emit engine-parseable text.
			parsed, err := pg_query.Parse(got)
			require.NoError(t, err)
			require.Len(t, parsed.Stmts, 1)
		})
	}
}

func TestBuildContinuousQueryErrors(t *testing.T) {
	svc := newBuilderService(t)

	tests := []struct {
		name    string
		def     ReportDefinition
		wantErr error
	}{
		{
			name: "average is structurally rejected",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"events"},
				Measures:    []aggregation.Measure{{Column: "price", Aggregation: aggregation.Average}},
			},
			wantErr: aggregation.ErrNotSupported,
		},
		{
			name: "aggregation without a per-bucket entry",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"events"},
				Measures:    []aggregation.Measure{{Column: "price", Aggregation: aggregation.StandardDeviation}},
			},
			wantErr: aggregation.ErrUnsupported,
		},
		{
			name: "invalid dimension name",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"events"},
				Measures:    []aggregation.Measure{{Column: "price", Aggregation: aggregation.Sum}},
				Dimensions:  []string{"country; drop table events"},
			},
			wantErr: ErrValidation,
		},
		{
			name: "invalid measure column",
			def: ReportDefinition{
				Project:     "demo",
				Collections: []string{"events"},
				Measures:    []aggregation.Measure{{Column: "1price", Aggregation: aggregation.Sum}},
			},
			wantErr: ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.buildContinuousQuery(tc.def, nil)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}
