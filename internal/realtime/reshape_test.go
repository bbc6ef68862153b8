package realtime

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDenseSeriesFillsEveryBucket(t *testing.T) {
	b := bounds{previous: 16666605, current: 16666665}

	points := denseSeries(nil, b, 60)
	require.Len(t, points, 60)

	for i, point := range points {
		require.Equal(t, int64(999996300+60*i), point.Timestamp)
		require.Equal(t, 0, point.Value)
	}
}

func TestDenseSeriesKeepsPresentBuckets(t *testing.T) {
	b := bounds{previous: 16666605, current: 16666665}

	// bucket 10 of the window carries a count of 5
	rows := [][]any{
		{int64(999996900), int64(5)},
	}

	points := denseSeries(rows, b, 60)
	require.Len(t, points, 60)
	require.Equal(t, int64(999996900), points[10].Timestamp)
	require.Equal(t, int64(5), points[10].Value)

	for i, point := range points {
		if i == 10 {
			continue
		}
		require.Equal(t, 0, point.Value)
	}

	// strictly increasing, slide-spaced timestamps
	for i := 1; i < len(points); i++ {
		require.Equal(t, int64(60), points[i].Timestamp-points[i-1].Timestamp)
	}
}

func TestDenseSeriesEmptyRange(t *testing.T) {
	points := denseSeries(nil, bounds{previous: 10, current: 10}, 60)
	require.Empty(t, points)

	points = denseSeries(nil, bounds{previous: 10, current: 8}, 60)
	require.Empty(t, points)
}

func TestDimensionSeriesGroupsByFullTuple(t *testing.T) {
	rows := [][]any{
		{int64(600), "US", "mobile", int64(1)},
		{int64(660), "US", "mobile", int64(2)},
		{int64(600), "US", "desktop", int64(7)},
		{int64(660), "TR", "mobile", int64(3)},
	}

	series := dimensionSeries(rows, 2)
	require.Len(t, series, 3)

	require.Equal(t, []any{"TR", "mobile"}, series[0].Dimensions)
	require.Equal(t, []TimeValue{{Timestamp: 660, Value: int64(3)}}, series[0].Points)

	require.Equal(t, []any{"US", "desktop"}, series[1].Dimensions)
	require.Equal(t, []TimeValue{{Timestamp: 600, Value: int64(7)}}, series[1].Points)

	require.Equal(t, []any{"US", "mobile"}, series[2].Dimensions)
	require.Equal(t, []TimeValue{
		{Timestamp: 600, Value: int64(1)},
		{Timestamp: 660, Value: int64(2)},
	}, series[2].Points)
}

func TestScalarValue(t *testing.T) {
	require.Equal(t, 0, scalarValue(nil))
	require.Equal(t, int64(42), scalarValue([][]any{{int64(999999900), int64(42)}}))
}

func TestDimensionValuesOrderedByTuple(t *testing.T) {
	rows := [][]any{
		{int64(999999900), "US", int64(8)},
		{int64(999999900), "TR", int64(10)},
	}

	values := dimensionValues(rows, 1)
	require.Equal(t, []DimensionValue{
		{Dimensions: []any{"TR"}, Value: int64(10)},
		{Dimensions: []any{"US"}, Value: int64(8)},
	}, values)
}

func TestReshapeResultDispatch(t *testing.T) {
	b := bounds{previous: 10, current: 12}

	series := reshapeResult(nil, WindowQuerySpec{}, b, 60)
	require.IsType(t, []TimeValue{}, series)

	grouped := reshapeResult(nil, WindowQuerySpec{Dimensions: []string{"country"}}, b, 60)
	require.IsType(t, []DimensionSeries{}, grouped)

	scalar := reshapeResult(nil, WindowQuerySpec{Aggregate: true}, b, 60)
	require.Equal(t, 0, scalar)

	list := reshapeResult(nil, WindowQuerySpec{Aggregate: true, Dimensions: []string{"country"}}, b, 60)
	require.IsType(t, []DimensionValue{}, list)
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name string
		cell any
		want int64
		ok   bool
	}{
		{name: "int64", cell: int64(9), want: 9, ok: true},
		{name: "int", cell: 9, want: 9, ok: true},
		{name: "float64", cell: float64(600.0), want: 600, ok: true},
		{name: "decimal", cell: decimal.NewFromInt(600), want: 600, ok: true},
		{name: "string", cell: "600", ok: false},
		{name: "nil", cell: nil, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toInt64(tc.cell)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestTimeValueMarshalsAsPair(t *testing.T) {
	point := TimeValue{Timestamp: 999996900, Value: int64(5)}

	encoded, err := json.Marshal(point)
	require.NoError(t, err)
	require.JSONEq(t, `[999996900, 5]`, string(encoded))

	zero := TimeValue{Timestamp: 999996300, Value: 0}
	encoded, err = json.Marshal(zero)
	require.NoError(t, err)
	require.JSONEq(t, `[999996300, 0]`, string(encoded))
}
