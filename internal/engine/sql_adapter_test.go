package engine

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSQLAdapterExecute(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := "select _time * 60, sum(clicks_count) from t group by 1"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"_time", "clicks_count"}).
			AddRow(int64(600), []byte("42")).
			AddRow(int64(660), []byte("17.5")))

	adapter := NewSQLAdapter(db, 0)
	result, err := adapter.Execute(context.Background(), query)
	require.NoError(t, err)

	require.Equal(t, []string{"_time", "clicks_count"}, result.Columns)
	require.Len(t, result.Rows, 2)
	require.Equal(t, int64(600), result.Rows[0][0])
	require.True(t, decimal.NewFromInt(42).Equal(result.Rows[0][1].(decimal.Decimal)))
	require.True(t, decimal.RequireFromString("17.5").Equal(result.Rows[1][1].(decimal.Decimal)))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdapterExecutePreservesEngineError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("select broken")).
		WillReturnError(fmt.Errorf("line 1:8: column 'broken' cannot be resolved"))

	adapter := NewSQLAdapter(db, time.Second)
	_, err = adapter.Execute(context.Background(), "select broken")
	require.Error(t, err)
	require.Contains(t, err.Error(), "column 'broken' cannot be resolved")
}

func TestSQLAdapterNormalizesCells(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	loc := time.FixedZone("CET", 3600)
	stamp := time.Date(2026, 3, 1, 13, 0, 0, 0, loc)

	mock.ExpectQuery(regexp.QuoteMeta("select cells")).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d"}).
			AddRow([]byte("US"), []byte("10"), stamp, nil))

	adapter := NewSQLAdapter(db, 0)
	result, err := adapter.Execute(context.Background(), "select cells")
	require.NoError(t, err)

	row := result.Rows[0]
	require.Equal(t, "US", row[0])
	require.IsType(t, decimal.Decimal{}, row[1])
	require.Equal(t, stamp.UTC(), row[2])
	require.Nil(t, row[3])
}

func TestFormatTableReference(t *testing.T) {
	adapter := NewSQLAdapter(nil, 0)

	tests := []struct {
		name     string
		project  string
		table    QualifiedName
		expected string
	}{
		{name: "collection", project: "demo", table: QualifiedName{"pageviews"}, expected: `"demo"."pageviews"`},
		{name: "materialization", project: "demo", table: QualifiedName{"continuous", "dashboard"}, expected: `"continuous"."demo_dashboard"`},
		{name: "embedded quote escaped", project: "My Project", table: QualifiedName{`page "views"`}, expected: `"My Project"."page ""views"""`},
		{name: "empty name falls back to project", project: "demo", table: nil, expected: `"demo"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, adapter.FormatTableReference(tc.project, tc.table))
		})
	}
}
