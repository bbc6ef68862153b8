package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const connectPingTimeout = 5 * time.Second

// SQLAdapter implements Executor over any registered database/sql driver.
// The deployment picks the engine by driver name; the adapter only carries
// query text and adapts rows.
type SQLAdapter struct {
	db           *sql.DB
	queryTimeout time.Duration
}

var _ Executor = (*SQLAdapter)(nil)

// Open dials the engine and configures the connection pool. Schema and data
// are entirely engine-managed; there is nothing to migrate here.
func Open(driver, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping engine: %w", err)
	}

	slog.Info("[Engine] Connection pool configured",
		"driver", driver,
		"max_open_conns", maxOpenConns,
		"max_idle_conns", maxIdleConns)

	return db, nil
}

// NewSQLAdapter wraps an open engine connection. queryTimeout bounds each
// execution; zero disables the bound.
func NewSQLAdapter(db *sql.DB, queryTimeout time.Duration) *SQLAdapter {
	return &SQLAdapter{db: db, queryTimeout: queryTimeout}
}

// Execute submits one query and drains the result. Every submission gets a
// query id so engine failures can be correlated with logs.
func (a *SQLAdapter) Execute(ctx context.Context, query string) (*Result, error) {
	queryID := uuid.NewString()
	slog.Debug("Submitting engine query", "query_id", queryID, "sql", query)

	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine query %s failed: %w", queryID, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("engine query %s columns: %w", queryID, err)
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("engine query %s scan: %w", queryID, err)
		}
		for i, cell := range cells {
			cells[i] = normalizeCell(cell)
		}
		result.Rows = append(result.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine query %s failed: %w", queryID, err)
	}

	return result, nil
}

// FormatTableReference renders a project-scoped table name. Raw collections
// live in a schema named after the project; two-part names address a shared
// namespace with project-prefixed tables, e.g. "continuous"."demo_dashboard".
// Parts are always quoted so generated SQL never depends on the engine's
// identifier case rules.
func (a *SQLAdapter) FormatTableReference(project string, name QualifiedName) string {
	switch len(name) {
	case 0:
		return quotePart(project)
	case 1:
		return quotePart(project) + "." + quotePart(name[0])
	default:
		return quotePart(name[0]) + "." + quotePart(project+"_"+name[1])
	}
}

func quotePart(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// normalizeCell maps driver-specific scan values onto the small set of types
// the reshaping layer handles. database/sql hands NUMERIC columns back as raw
// bytes; exact decimals keep big counters lossless.
func normalizeCell(v any) any {
	switch c := v.(type) {
	case []byte:
		if d, err := decimal.NewFromString(string(c)); err == nil {
			return d
		}
		return string(c)
	case time.Time:
		return c.UTC()
	default:
		return v
	}
}
