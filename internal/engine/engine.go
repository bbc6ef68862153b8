// Package engine submits generated SQL to the analytics engine and adapts
// result rows. Executing queries is entirely the engine's job; this package
// never interprets the SQL it carries.
package engine

import "context"

// QualifiedName addresses a table relative to a project. One part names a raw
// event collection inside the project's namespace; two parts name a
// materialization in a shared namespace, e.g. {"continuous", "dashboard"}.
type QualifiedName []string

// Result holds ordered rows of ordered cell values from one execution.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Executor is the single seam to the analytics engine. Execute issues exactly
// one query and blocks until the engine answers; engine-reported failures come
// back as errors with the engine's message intact. FormatTableReference
// renders a project-scoped table name in the engine's dialect.
type Executor interface {
	Execute(ctx context.Context, query string) (*Result, error)
	FormatTableReference(project string, name QualifiedName) string
}
