// Package catalog persists continuous-aggregate definitions. Definitions are
// immutable after creation: re-defining one means delete plus recreate, and
// duplicate-create races are settled here, not by callers.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no aggregate exists for (project, table name).
	ErrNotFound = errors.New("continuous aggregate not found")

	// ErrAlreadyExists is returned when creating over an existing table name.
	ErrAlreadyExists = errors.New("continuous aggregate already exists")
)

// ContinuousAggregate is a stored pre-aggregation definition. Query is the
// generating text the engine materializes at slide cadence; this service only
// ever reads the resulting buckets.
type ContinuousAggregate struct {
	Name          string         `json:"name"`
	TableName     string         `json:"table_name"`
	Query         string         `json:"query"`
	SlideSeconds  int64          `json:"slide_seconds"`
	WindowSeconds int64          `json:"window_seconds"`
	Options       map[string]any `json:"options,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Realtime reports whether the aggregate carries the realtime marker option.
func (c ContinuousAggregate) Realtime() bool {
	v, ok := c.Options["realtime"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Store is the metadata store for continuous aggregates, keyed by
// (project, table name).
type Store interface {
	// Create persists a new definition. ErrAlreadyExists on duplicate keys.
	Create(ctx context.Context, project string, aggregate ContinuousAggregate) error

	// Get returns one definition or ErrNotFound.
	Get(ctx context.Context, project, tableName string) (*ContinuousAggregate, error)

	// List returns every definition for a project ordered by table name.
	List(ctx context.Context, project string) ([]ContinuousAggregate, error)

	// Delete removes one definition as a whole. ErrNotFound when absent.
	Delete(ctx context.Context, project, tableName string) error
}

func cloneOptions(options map[string]any) map[string]any {
	if options == nil {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}
