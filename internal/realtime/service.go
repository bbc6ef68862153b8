// Package realtime implements real-time reports over continuously arriving
// events. A report is created once as a continuous aggregate (time-bucketed
// pre-aggregation maintained by the query engine at slide cadence) and read
// many times by recombining the buckets in a caller's window with per-type
// combine functions.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
	"github.com/riptide-lab/riptide/internal/core/catalog"
	"github.com/riptide-lab/riptide/internal/core/slug"
	"github.com/riptide-lab/riptide/internal/core/sqlexpr"
	"github.com/riptide-lab/riptide/internal/engine"
)

const (
	defaultSlide         = time.Minute
	defaultWindow        = time.Hour
	defaultTimeColumn    = "_time"
	defaultEpochFunction = "to_unixtime"
)

var (
	// ErrValidation marks request validation errors that should return HTTP 400.
	ErrValidation = errors.New("invalid realtime request")

	// ErrNotFound marks lookups of continuous aggregates absent for the project.
	ErrNotFound = errors.New("realtime report not found")

	// ErrExecution wraps engine-reported query failures. The engine message is
	// preserved; no retry happens at this layer.
	ErrExecution = errors.New("realtime query failed")
)

// Options configure windowing and the event-time -> epoch expression.
// Zero values fall back to defaults (1m slide, 1h window, "_time",
// "to_unixtime").
type Options struct {
	Slide         time.Duration
	Window        time.Duration
	TimeColumn    string
	EpochFunction string
}

// Service is the realtime reporting surface: report creation as continuous
// aggregates, window queries over their buckets, list and delete.
// Stateless apart from injected collaborators; safe for concurrent use.
type Service struct {
	store         catalog.Store
	executor      engine.Executor
	allowlist     *aggregation.Allowlist
	slide         time.Duration
	window        time.Duration
	timeColumn    string
	epochFunction string
	nowFn         func() time.Time
}

// NewService creates a realtime service. A nil allowlist enables the default
// continuous-capable aggregation set for every project.
func NewService(store catalog.Store, executor engine.Executor, allowlist *aggregation.Allowlist, opts Options) *Service {
	if opts.Slide <= 0 {
		opts.Slide = defaultSlide
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.TimeColumn == "" {
		opts.TimeColumn = defaultTimeColumn
	}
	if opts.EpochFunction == "" {
		opts.EpochFunction = defaultEpochFunction
	}
	if allowlist == nil {
		allowlist = aggregation.NewAllowlist(aggregation.DefaultEnabled())
	}

	return &Service{
		store:         store,
		executor:      executor,
		allowlist:     allowlist,
		slide:         opts.Slide,
		window:        opts.Window,
		timeColumn:    opts.TimeColumn,
		epochFunction: opts.EpochFunction,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *Service) slideSeconds() int64  { return int64(s.slide / time.Second) }
func (s *Service) windowSeconds() int64 { return int64(s.window / time.Second) }

// Create validates a report definition, generates its continuous-aggregate
// query and persists the definition. All-or-nothing: nothing is persisted on
// any failure.
func (s *Service) Create(ctx context.Context, def ReportDefinition) (*catalog.ContinuousAggregate, error) {
	def, err := s.normalizeDefinition(def)
	if err != nil {
		return nil, err
	}

	requested := make([]aggregation.Type, len(def.Measures))
	for i, measure := range def.Measures {
		requested[i] = measure.Aggregation
	}
	if err := aggregation.Validate(requested, s.allowlist.EnabledFor(def.Project)); err != nil {
		return nil, err
	}

	filter, err := s.parseFilter(def.Filter)
	if err != nil {
		return nil, err
	}

	query, err := s.buildContinuousQuery(def, filter)
	if err != nil {
		return nil, err
	}

	aggregate := catalog.ContinuousAggregate{
		Name:          def.Name,
		TableName:     def.TableName,
		Query:         query,
		SlideSeconds:  s.slideSeconds(),
		WindowSeconds: s.windowSeconds(),
		Options: map[string]any{
			"realtime":   true,
			"measures":   def.Measures,
			"dimensions": def.Dimensions,
		},
	}
	if err := s.store.Create(ctx, def.Project, aggregate); err != nil {
		return nil, fmt.Errorf("create continuous aggregate: %w", err)
	}

	slog.Info("Created realtime report",
		"project", def.Project,
		"table_name", def.TableName,
		"measures", len(def.Measures))
	return &aggregate, nil
}

// Get runs one window query against a stored continuous aggregate and
// reshapes the rows. The aggregate must exist before any engine call; at most
// one execution is issued per call.
func (s *Service) Get(ctx context.Context, spec WindowQuerySpec) (*QueryResult, error) {
	spec, err := s.normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	filter, err := s.parseFilter(spec.Filter)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Get(ctx, spec.Project, spec.TableName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, spec.Project, spec.TableName)
		}
		return nil, fmt.Errorf("load continuous aggregate: %w", err)
	}

	// Aggregates created elsewhere may predate recorded intervals.
	slideSeconds := stored.SlideSeconds
	if slideSeconds <= 0 {
		slideSeconds = s.slideSeconds()
	}
	windowSeconds := stored.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = s.windowSeconds()
	}

	b := computeBounds(s.nowFn(), slideSeconds, windowSeconds, spec.DateStart, spec.DateEnd)

	tableRef := s.executor.FormatTableReference(spec.Project, engine.QualifiedName{ContinuousSchema, stored.TableName})
	query, err := buildWindowQuery(tableRef, spec, filter, b, slideSeconds)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	return &QueryResult{
		Start:  b.startSeconds(slideSeconds),
		End:    b.endSeconds(slideSeconds),
		Result: reshapeResult(result.Rows, spec, b, slideSeconds),
	}, nil
}

// List returns the project's realtime reports: catalog entries carrying the
// realtime marker option. Other continuous aggregates are not exposed here.
func (s *Service) List(ctx context.Context, project string) ([]catalog.ContinuousAggregate, error) {
	if project == "" {
		return nil, validationf("project is required")
	}

	aggregates, err := s.store.List(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("list continuous aggregates: %w", err)
	}

	reports := make([]catalog.ContinuousAggregate, 0, len(aggregates))
	for _, aggregate := range aggregates {
		if aggregate.Realtime() {
			reports = append(reports, aggregate)
		}
	}
	return reports, nil
}

// Delete removes a realtime report's continuous aggregate as a whole.
func (s *Service) Delete(ctx context.Context, project, tableName string) error {
	if project == "" {
		return validationf("project is required")
	}
	if tableName == "" {
		return validationf("table_name is required")
	}

	if err := s.store.Delete(ctx, project, tableName); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, project, tableName)
		}
		return fmt.Errorf("delete continuous aggregate: %w", err)
	}

	slog.Info("Deleted realtime report", "project", project, "table_name", tableName)
	return nil
}

func (s *Service) normalizeDefinition(def ReportDefinition) (ReportDefinition, error) {
	if def.Project == "" {
		return def, validationf("project is required")
	}
	if def.Name == "" {
		return def, validationf("name is required")
	}
	if len(def.Collections) == 0 {
		return def, validationf("at least one collection is required")
	}
	for _, collection := range def.Collections {
		if collection == "" {
			return def, validationf("collection name must not be empty")
		}
	}
	if len(def.Measures) == 0 {
		return def, validationf("at least one measure is required")
	}

	measures := make([]aggregation.Measure, len(def.Measures))
	for i, measure := range def.Measures {
		if measure.Column == "" {
			return def, validationf("measure column is required")
		}
		measure.Aggregation = measure.Aggregation.Canonical()
		measures[i] = measure
	}
	def.Measures = measures

	if def.TableName == "" {
		def.TableName = slug.Make(def.Name)
	}
	if def.TableName == "" {
		return def, validationf("name %q does not produce a usable table name", def.Name)
	}

	return def, nil
}

func (s *Service) normalizeSpec(spec WindowQuerySpec) (WindowQuerySpec, error) {
	if spec.Project == "" {
		return spec, validationf("project is required")
	}
	if spec.TableName == "" {
		return spec, validationf("table_name is required")
	}
	if spec.Measure.Column == "" {
		return spec, validationf("measure column is required")
	}
	spec.Measure.Aggregation = spec.Measure.Aggregation.Canonical()
	if spec.Measure.Aggregation == "" {
		return spec, validationf("measure aggregation is required")
	}
	if spec.DateStart != nil && spec.DateEnd != nil && spec.DateEnd.Before(*spec.DateStart) {
		return spec, validationf("date_end must not be before date_start")
	}
	return spec, nil
}

func (s *Service) parseFilter(filter string) (*sqlexpr.Expr, error) {
	if strings.TrimSpace(filter) == "" {
		return nil, nil
	}
	expr, err := sqlexpr.Parse(filter)
	if err != nil {
		return nil, validationf("invalid filter: %v", err)
	}
	return expr, nil
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
