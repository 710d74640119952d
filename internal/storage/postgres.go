package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/cel"
)

const (
	postgresTable = "audit_events"
	postgresOrder = "timestamp DESC, audit_id DESC"
)

// postgresSchema creates the audit_events table read by PostgresStorage. Rows are
// written by an external audit pipeline; the dashboard only reads them.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	audit_id      TEXT NOT NULL,
	stage         TEXT NOT NULL,
	level         TEXT NOT NULL,
	verb          TEXT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	api_group     TEXT NOT NULL DEFAULT '',
	resource      TEXT NOT NULL DEFAULT '',
	namespace     TEXT NOT NULL DEFAULT '',
	resource_name TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	status_code   INTEGER NOT NULL DEFAULT 0,
	event_json    JSONB NOT NULL,
	PRIMARY KEY (audit_id, stage)
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC, audit_id DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(api_group, resource, namespace, resource_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_level_stage ON audit_events(level, stage);
`

// PostgresConfig configures PostgresStorage.
type PostgresConfig struct {
	DSN                string
	MaxPageSize        int
	MaxLifecycleEvents int
}

// PostgresStorage reads audit events from PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	config PostgresConfig
	target queryTarget
}

// NewPostgresStorage connects to PostgreSQL and creates the schema if missing.
func NewPostgresStorage(ctx context.Context, config PostgresConfig) (*PostgresStorage, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := newPostgresStorage(db, config)
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	klog.InfoS("Connected to PostgreSQL", "table", postgresTable)
	return s, nil
}

func newPostgresStorage(db *sql.DB, config PostgresConfig) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		config: config,
		target: queryTarget{backend: "postgres", database: postgresTable},
	}
}

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

// ListRecentChanges returns one page of completed RequestResponse events.
func (s *PostgresStorage) ListRecentChanges(ctx context.Context, query RecentChangesQuery) (*RecentChangesResult, error) {
	query = query.WithDefaults(s.config.MaxPageSize)

	selectSQL, countSQL, args, err := recentChangesStatements(ctx, cel.PostgresDialect{}, postgresTable, postgresOrder, query)
	if err != nil {
		s.target.recordBuildError()
		return nil, err
	}

	total, err := s.target.count(ctx, "count_recent_changes", s.countRows, countSQL, args)
	if err != nil {
		return nil, err
	}

	events, err := s.target.queryEvents(ctx, "list_recent_changes", s.queryRows, selectSQL, args)
	if err != nil {
		return nil, err
	}

	return NewRecentChangesResult(SummarizeAll(events), total, query), nil
}

// ResourceLifecycle returns the completed events of one resource, newest-first.
func (s *PostgresStorage) ResourceLifecycle(ctx context.Context, query ResourceQuery) ([]auditv1.Event, error) {
	if query.Limit <= 0 {
		query.Limit = s.config.MaxLifecycleEvents
	}
	statement, args := lifecycleStatement(cel.PostgresDialect{}, postgresTable, postgresOrder, query)
	return s.target.queryEvents(ctx, "resource_lifecycle", s.queryRows, statement, args)
}

// CountEvents counts the stored events in the time range.
func (s *PostgresStorage) CountEvents(ctx context.Context, query CountQuery) (*EventCounts, error) {
	totalSQL, totalArgs, mutatingSQL, mutatingArgs := countStatements(cel.PostgresDialect{}, postgresTable, query)

	total, err := s.target.count(ctx, "count_events", s.countRows, totalSQL, totalArgs)
	if err != nil {
		return nil, err
	}
	mutating, err := s.target.count(ctx, "count_mutating_events", s.countRows, mutatingSQL, mutatingArgs)
	if err != nil {
		return nil, err
	}
	return &EventCounts{Total: total, Mutating: mutating}, nil
}

func (s *PostgresStorage) queryRows(ctx context.Context, statement string, args ...any) (rowIterator, error) {
	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PostgresStorage) countRows(ctx context.Context, statement string, args ...any) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, statement, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Ping checks connectivity.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
