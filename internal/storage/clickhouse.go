package storage

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/cel"
)

const (
	DefaultClickHouseTable = "audit_logs"

	// ORDER BY must match the table's sort key so ClickHouse can read in index order.
	clickhouseRecentOrder    = "toStartOfHour(timestamp) DESC, timestamp DESC, api_group DESC, resource DESC, audit_id DESC"
	clickhouseLifecycleOrder = "timestamp DESC, audit_id DESC"
)

// ClickHouseConfig configures the ClickHouse connection and query limits.
//
// The table is expected to hold one row per audit event stage with the raw event in
// event_json and the materialized columns level, stage, audit_id, verb, user,
// user_agent, timestamp, namespace, resource, resource_name, api_group and
// status_code.
type ClickHouseConfig struct {
	Address  string
	Database string
	Username string
	Password string
	Table    string

	// TLS configuration (optional - disabled by default)
	TLSEnabled  bool   // Enable TLS for ClickHouse connection
	TLSCertFile string // Path to client certificate file
	TLSKeyFile  string // Path to client key file
	TLSCAFile   string // Path to CA certificate file

	MaxPageSize        int // Maximum results per page
	MaxLifecycleEvents int // Maximum events loaded for one resource
}

// ClickHouseStorage reads audit events from ClickHouse.
type ClickHouseStorage struct {
	conn   driver.Conn
	config ClickHouseConfig
	target queryTarget
}

// NewClickHouseStorage establishes a connection to ClickHouse and validates connectivity.
func NewClickHouseStorage(ctx context.Context, config ClickHouseConfig) (*ClickHouseStorage, error) {
	options := &clickhouse.Options{
		Addr: []string{config.Address},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	if config.TLSEnabled {
		tlsConfig, err := loadTLSConfig(config)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS configuration: %w", err)
		}
		options.TLS = tlsConfig
		klog.V(2).Info("ClickHouse TLS enabled")
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	klog.InfoS("Connected to ClickHouse", "address", config.Address, "database", config.Database, "table", config.table())

	return newClickHouseStorage(conn, config), nil
}

func newClickHouseStorage(conn driver.Conn, config ClickHouseConfig) *ClickHouseStorage {
	return &ClickHouseStorage{
		conn:   conn,
		config: config,
		target: queryTarget{backend: "clickhouse", database: config.Database},
	}
}

// loadTLSConfig loads TLS certificates and creates a tls.Config for ClickHouse connection.
func loadTLSConfig(config ClickHouseConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.TLSCertFile != "" && config.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.TLSCertFile, config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		klog.V(2).InfoS("Loaded client certificate", "path", config.TLSCertFile)
	}

	if config.TLSCAFile != "" {
		caCert, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
		klog.V(2).InfoS("Loaded CA certificate", "path", config.TLSCAFile)
	}

	return tlsConfig, nil
}

func (c ClickHouseConfig) table() string {
	table := c.Table
	if table == "" {
		table = DefaultClickHouseTable
	}
	if c.Database == "" {
		return table
	}
	return c.Database + "." + table
}

// ListRecentChanges returns one page of completed RequestResponse events.
func (s *ClickHouseStorage) ListRecentChanges(ctx context.Context, query RecentChangesQuery) (*RecentChangesResult, error) {
	query = query.WithDefaults(s.config.MaxPageSize)

	selectSQL, countSQL, args, err := recentChangesStatements(ctx, cel.ClickHouseDialect{}, s.config.table(), clickhouseRecentOrder, query)
	if err != nil {
		s.target.recordBuildError()
		// Filter errors already carry a user-friendly message.
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
func (s *ClickHouseStorage) ResourceLifecycle(ctx context.Context, query ResourceQuery) ([]auditv1.Event, error) {
	if query.Limit <= 0 {
		query.Limit = s.config.MaxLifecycleEvents
	}
	statement, args := lifecycleStatement(cel.ClickHouseDialect{}, s.config.table(), clickhouseLifecycleOrder, query)
	return s.target.queryEvents(ctx, "resource_lifecycle", s.queryRows, statement, args)
}

// CountEvents counts the stored events in the time range.
func (s *ClickHouseStorage) CountEvents(ctx context.Context, query CountQuery) (*EventCounts, error) {
	totalSQL, totalArgs, mutatingSQL, mutatingArgs := countStatements(cel.ClickHouseDialect{}, s.config.table(), query)

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

func (s *ClickHouseStorage) queryRows(ctx context.Context, statement string, args ...any) (rowIterator, error) {
	return s.conn.Query(ctx, statement, args...)
}

func (s *ClickHouseStorage) countRows(ctx context.Context, statement string, args ...any) (int, error) {
	var total uint64
	if err := s.conn.QueryRow(ctx, statement, args...).Scan(&total); err != nil {
		return 0, err
	}
	return int(total), nil
}

// Ping checks connectivity.
func (s *ClickHouseStorage) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseStorage) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
