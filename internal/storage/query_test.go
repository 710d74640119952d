package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.miloapis.com/auditdashboard/internal/cel"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
)

func TestRecentChangesStatements_ClickHouse(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      RecentChangesQuery
		wantSelect string
		wantCount  string
		wantArgs   []any
	}{
		{
			name:       "defaults",
			query:      RecentChangesQuery{}.WithDefaults(0),
			wantSelect: "SELECT event_json FROM audit.audit_logs WHERE level = ? AND stage = ? ORDER BY " + clickhouseRecentOrder + " LIMIT 10 OFFSET 0",
			wantCount:  "SELECT count(*) FROM audit.audit_logs WHERE level = ? AND stage = ?",
			wantArgs:   []any{"RequestResponse", "ResponseComplete"},
		},
		{
			name:       "time range and page",
			query:      RecentChangesQuery{Page: 2, PageSize: 25, Since: since, Until: until},
			wantSelect: "SELECT event_json FROM audit.audit_logs WHERE level = ? AND stage = ? AND timestamp >= ? AND timestamp < ? ORDER BY " + clickhouseRecentOrder + " LIMIT 25 OFFSET 50",
			wantCount:  "SELECT count(*) FROM audit.audit_logs WHERE level = ? AND stage = ? AND timestamp >= ? AND timestamp < ?",
			wantArgs:   []any{"RequestResponse", "ResponseComplete", since, until},
		},
		{
			name:       "offset never goes negative",
			query:      RecentChangesQuery{Page: 9300000000000000, PageSize: 1000},
			wantSelect: "SELECT event_json FROM audit.audit_logs WHERE level = ? AND stage = ? ORDER BY " + clickhouseRecentOrder + " LIMIT 1000 OFFSET 9223372036854775807",
			wantCount:  "SELECT count(*) FROM audit.audit_logs WHERE level = ? AND stage = ?",
			wantArgs:   []any{"RequestResponse", "ResponseComplete"},
		},
		{
			name:       "filter",
			query:      RecentChangesQuery{PageSize: 10, Filter: "verb == 'delete' && objectRef.namespace == 'prod'"},
			wantSelect: "SELECT event_json FROM audit.audit_logs WHERE level = ? AND stage = ? AND (verb = ? AND namespace = ?) ORDER BY " + clickhouseRecentOrder + " LIMIT 10 OFFSET 0",
			wantCount:  "SELECT count(*) FROM audit.audit_logs WHERE level = ? AND stage = ? AND (verb = ? AND namespace = ?)",
			wantArgs:   []any{"RequestResponse", "ResponseComplete", "delete", "prod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := ClickHouseConfig{Database: "audit"}
			selectSQL, countSQL, args, err := recentChangesStatements(context.Background(), cel.ClickHouseDialect{}, config.table(), clickhouseRecentOrder, tt.query)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSelect, selectSQL)
			assert.Equal(t, tt.wantCount, countSQL)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRecentChangesStatements_Postgres(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query := RecentChangesQuery{
		Page:     1,
		PageSize: 20,
		Since:    since,
		Filter:   "user.username == 'alice' || objectRef.resource in ['secrets', 'configmaps']",
	}

	selectSQL, countSQL, args, err := recentChangesStatements(context.Background(), cel.PostgresDialect{}, postgresTable, postgresOrder, query)

	require.NoError(t, err)
	assert.Equal(t,
		"SELECT event_json FROM audit_events WHERE level = $1 AND stage = $2 AND timestamp >= $3 AND (username = $4 OR resource IN ($5, $6)) ORDER BY timestamp DESC, audit_id DESC LIMIT 20 OFFSET 20",
		selectSQL)
	assert.Equal(t,
		"SELECT count(*) FROM audit_events WHERE level = $1 AND stage = $2 AND timestamp >= $3 AND (username = $4 OR resource IN ($5, $6))",
		countSQL)
	assert.Equal(t, []any{"RequestResponse", "ResponseComplete", since, "alice", "secrets", "configmaps"}, args)
}

func TestRecentChangesStatements_InvalidFilter(t *testing.T) {
	_, _, _, err := recentChangesStatements(context.Background(), cel.ClickHouseDialect{}, "audit_logs", clickhouseRecentOrder,
		RecentChangesQuery{PageSize: 10, Filter: "verb === 'delete'"})

	require.Error(t, err)
	assert.True(t, cel.IsFilterError(err))
}

func TestCountStatements(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("clickhouse without range", func(t *testing.T) {
		totalSQL, totalArgs, mutatingSQL, mutatingArgs := countStatements(cel.ClickHouseDialect{}, "audit.audit_logs", CountQuery{})

		assert.Equal(t, "SELECT count(*) FROM audit.audit_logs", totalSQL)
		assert.Empty(t, totalArgs)
		assert.Equal(t, "SELECT count(*) FROM audit.audit_logs WHERE verb != ? AND verb != ? AND verb != ?", mutatingSQL)
		assert.Equal(t, []any{"get", "list", "watch"}, mutatingArgs)
	})

	t.Run("postgres with since", func(t *testing.T) {
		totalSQL, totalArgs, mutatingSQL, mutatingArgs := countStatements(cel.PostgresDialect{}, postgresTable, CountQuery{Since: since})

		assert.Equal(t, "SELECT count(*) FROM audit_events WHERE timestamp >= $1", totalSQL)
		assert.Equal(t, []any{since}, totalArgs)
		assert.Equal(t, "SELECT count(*) FROM audit_events WHERE timestamp >= $1 AND verb != $2 AND verb != $3 AND verb != $4", mutatingSQL)
		assert.Equal(t, []any{since, "get", "list", "watch"}, mutatingArgs)
	})
}

func TestLifecycleStatement(t *testing.T) {
	query := ResourceQuery{APIGroup: "apps", Resource: "deployments", Namespace: "default", Name: "web"}

	t.Run("clickhouse", func(t *testing.T) {
		statement, args := lifecycleStatement(cel.ClickHouseDialect{}, "audit_logs", clickhouseLifecycleOrder, query)

		assert.Equal(t,
			"SELECT event_json FROM audit_logs WHERE stage = ? AND api_group = ? AND resource = ? AND namespace = ? AND resource_name = ? ORDER BY timestamp DESC, audit_id DESC LIMIT 5000",
			statement)
		assert.Equal(t, []any{"ResponseComplete", "apps", "deployments", "default", "web"}, args)
	})

	t.Run("postgres with limit", func(t *testing.T) {
		q := query
		q.Limit = 50
		statement, _ := lifecycleStatement(cel.PostgresDialect{}, postgresTable, postgresOrder, q)

		assert.Equal(t,
			"SELECT event_json FROM audit_events WHERE stage = $1 AND api_group = $2 AND resource = $3 AND namespace = $4 AND resource_name = $5 ORDER BY timestamp DESC, audit_id DESC LIMIT 50",
			statement)
	})

	t.Run("cluster scoped", func(t *testing.T) {
		_, args := lifecycleStatement(cel.ClickHouseDialect{}, "audit_logs", clickhouseLifecycleOrder,
			ResourceQuery{Resource: "namespaces", Name: "prod"})

		assert.Equal(t, []any{"ResponseComplete", "", "namespaces", "", "prod"}, args)
	})
}

func TestClickHouseConfigTable(t *testing.T) {
	assert.Equal(t, "audit_logs", ClickHouseConfig{}.table())
	assert.Equal(t, "audit.audit_logs", ClickHouseConfig{Database: "audit"}.table())
	assert.Equal(t, "audit.events", ClickHouseConfig{Database: "audit", Table: "events"}.table())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"dial tcp: connection refused", "connection"},
		{"read: i/o timeout", "timeout"},
		{"code: 62, message: Syntax error", "syntax"},
		{"code: 241, message: Memory limit exceeded", "memory"},
		{"missing parameter", "parameter"},
		{"boom", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(errors.New(tt.err)))
		})
	}
}

// fakeRows iterates over canned event_json values.
type fakeRows struct {
	values  []string
	pos     int
	scanErr error
	iterErr error
	closed  bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	*(dest[0].(*string)) = r.values[r.pos-1]
	return nil
}

func (r *fakeRows) Err() error   { return r.iterErr }
func (r *fakeRows) Close() error { r.closed = true; return nil }

func TestQueryTarget_QueryEvents(t *testing.T) {
	target := queryTarget{backend: "test", database: "audit"}

	t.Run("decodes rows and skips malformed ones", func(t *testing.T) {
		rows := &fakeRows{values: []string{
			`{"auditID":"b","verb":"update"}`,
			`not json`,
			`{"auditID":"a","verb":"create"}`,
		}}
		var gotStatement string
		query := func(_ context.Context, statement string, _ ...any) (rowIterator, error) {
			gotStatement = statement
			return rows, nil
		}

		events, err := target.queryEvents(context.Background(), "list", query, "SELECT event_json FROM t", nil)

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "b", string(events[0].AuditID))
		assert.Equal(t, "a", string(events[1].AuditID))
		assert.True(t, rows.closed)
		assert.Contains(t, gotStatement, "SELECT event_json FROM t")
	})

	t.Run("no rows returns empty slice", func(t *testing.T) {
		query := func(context.Context, string, ...any) (rowIterator, error) { return &fakeRows{}, nil }

		events, err := target.queryEvents(context.Background(), "list", query, "SELECT 1", nil)

		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	tests := []struct {
		name  string
		query queryFunc
	}{
		{
			name: "query error",
			query: func(context.Context, string, ...any) (rowIterator, error) {
				return nil, errors.New("dial tcp 10.0.0.1:9000: connection refused")
			},
		},
		{
			name: "scan error",
			query: func(context.Context, string, ...any) (rowIterator, error) {
				return &fakeRows{values: []string{"{}"}, scanErr: errors.New("bad column")}, nil
			},
		},
		{
			name: "iteration error",
			query: func(context.Context, string, ...any) (rowIterator, error) {
				return &fakeRows{iterErr: errors.New("stream reset")}, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := target.queryEvents(context.Background(), "list", tt.query, "SELECT 1", nil)

			require.Error(t, err)
			assert.True(t, lifecycle.IsStorageError(err))
			assert.ErrorIs(t, err, errUnavailable)
			assert.NotContains(t, err.Error(), "10.0.0.1")
		})
	}
}

func TestQueryTarget_Count(t *testing.T) {
	target := queryTarget{backend: "test"}

	total, err := target.count(context.Background(), "count", func(context.Context, string, ...any) (int, error) {
		return 42, nil
	}, "SELECT count(*) FROM t", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, total)

	_, err = target.count(context.Background(), "count", func(context.Context, string, ...any) (int, error) {
		return 0, errors.New("timeout")
	}, "SELECT count(*) FROM t", nil)
	require.Error(t, err)
	assert.True(t, lifecycle.IsStorageError(err))
}
