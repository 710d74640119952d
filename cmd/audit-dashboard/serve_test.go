package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/preferences"
	"go.miloapis.com/auditdashboard/internal/storage"
)

const auditLogLine = `{"kind":"Event","apiVersion":"audit.k8s.io/v1","level":"RequestResponse","auditID":"a1","stage":"ResponseComplete","verb":"create","user":{"username":"alice"},"objectRef":{"resource":"configmaps","namespace":"default","name":"cfg","apiVersion":"v1"},"responseStatus":{"code":201},"requestReceivedTimestamp":"2024-06-01T12:00:00.000000Z","stageTimestamp":"2024-06-01T12:00:00.100000Z"}`

func TestServeOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(o *ServeOptions)
		wantErr []string
	}{
		{
			name:   "defaults",
			modify: func(o *ServeOptions) {},
		},
		{
			name: "memory backend with audit log",
			modify: func(o *ServeOptions) {
				o.StorageBackend = StorageMemory
				o.AuditLogFile = "audit.log"
			},
		},
		{
			name: "postgres without dsn",
			modify: func(o *ServeOptions) {
				o.StorageBackend = StoragePostgres
			},
			wantErr: []string{"--postgres-dsn is required"},
		},
		{
			name: "unknown storage backend",
			modify: func(o *ServeOptions) {
				o.StorageBackend = "mysql"
			},
			wantErr: []string{`unknown --storage-backend "mysql"`},
		},
		{
			name: "audit log with clickhouse",
			modify: func(o *ServeOptions) {
				o.AuditLogFile = "audit.log"
			},
			wantErr: []string{"--audit-log requires --storage-backend=memory"},
		},
		{
			name: "missing clickhouse settings",
			modify: func(o *ServeOptions) {
				o.ClickHouseAddress = ""
				o.ClickHouseTable = ""
			},
			wantErr: []string{"--clickhouse-address is required", "--clickhouse-table is required"},
		},
		{
			name: "limits",
			modify: func(o *ServeOptions) {
				o.MaxPageSize = 0
				o.MaxLifecycleEvents = 0
				o.RequestsPerSecond = -1
			},
			wantErr: []string{"--max-page-size", "--max-lifecycle-events", "--rate-limit"},
		},
		{
			name: "file preferences without path",
			modify: func(o *ServeOptions) {
				o.PreferencesBackend = PreferencesFile
			},
			wantErr: []string{"--preferences-file is required"},
		},
		{
			name: "nats preferences without url",
			modify: func(o *ServeOptions) {
				o.PreferencesBackend = PreferencesNATS
			},
			wantErr: []string{"--nats-url is required"},
		},
		{
			name: "unknown preferences backend",
			modify: func(o *ServeOptions) {
				o.PreferencesBackend = "redis"
			},
			wantErr: []string{`unknown --preferences-backend "redis"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewServeOptions()
			tt.modify(o)

			err := o.Validate()

			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestServeOptions_CompleteLowercasesBackends(t *testing.T) {
	t.Setenv("KUBECONFIG", "")
	o := NewServeOptions()
	o.StorageBackend = "Memory"
	o.PreferencesBackend = "NATS"

	require.NoError(t, o.Complete())

	assert.Equal(t, StorageMemory, o.StorageBackend)
	assert.Equal(t, PreferencesNATS, o.PreferencesBackend)
	assert.Empty(t, o.Kubeconfig)
}

func TestServeOptions_NewEventStoreMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte(auditLogLine+"\n"), 0o600))

	o := NewServeOptions()
	o.StorageBackend = StorageMemory
	o.AuditLogFile = path

	store, err := o.NewEventStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	events, err := store.ResourceLifecycle(context.Background(), storage.ResourceQuery{
		Resource:  "configmaps",
		Namespace: "default",
		Name:      "cfg",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "create", events[0].Verb)
}

func TestServeOptions_NewEventStoreMissingAuditLog(t *testing.T) {
	o := NewServeOptions()
	o.StorageBackend = StorageMemory
	o.AuditLogFile = filepath.Join(t.TempDir(), "missing.log")

	_, err := o.NewEventStore(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open audit log")
}

func TestServeOptions_NewPreferenceStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		o := NewServeOptions()
		store, closeFn, err := o.NewPreferenceStore()
		require.NoError(t, err)
		assert.IsType(t, &preferences.MemoryStore{}, store)
		assert.NoError(t, closeFn())
	})

	t.Run("file", func(t *testing.T) {
		o := NewServeOptions()
		o.PreferencesBackend = PreferencesFile
		o.PreferencesFile = filepath.Join(t.TempDir(), "prefs.json")

		store, closeFn, err := o.NewPreferenceStore()
		require.NoError(t, err)
		defer closeFn()

		cell := preferences.NewCell(store)
		require.NoError(t, cell.SetHideReadOnly(ctx, "alice", false))
		assert.False(t, cell.HideReadOnly(ctx, "alice"))
	})
}

func TestServeOptions_NewResourceMapperWithoutKubeconfig(t *testing.T) {
	o := NewServeOptions()

	mapper, err := o.NewResourceMapper()

	require.NoError(t, err)
	assert.IsType(t, lifecycle.StaticResourceMapper{}, mapper)
}

func TestServeOptions_ServerConfig(t *testing.T) {
	o := NewServeOptions()
	o.BindAddress = ":9443"
	o.RequestsPerSecond = 20
	o.UsernameHeader = "X-Forwarded-User"

	cfg := o.ServerConfig()

	assert.Equal(t, ":9443", cfg.BindAddress)
	assert.Equal(t, 20, cfg.RequestsPerSecond)
	assert.Equal(t, "X-Forwarded-User", cfg.RemoteUser.UsernameHeader)
	assert.Equal(t, []string{"X-Remote-Group"}, cfg.RemoteUser.GroupHeaders)
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Audit Dashboard")
	assert.Contains(t, out.String(), "Git Commit:")
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewAuditDashboardCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"serve", "mcp", "version"}, names)
}
