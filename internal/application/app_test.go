package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynatable/internal/config"
	"github.com/JonMunkholm/dynatable/internal/core"
	"github.com/JonMunkholm/dynatable/internal/notify"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = filepath.Join(t.TempDir(), "app.db")
	cfg.Import.BatchSize = 100
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Import.MaxConcurrent = 2
	cfg.Import.Timeout = time.Minute
	cfg.Import.UniqueFields = []string{"email"}
	cfg.Identifier.ReservedWords = []string{"forbidden"}
	cfg.Jobs.RetentionSchedule = "0 3 * * *"
	return cfg
}

func TestNew_WiresTheEngines(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NoError(t, app.Schema.CreateTable(ctx, core.TableSchema{
		Name:    "customer",
		Columns: []core.ColumnDef{{Name: "name", Type: "TEXT"}},
	}))
	_, err = app.Records.Insert(ctx, "customer", map[string]any{"name": "Ann"})
	require.NoError(t, err)

	err = app.Schema.CreateTable(ctx, core.TableSchema{
		Name:    "forbidden",
		Columns: []core.ColumnDef{{Name: "name", Type: "TEXT"}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidIdentifier, "configured reserved words apply")

	assert.Equal(t, 2, app.Dispatcher.LimiterStatus().MaxConcurrent)
}

func TestNew_BadSchedule(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Jobs.RetentionSchedule = "whenever"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	tests := []struct {
		sink string
		want any
	}{
		{"log", &notify.LogNotifier{}},
		{"", &notify.LogNotifier{}},
		{"smtp", &notify.SMTPNotifier{}},
		{"BOTH", notify.Multi{}},
	}

	for _, tt := range tests {
		t.Run(tt.sink, func(t *testing.T) {
			got := NewNotifier(config.NotifyConfig{Sink: tt.sink, SMTPHost: "localhost", SMTPPort: 25})
			assert.IsType(t, tt.want, got)
		})
	}

	multi := NewNotifier(config.NotifyConfig{Sink: "both"}).(notify.Multi)
	assert.Len(t, multi, 2)
}

func TestRetryPolicy(t *testing.T) {
	assert.Equal(t, core.NoRetry{}, RetryPolicy(config.RetryConfig{Attempts: 1}))
	assert.Equal(t, core.NoRetry{}, RetryPolicy(config.RetryConfig{}))

	got := RetryPolicy(config.RetryConfig{Attempts: 3, Delay: time.Second, OnlyDatabase: true})
	assert.Equal(t, core.FixedRetry{Attempts: 3, Delay: time.Second, OnlyDatabase: true}, got)
}
