package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"larder/internal/core/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://larder@localhost:5432/larder")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.AppPort)
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, 3, cfg.TxMaxAttempts)
	require.Equal(t, PropagationQueue, cfg.PropagationMode)
	require.True(t, cfg.CostEpsilon.Equal(types.CostEpsilon))
	require.Equal(t, time.Hour, cfg.MenuCostCacheTTL)
	require.Equal(t, "larder:notifications", cfg.NotificationChannel)
	require.True(t, cfg.IsDevelopment())

	pool := cfg.Pool()
	require.Equal(t, int32(25), pool.MaxConns)
	require.Equal(t, "larder", pool.ApplicationName)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://larder@localhost:5432/larder")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PROPAGATION_MODE", "inline")
	t.Setenv("COST_EPSILON", "0.01")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, PropagationInline, cfg.PropagationMode)
	require.Equal(t, "0.01", cfg.CostEpsilon.String())
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	require.False(t, cfg.Logger().Development)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}},
		{"unknown propagation mode", map[string]string{"PROPAGATION_MODE": "kafka"}},
		{"no attempts", map[string]string{"TX_MAX_ATTEMPTS": "0"}},
		{"negative epsilon", map[string]string{"COST_EPSILON": "-1"}},
		{"bad duration", map[string]string{"MENU_COST_CACHE_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://larder@localhost:5432/larder")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
