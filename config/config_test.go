package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	require.NotNil(t, cfg.App.Location)
	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Engine.LevelCacheTTL)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.BackfillSchedule)
	assert.True(t, cfg.Features.IsEnabled(FeatureEngineScoring, nil))
}

func TestLoadFrom_DotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("HTTP_PORT=9191\nHTTP_API_KEYS= a , b ,\nEVENTBUS_ASYNC=true\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("HTTP_API_KEYS")
		os.Unsetenv("EVENTBUS_ASYNC")
	})

	cfg, err := LoadFrom(filepath.Join(dir, "missing.env"), file)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.HTTP.APIKeys)
	assert.True(t, cfg.EventBus.Async)
}

func TestLoadFrom_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("HTTP_PORT=9191\n"), 0o600))
	t.Setenv("HTTP_PORT", "7000")

	cfg, err := LoadFrom(file)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTP.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr []string
	}{
		{
			name:    "postgres without url",
			env:     map[string]string{"STORAGE_DRIVER": "postgres"},
			wantErr: []string{"DATABASE_URL"},
		},
		{
			name: "postgres from parts",
			env:  map[string]string{"STORAGE_DRIVER": "postgres", "DB_HOST": "db", "DB_USER": "app"},
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORAGE_DRIVER": "mongo"},
			wantErr: []string{"STORAGE_DRIVER"},
		},
		{
			name:    "memory in production",
			env:     map[string]string{"APP_ENV": "production"},
			wantErr: []string{"not allowed in production"},
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"APP_TIMEZONE": "Mars/Olympus"},
			wantErr: []string{"APP_TIMEZONE"},
		},
		{
			name:    "errors are aggregated",
			env:     map[string]string{"HTTP_PORT": "70000", "EVENTBUS_WORKERS": "0", "DB_MIN_CONNS": "50"},
			wantErr: []string{"HTTP_PORT", "EVENTBUS_WORKERS", "DB_MIN_CONNS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_ENGINE_DAILY_CHALLENGE", "false")
	t.Setenv("FEATURE_JOBS_BADGE_BACKFILL", "50")
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureEngineDaily, nil))
	assert.False(t, ff.IsEnabled(FeatureJobBadgeBackfill, nil), "partial rollout needs a user")
	assert.True(t, ff.IsEnabled(FeatureEngineScoring, nil))
	assert.False(t, ff.IsEnabled("no.such.flag", nil))

	in := 0
	for i := 0; i < 200; i++ {
		ctx := &FeatureContext{UserID: "student-" + string(rune('a'+i%26)) + string(rune('0'+i/26))}
		first := ff.IsEnabled(FeatureJobBadgeBackfill, ctx)
		assert.Equal(t, first, ff.IsEnabled(FeatureJobBadgeBackfill, ctx), "bucketing is stable")
		if first {
			in++
		}
	}
	assert.Greater(t, in, 0)
	assert.Less(t, in, 200)

	ff.SetUserOverride("student-x", FeatureEngineDaily, true)
	assert.True(t, ff.IsEnabled(FeatureEngineDaily, &FeatureContext{UserID: "student-x"}))

	require.NoError(t, ff.EnableFeature(FeatureEngineDaily))
	assert.True(t, ff.IsEnabled(FeatureEngineDaily, nil))
	assert.ErrorIs(t, ff.SetRolloutPercent("no.such.flag", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureEngineDaily, 101), ErrInvalidRolloutPercent)
	assert.Len(t, ff.All(), 4)
}
