package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/config"
	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/messaging"
	"github.com/k9quest/progression-hub/pkg/logger"
)

func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"APP_ENV":           "development",
		"STORAGE_DRIVER":    "memory",
		"STORAGE_SEED_DEMO": "true",
		"REDIS_DISABLED":    "true",
		"EVENTBUS_ASYNC":    "false",
	}
	for k, v := range env {
		base[k] = v
	}
	for k, v := range base {
		t.Setenv(k, v)
	}
	cfg, err := config.LoadFrom()
	require.NoError(t, err)
	return cfg
}

func TestOpen_MemoryWithoutRedis(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"FEATURE_ENGINE_SCORING": "false"})

	rt, err := Open(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	require.NotNil(t, rt.Memory)
	assert.Nil(t, rt.Leaderboard)
	require.NotNil(t, rt.Engines.Leaderboard, "falls back to the profile store")

	top, err := rt.Engines.Leaderboard.Handle(context.Background(), query.GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, top, len(DemoStudents))

	status := rt.Health.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Checks)
}

func TestOpen_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadTestConfig(t, map[string]string{
		"REDIS_DISABLED":      "false",
		"REDIS_HOST":          mr.Host(),
		"REDIS_PORT":          mr.Port(),
		"REDIS_EVENT_CHANNEL": "test:events",
	})
	ctx := context.Background()

	sub := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })
	pubsub := sub.Subscribe(ctx, "test:events")
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	rt, err := Open(ctx, cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	require.NotNil(t, rt.Leaderboard)

	user := DemoStudents[0]
	require.NoError(t, rt.Bus.Publish(ctx, shared.NewUserLoggedInEvent(user)))
	res, err := rt.Engines.Daily.Claim(ctx, user, challenge.TaskLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.NewBalance)

	top, err := rt.Leaderboard.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, user, top[0].UserID, "the credit is mirrored into the sorted set")

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := pubsub.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	var env messaging.Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.True(t, messaging.IsEngineEvent(env.EventType))
	assert.Equal(t, user, env.AggregateID)

	status := rt.Health.Check(ctx)
	assert.True(t, status.Healthy)
	assert.Contains(t, status.Checks, "redis")
}

func TestOpen_InvalidPostgres(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"STORAGE_DRIVER":     "postgres",
		"DATABASE_URL":       "postgres://nobody@127.0.0.1:1/none?sslmode=disable",
		"DB_CONNECT_TIMEOUT": "1s",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt, err := Open(ctx, cfg, logger.NewNop())
	assert.Error(t, err)
	assert.Nil(t, rt)
}
