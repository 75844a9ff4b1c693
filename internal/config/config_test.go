package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "sekret")

	content := `
server:
  port: 9090
postgres:
  host: db.internal
  user: quiz
  password: ${TEST_PG_PASSWORD}
  database: quizquest
kafka:
  enabled: true
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sekret", cfg.Postgres.Password)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)

	// Unset fields fall back to defaults
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "quiz-progress", cfg.Kafka.Topic)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 100, cfg.Kafka.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 5, cfg.Game.DefaultMaxPlayers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host: "localhost", Port: 5432,
		User: "quiz", Password: "pw", Database: "quizquest",
	}
	assert.Equal(t,
		"postgres://quiz:pw@localhost:5432/quizquest?sslmode=disable",
		cfg.ConnectionString())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.ConnectionString(), "sslmode=require")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Reconciler.Enabled)
	assert.Equal(t, 50, cfg.Game.LeaderboardLimit)
	assert.Equal(t, 100, cfg.Game.LeaderboardMaxLimit)
}
