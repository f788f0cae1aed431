package redis

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/accessgate/internal/testutil"
	"github.com/StricklySoft/accessgate/pkg/config"
)

func TestConfig_PasswordIsRedacted(t *testing.T) {
	t.Parallel()
	cfg := Config{Host: "h", Password: config.Secret("hunter2")}

	assert.NotContains(t, fmt.Sprintf("%+v %#v", cfg, cfg), "hunter2")

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Enabled(t *testing.T) {
	t.Parallel()
	assert.False(t, (&Config{}).Enabled())
	assert.True(t, (&Config{Host: "redis"}).Enabled())
	assert.True(t, (&Config{URI: "redis://redis:6379"}).Enabled())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero value gets defaults", cfg: Config{}},
		{name: "uri", cfg: Config{URI: "redis://localhost:6379/0"}},
		{name: "tls uri", cfg: Config{URI: "rediss://:pw@localhost:6379/0"}},
		{name: "bad scheme", cfg: Config{URI: "mysql://localhost:3306/db"}, wantErr: "URI scheme must be"},
		{name: "no scheme", cfg: Config{URI: "not-a-uri"}, wantErr: "URI scheme must be"},
		{name: "negative port", cfg: Config{Port: -1}, wantErr: "port must be between"},
		{name: "port too high", cfg: Config{Port: 70000}, wantErr: "port must be between"},
		{name: "negative pool", cfg: Config{PoolSize: -1}, wantErr: "pool_size must be >= 1"},
		{name: "negative idle", cfg: Config{MinIdleConns: -1}, wantErr: "min_idle_conns must be >= 0"},
		{name: "idle above pool", cfg: Config{PoolSize: 2, MinIdleConns: 3}, wantErr: "must be >= min_idle_conns"},
		{name: "negative timeout", cfg: Config{ReadTimeout: -time.Second}, wantErr: "timeouts must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
				assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_LoadsFromPrefixedEnv(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Redis Config `env:"REDIS"`
	}
	var w wrapper
	err := config.New().
		WithEnvPrefix("accessgate").
		WithLookup(testutil.MapLookup(map[string]string{
			"ACCESSGATE_REDIS_URI":          "redis://cache:6379/2",
			"ACCESSGATE_REDIS_PASSWORD":     "pw",
			"ACCESSGATE_REDIS_READ_TIMEOUT": "750ms",
		})).
		Load(&w)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2", w.Redis.URI)
	assert.Equal(t, "pw", w.Redis.Password.Value())
	assert.Equal(t, 750*time.Millisecond, w.Redis.ReadTimeout)
}

func TestTruncateStatement(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", truncateStatement(""))
	assert.Equal(t, "DEL k", truncateStatement("DEL k"))

	exact := strings.Repeat("x", maxStatementTruncateLen)
	assert.Equal(t, exact, truncateStatement(exact))

	got := truncateStatement(strings.Repeat("日", maxStatementTruncateLen+1))
	assert.Len(t, []rune(got), maxStatementTruncateLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.NotContains(t, got, "�")
}
