package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("WS_MAX_CONNECTIONS_PER_USER", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 3, cfg.MaxConnectionsPerUser)
	assert.Equal(t, 64, cfg.SendQueueSize)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadRejectsZeroConnectionLimit(t *testing.T) {
	t.Setenv("WS_MAX_CONNECTIONS_PER_USER", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WS_MAX_CONNECTIONS_PER_USER")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:                  "8083",
			DBDSN:                 "postgres://x",
			JWTSecret:             "s",
			MaxConnectionsPerUser: 5,
			MessageRate:           10,
			MessageBurst:          20,
			MaxMessageLength:      4096,
			SendQueueSize:         64,
			WriteTimeout:          time.Second,
			PongTimeout:           time.Second,
			LogFormat:             "json",
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "rate disabled ignores burst", mutate: func(c *Config) { c.MessageRate = 0; c.MessageBurst = 0 }},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, errMsg: "JWT_SECRET"},
		{name: "negative rate", mutate: func(c *Config) { c.MessageRate = -1 }, errMsg: "WS_MESSAGE_RATE"},
		{name: "zero burst", mutate: func(c *Config) { c.MessageBurst = 0 }, errMsg: "WS_MESSAGE_BURST"},
		{name: "zero queue", mutate: func(c *Config) { c.SendQueueSize = 0 }, errMsg: "WS_SEND_QUEUE_SIZE"},
		{name: "bad format", mutate: func(c *Config) { c.LogFormat = "xml" }, errMsg: "LOG_FORMAT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
