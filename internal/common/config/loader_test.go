package config

import (
	"testing"
	"time"

	"inquiry-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	cfg := &Config{}
	cfg.Camunda.BrokerAddress = "localhost:26500"
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Postgres.Database = "inquiries"
	cfg.Database.Postgres.User = "app"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.Mail.IMAP.Host = "imap.example.com"
	cfg.Mail.IMAP.Username = "inbox@example.com"
	cfg.Mail.IMAP.Password = "secret"
	cfg.APIs.GenAI.BaseURL = "http://localhost:9000"
	return cfg
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, validateConfig(validTestConfig()))
}

func TestValidateConfig_MissingValueIsConfigMissing(t *testing.T) {
	tests := []struct {
		name  string
		mutate func(*Config)
		key   string
	}{
		{"broker address", func(c *Config) { c.Camunda.BrokerAddress = "" }, "camunda.broker_address"},
		{"postgres user", func(c *Config) { c.Database.Postgres.User = "" }, "database.postgres.user"},
		{"redis address", func(c *Config) { c.Database.Redis.Address = "" }, "database.redis.address"},
		{"imap password", func(c *Config) { c.Mail.IMAP.Password = "" }, "mail.imap.password"},
		{"genai base url", func(c *Config) { c.APIs.GenAI.BaseURL = "" }, "apis.genai.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeConfigMissing))
			assert.Contains(t, err.Error(), "Required configuration value is missing")
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, GetDuration(30000))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := validTestConfig()
	cfg.Workers = map[string]WorkerConfig{
		"ingest-inquiry-email": {Enabled: true, MaxJobsActive: 3, Timeout: 120000},
	}

	wc := GetWorkerConfig(cfg, "ingest-inquiry-email")
	assert.Equal(t, 3, wc.MaxJobsActive)
	assert.Equal(t, 120000, wc.Timeout)

	def := GetWorkerConfig(cfg, "unknown-worker")
	assert.True(t, def.Enabled)
	assert.Equal(t, 5, def.MaxJobsActive)
	assert.Equal(t, 30000, def.Timeout)
}
