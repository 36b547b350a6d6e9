package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "123:abc", RunMode: " Polling "},
		RateLimit: RateLimitConfig{RPS: 2, ExcludeUpdates: []string{" Callback", "", "callback", "MESSAGE"}},
	}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 1, cfg.RateLimit.Burst)
	assert.Equal(t, []string{UpdateCallback, UpdateMessage}, cfg.RateLimit.ExcludeUpdates)
}

func TestNormalizeReportsEveryProblem(t *testing.T) {
	err := Normalize(&Config{
		Telegram:  TelegramConfig{RunMode: "webhook"},
		Webhook:   WebhookConfig{Listen: "0.0.0.0"},
		RateLimit: RateLimitConfig{RPS: -1},
	})
	require.Error(t, err)
	for _, part := range []string{"token is required", "webhook.url, webhook.port required", "rate_limit.rps"} {
		assert.Contains(t, err.Error(), part)
	}

	assert.Error(t, Normalize(&Config{Telegram: TelegramConfig{Token: "x", RunMode: "sse"}}))
	assert.Error(t, Normalize(&Config{Telegram: TelegramConfig{Token: "x"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline"}}}))
	assert.Error(t, Normalize(nil))
}

func TestReadYAMLOverlaysEnvAndRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("telegram:\n  token: from-file\nlogging:\n  level: debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")

	var cfg Config
	require.NoError(t, ReadYAML(good, &cfg))
	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, "warn", cfg.Logging.Level)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("telegram:\n  tokn: typo\n"), 0o600))
	assert.Error(t, ReadYAML(bad, &Config{}))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	assert.NoError(t, ReadYAML(empty, &Config{}))

	assert.Error(t, ReadYAML(filepath.Join(dir, "missing.yaml"), &Config{}))
}
