package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredatabase "github.com/m3rciful/sellerbot/core/database"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
telegram:
  token: "123:abc"
portal:
  base_url: "https://seller.example.com"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "longpoll", cfg.Telegram.RunMode)
	assert.Equal(t, coredatabase.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/sellerbot.db", cfg.Database.Path)
	assert.Equal(t, "migrations", cfg.Database.MigrationsDir)
	assert.Equal(t, LoginSteps, cfg.Portal.LoginMode)
	assert.Equal(t, "https://seller.example.com", cfg.Portal.AuthURL)
	assert.Equal(t, 3, cfg.Portal.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Portal.RetryBaseDelay)
	assert.Equal(t, 420*time.Second, cfg.Portal.InteractiveTimeout)
	assert.Equal(t, 24*time.Hour, cfg.WebApp.InitDataTTL)
	assert.Empty(t, cfg.PickerURL())
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadReadsNestedSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
telegram:
  token: "123:abc"
database:
  driver: memory
portal:
  base_url: "https://seller.example.com"
  login_mode: Browser
  retry_base_delay: 250ms
  interactive_timeout: 5m
  browser:
    headless: true
    session_cookies: [sid, token]
webapp:
  enabled: true
  listen: ":8081"
  public_url: "https://bot.example.com/"
  init_data_ttl: 1h
`))
	require.NoError(t, err)

	assert.Equal(t, coredatabase.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, LoginBrowser, cfg.Portal.LoginMode)
	assert.Equal(t, 250*time.Millisecond, cfg.Portal.RetryBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Portal.InteractiveTimeout)
	assert.True(t, cfg.Portal.Browser.Headless)
	assert.Equal(t, []string{"sid", "token"}, cfg.Portal.Browser.SessionCookies)
	assert.Equal(t, time.Hour, cfg.WebApp.InitDataTTL)
	assert.Equal(t, "https://bot.example.com/app/profile", cfg.PickerURL())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("PORTAL_BASE_URL", "https://override.example.com")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", cfg.Portal.BaseURL)
	assert.Equal(t, coredatabase.DriverMemory, cfg.Database.Driver)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no token": `
portal:
  base_url: "https://seller.example.com"
`,
		"relative portal url": `
telegram:
  token: "123:abc"
portal:
  base_url: "/seller"
`,
		"unknown login mode": `
telegram:
  token: "123:abc"
portal:
  base_url: "https://seller.example.com"
  login_mode: sso
`,
		"unknown driver": `
telegram:
  token: "123:abc"
database:
  driver: mysql
portal:
  base_url: "https://seller.example.com"
`,
		"webapp without listen": `
telegram:
  token: "123:abc"
portal:
  base_url: "https://seller.example.com"
webapp:
  enabled: true
`,
		"misspelled key": `
telegram:
  token: "123:abc"
portal:
  base_url: "https://seller.example.com"
  retry_atempts: 5
`,
		"plain http webapp": `
telegram:
  token: "123:abc"
portal:
  base_url: "https://seller.example.com"
webapp:
  enabled: true
  listen: ":8081"
  public_url: "http://bot.example.com"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, LoginSteps, cfg.Portal.LoginMode)
	assert.Equal(t, 7*time.Minute, cfg.Portal.InteractiveTimeout)
	assert.False(t, cfg.WebApp.Enabled)
}
