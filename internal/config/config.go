// Package config extends the core configuration with storage, portal and
// web app settings.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
	coredatabase "github.com/m3rciful/sellerbot/core/database"
)

// Login modes.
const (
	LoginSteps   = "steps"
	LoginBrowser = "browser"
)

// BrowserConfig tunes the interactive browser login.
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" envconfig:"PORTAL_BROWSER_HEADLESS"`
	UserDataDir    string        `yaml:"user_data_dir" envconfig:"PORTAL_BROWSER_USER_DATA_DIR"`
	SessionCookies []string      `yaml:"session_cookies"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// PortalConfig describes the partner portal and how hard the bot may hit it.
type PortalConfig struct {
	BaseURL            string        `yaml:"base_url" envconfig:"PORTAL_BASE_URL"`
	AuthURL            string        `yaml:"auth_url" envconfig:"PORTAL_AUTH_URL"`
	LoginMode          string        `yaml:"login_mode" envconfig:"PORTAL_LOGIN_MODE"`
	UserAgent          string        `yaml:"user_agent"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	InteractiveTimeout time.Duration `yaml:"interactive_timeout"`
	Browser            BrowserConfig `yaml:"browser"`
}

// WebAppConfig controls the organization picker web app.
type WebAppConfig struct {
	Enabled        bool          `yaml:"enabled" envconfig:"WEBAPP_ENABLED"`
	Listen         string        `yaml:"listen" envconfig:"WEBAPP_LISTEN"`
	PublicURL      string        `yaml:"public_url" envconfig:"WEBAPP_PUBLIC_URL"`
	InitDataTTL    time.Duration `yaml:"init_data_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Portal   PortalConfig        `yaml:"portal"`
	WebApp   WebAppConfig        `yaml:"webapp"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// PickerURL is the web app page the switch screen links to, or "" when the
// web app is off or has no public address.
func (c *Config) PickerURL() string {
	if !c.WebApp.Enabled || c.WebApp.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(c.WebApp.PublicURL, "/") + "/app/profile"
}

// Load reads the YAML file at path, overlays the environment and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.ReadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if err := normalizeDatabase(&cfg.Database); err != nil {
		return err
	}
	if err := normalizePortal(&cfg.Portal); err != nil {
		return err
	}
	return normalizeWebApp(&cfg.WebApp)
}

func normalizeDatabase(db *coredatabase.Config) error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	if db.Driver == "" {
		db.Driver = coredatabase.DriverSQLite
	}
	if db.MigrationsDir == "" {
		db.MigrationsDir = "migrations"
	}
	switch db.Driver {
	case coredatabase.DriverMemory:
	case coredatabase.DriverSQLite:
		if db.Path == "" {
			db.Path = "data/sellerbot.db"
		}
	case coredatabase.DriverPostgres:
		if db.Host == "" || db.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite, memory", db.Driver)
	}
	return nil
}

func normalizePortal(p *PortalConfig) error {
	u, err := url.Parse(strings.TrimSpace(p.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("portal.base_url must be an absolute URL, got %q", p.BaseURL)
	}
	p.BaseURL = u.String()
	if p.AuthURL == "" {
		p.AuthURL = p.BaseURL
	}

	p.LoginMode = strings.ToLower(strings.TrimSpace(p.LoginMode))
	switch p.LoginMode {
	case "":
		p.LoginMode = LoginSteps
	case LoginSteps, LoginBrowser:
	default:
		return fmt.Errorf("invalid portal.login_mode %q; allowed: steps, browser", p.LoginMode)
	}

	if p.RetryAttempts < 0 || p.RequestsPerSecond < 0 {
		return fmt.Errorf("portal.retry_attempts and portal.requests_per_second must be >= 0")
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.RetryBaseDelay <= 0 {
		p.RetryBaseDelay = time.Second
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = 20 * time.Second
	}
	if p.InteractiveTimeout <= 0 {
		p.InteractiveTimeout = 420 * time.Second
	}
	if p.Browser.PollInterval <= 0 {
		p.Browser.PollInterval = time.Second
	}
	return nil
}

func normalizeWebApp(w *WebAppConfig) error {
	if w.InitDataTTL <= 0 {
		w.InitDataTTL = 24 * time.Hour
	}
	if !w.Enabled {
		return nil
	}
	if strings.TrimSpace(w.Listen) == "" {
		return fmt.Errorf("webapp.listen is required when webapp.enabled is set")
	}
	if w.PublicURL != "" && !strings.HasPrefix(w.PublicURL, "https://") {
		return fmt.Errorf("webapp.public_url must use https, got %q", w.PublicURL)
	}
	return nil
}
