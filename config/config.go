// ABOUTME: Application configuration loaded from subzero.yaml, .env files, and environment variables
// ABOUTME: Defines defaults for the sync pipeline and the configuration error sentinel
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppName names the XDG directories and the config file.
const AppName = "subzero"

// ErrConfiguration marks missing or malformed configuration. It is the only
// error class allowed to abort a whole sync.
var ErrConfiguration = errors.New("configuration error")

// Errorf builds an error wrapping ErrConfiguration.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Config holds all configuration for the application.
type Config struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Vault struct {
		Key string `mapstructure:"key"`
	} `mapstructure:"vault"`

	Google struct {
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURI  string `mapstructure:"redirect_uri"`
	} `mapstructure:"google"`

	Gemini struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"gemini"`

	Cron struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"cron"`

	Sync struct {
		Query          string        `mapstructure:"query"`
		WindowDays     int           `mapstructure:"window_days"`
		MaxMessages    int64         `mapstructure:"max_messages"`
		AccountTimeout time.Duration `mapstructure:"account_timeout"`
		Staleness      time.Duration `mapstructure:"staleness"`
		LockTTL        time.Duration `mapstructure:"lock_ttl"`
		LockDir        string        `mapstructure:"lock_dir"`
	} `mapstructure:"sync"`

	Extract struct {
		Threshold float64 `mapstructure:"threshold"`
		Strategy  string  `mapstructure:"strategy"`
	} `mapstructure:"extract"`

	BaseCurrency string `mapstructure:"base_currency"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// DataDir returns the XDG data directory for subzero.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultDatabasePath returns the default sqlite database path.
func DefaultDatabasePath() string {
	return filepath.Join(DataDir(), "subzero.db")
}

// Load reads configuration. An explicit path must exist; otherwise
// subzero.yaml is looked up in the working directory and XDG config home.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SUBZERO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.BaseCurrency = strings.ToUpper(cfg.BaseCurrency)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("vault.key", "")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_uri", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("cron.secret", "")

	v.SetDefault("sync.query", `(invoice OR receipt OR subscription OR billed OR "payment confirmation")`)
	v.SetDefault("sync.window_days", 30)
	v.SetDefault("sync.max_messages", 50)
	v.SetDefault("sync.account_timeout", 60*time.Second)
	v.SetDefault("sync.staleness", 24*time.Hour)
	v.SetDefault("sync.lock_ttl", 10*time.Minute)
	v.SetDefault("sync.lock_dir", "")

	v.SetDefault("extract.threshold", 0.6)
	v.SetDefault("extract.strategy", "batch")

	v.SetDefault("base_currency", "INR")
	v.SetDefault("log.level", "info")
}

// bindLegacyEnv maps the unprefixed variable names used by existing
// deployments. The SUBZERO_ form wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"vault.key":            "ENCRYPTION_KEY",
		"google.client_id":     "GOOGLE_CLIENT_ID",
		"google.client_secret": "GOOGLE_CLIENT_SECRET",
		"google.redirect_uri":  "GOOGLE_REDIRECT_URI",
		"gemini.api_key":       "GEMINI_API_KEY",
		"cron.secret":          "CRON_SECRET",
		"database.path":        "DATABASE_PATH",
	}
	for key, legacy := range bindings {
		prefixed := "SUBZERO_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}
	return nil
}

// RequireVaultKey reports a configuration error when no encryption key is set.
func (c *Config) RequireVaultKey() error {
	if strings.TrimSpace(c.Vault.Key) == "" {
		return Errorf("ENCRYPTION_KEY is not set")
	}
	return nil
}

// RequireOAuth reports a configuration error when the Google OAuth client is incomplete.
func (c *Config) RequireOAuth() error {
	var missing []string
	if c.Google.ClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.Google.RedirectURI == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireGemini reports a configuration error when no Gemini API key is set.
func (c *Config) RequireGemini() error {
	if c.Gemini.APIKey == "" {
		return Errorf("GEMINI_API_KEY is not set")
	}
	return nil
}

// EnsureDataDir creates the directory holding the database file.
func (c *Config) EnsureDataDir() error {
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
