package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingMasterSecret is returned by Validate when no vault secret is set.
var ErrMissingMasterSecret = errors.New("vault master secret is not set (BANKRECON_VAULT_MASTER_SECRET)")

// Config holds application configuration.
type Config struct {
	Database     DatabaseConfig               `mapstructure:"database"`
	Vault        VaultConfig                  `mapstructure:"vault"`
	Sync         SyncConfig                   `mapstructure:"sync"`
	Schedule     ScheduleConfig               `mapstructure:"schedule"`
	Server       ServerConfig                 `mapstructure:"server"`
	Institutions map[string]InstitutionConfig `mapstructure:"institutions"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type VaultConfig struct {
	MasterSecret string `mapstructure:"master_secret"`
}

// SyncConfig tunes account syncs and institution calls.
type SyncConfig struct {
	LookbackDays int           `mapstructure:"lookback_days"`
	AccountDelay time.Duration `mapstructure:"account_delay"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// ScheduleConfig holds the cron cadences and the timezone they and all
// calendar-day comparisons use.
type ScheduleConfig struct {
	BusinessHours string `mapstructure:"business_hours"`
	OffHours      string `mapstructure:"off_hours"`
	Reconcile     string `mapstructure:"reconcile"`
	Timezone      string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Mode is "debug" for console logs, anything else for JSON.
	Mode string `mapstructure:"mode"`
}

type InstitutionConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Load reads configuration from defaults, the config file, a .env file and
// the environment, in increasing precedence. Env var overrides use prefix
// BANKRECON_.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	cfgPath := os.Getenv("BANKRECON_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "bankrecon"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BANKRECON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "bankrecon", "bankrecon.db"))
	v.SetDefault("vault.master_secret", "")
	v.SetDefault("sync.lookback_days", 30)
	v.SetDefault("sync.account_delay", 2*time.Second)
	v.SetDefault("sync.http_timeout", 10*time.Second)
	v.SetDefault("sync.max_retries", 2)
	v.SetDefault("sync.batch_timeout", 30*time.Minute)
	v.SetDefault("schedule.business_hours", "*/15 8-20 * * 1-6")
	v.SetDefault("schedule.off_hours", "0 */2 * * *")
	v.SetDefault("schedule.reconcile", "*/30 * * * *")
	v.SetDefault("schedule.timezone", "America/Mexico_City")
	v.SetDefault("server.addr", ":8088")
	v.SetDefault("server.mode", "release")
}

// loadDotEnv copies a .env file into the process environment without
// overriding variables already set. A missing file is not an error.
func loadDotEnv() error {
	path := os.Getenv("BANKRECON_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings every credential-touching command needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Vault.MasterSecret) == "" {
		return ErrMissingMasterSecret
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Sync.LookbackDays <= 0 {
		return fmt.Errorf("sync.lookback_days must be positive")
	}
	return nil
}

// Location resolves the schedule timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

// BaseURLs maps institution codes to configured base URLs.
func (c Config) BaseURLs() map[string]string {
	out := make(map[string]string, len(c.Institutions))
	for code, inst := range c.Institutions {
		out[strings.ToLower(code)] = inst.BaseURL
	}
	return out
}
