// Package config loads server configuration with viper: defaults, an
// optional YAML file, then LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Calendar CalendarConfig `mapstructure:"calendar"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr is host:port for http.Server.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite | postgres
	Path     string `mapstructure:"path"`   // sqlite file, ":memory:" allowed
	URL      string `mapstructure:"url"`    // postgres connection string
	MaxConns int32  `mapstructure:"max_conns"`
	Seed     bool   `mapstructure:"seed"` // load demo data on start
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LedgerConfig holds the grant a new account opens with, per resource.
type LedgerConfig struct {
	OffsetHours  float64 `mapstructure:"offset_hours"`
	SickDays     float64 `mapstructure:"sick_days"`
	VacationDays float64 `mapstructure:"vacation_days"`

	VerifyInterval time.Duration `mapstructure:"verify_interval"` // 0 disables the periodic scan
	PolicyFile     string        `mapstructure:"policy_file"`     // JSON array of extra resource policies
}

func (l LedgerConfig) OffsetGrant() decimal.Decimal   { return decimal.NewFromFloat(l.OffsetHours) }
func (l LedgerConfig) SickGrant() decimal.Decimal     { return decimal.NewFromFloat(l.SickDays) }
func (l LedgerConfig) VacationGrant() decimal.Decimal { return decimal.NewFromFloat(l.VacationDays) }

type CalendarConfig struct {
	RestWeekdays []string `mapstructure:"rest_weekdays"`
}

// Weekdays parses RestWeekdays ("saturday", "Sun", ...).
func (c CalendarConfig) Weekdays() ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(c.RestWeekdays))
	for _, name := range c.RestWeekdays {
		wd, ok := parseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("calendar.rest_weekdays: unknown weekday %q", name)
		}
		out = append(out, wd)
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if s == full || s == full[:3] {
			return d, true
		}
	}
	return 0, false
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/ledger.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.seed", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("ledger.offset_hours", 0)
	v.SetDefault("ledger.sick_days", 15)
	v.SetDefault("ledger.vacation_days", 15)
	v.SetDefault("ledger.verify_interval", time.Hour)

	v.SetDefault("calendar.rest_weekdays", []string{"saturday", "sunday"})
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}

	if c.Ledger.OffsetHours < 0 || c.Ledger.SickDays < 0 || c.Ledger.VacationDays < 0 {
		errs = append(errs, errors.New("ledger default grants must not be negative"))
	}
	if c.Ledger.VerifyInterval < 0 {
		errs = append(errs, errors.New("ledger.verify_interval must not be negative"))
	}

	if _, err := c.Calendar.Weekdays(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
