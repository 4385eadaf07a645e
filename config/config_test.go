package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Ledger.SickGrant().Equal(cfg.Ledger.VacationGrant()))
	assert.Equal(t, "15", cfg.Ledger.SickGrant().String())
	assert.True(t, cfg.Ledger.OffsetGrant().IsZero())
	assert.Equal(t, time.Hour, cfg.Ledger.VerifyInterval)

	days, err := cfg.Calendar.Weekdays()
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, days)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: postgres
  url: postgres://localhost/ledger
ledger:
  sick_days: 10
calendar:
  rest_weekdays: [sun]
`), 0o644))

	t.Setenv("LEDGER_LOGGER_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "10", cfg.Ledger.SickGrant().String())
	days, err := cfg.Calendar.Weekdays()
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Sunday}, days)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
			Calendar: CalendarConfig{RestWeekdays: []string{"saturday"}},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "database.driver")

	cfg = base()
	cfg.Database = DatabaseConfig{Driver: "postgres"}
	assert.ErrorContains(t, cfg.Validate(), "database.url")

	cfg = base()
	cfg.Ledger.SickDays = -1
	assert.ErrorContains(t, cfg.Validate(), "negative")

	cfg = base()
	cfg.Calendar.RestWeekdays = []string{"caturday"}
	assert.ErrorContains(t, cfg.Validate(), "caturday")
}
