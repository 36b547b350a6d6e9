package bootstrap

import (
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
	coredatabase "github.com/m3rciful/sellerbot/core/database"
)

func stubbed(driver string, steps *[]string) Options {
	return Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: driver},
		LoggerInit: func(*coreconfig.Config) error { *steps = append(*steps, "logger"); return nil },
		Migrate:    func(coredatabase.Config) error { *steps = append(*steps, "migrate"); return nil },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			*steps = append(*steps, "connect")
			return &sqlx.DB{}, nil
		},
	}
}

func TestRunOrdersSteps(t *testing.T) {
	var steps []string
	res, err := Run(stubbed(coredatabase.DriverSQLite, &steps))
	require.NoError(t, err)
	assert.NotNil(t, res.DB)
	assert.Equal(t, []string{"logger", "migrate", "connect"}, steps)
}

func TestRunMemoryDriverSkipsDatabase(t *testing.T) {
	var steps []string
	res, err := Run(stubbed(coredatabase.DriverMemory, &steps))
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.Equal(t, []string{"logger"}, steps)
}

func TestRunSkipMigrations(t *testing.T) {
	var steps []string
	opts := stubbed(coredatabase.DriverSQLite, &steps)
	opts.SkipMigrations = true
	_, err := Run(opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"logger", "connect"}, steps)
}

func TestRunStopsOnMigrationError(t *testing.T) {
	var steps []string
	opts := stubbed(coredatabase.DriverPostgres, &steps)
	opts.Migrate = func(coredatabase.Config) error { return errors.New("dirty database") }
	_, err := Run(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dirty database")
	assert.NotContains(t, steps, "connect")

	_, err = Run(Options{})
	assert.Error(t, err)
}
