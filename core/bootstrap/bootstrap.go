// Package bootstrap brings up the shared infrastructure every bot needs
// before its handlers are built: logging, then the session database.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
	coredatabase "github.com/m3rciful/sellerbot/core/database"
	"github.com/m3rciful/sellerbot/core/logger"
)

// Options control the bootstrap pipeline. The func fields replace the
// default step implementations, mostly in tests.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	// SkipMigrations connects without applying migrations.
	SkipMigrations bool

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result is the infrastructure built by Run. DB is nil for the memory driver.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, applies migrations and connects to the
// database, in that order.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	opts.withDefaults()
	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	ctx := context.Background()
	res := &Result{}
	if opts.Database.Driver == coredatabase.DriverMemory {
		logger.Info(ctx, "db", "bootstrap", slog.String("driver", opts.Database.Driver), slog.Bool("persistent", false))
		return res, nil
	}

	start := time.Now()
	if !opts.SkipMigrations {
		if err := opts.Migrate(opts.Database); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}
	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res.DB = db
	logger.Info(ctx, "db", "bootstrap",
		slog.String("driver", opts.Database.Driver),
		slog.Bool("migrated", !opts.SkipMigrations),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, nil
}

func (o *Options) withDefaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
}
