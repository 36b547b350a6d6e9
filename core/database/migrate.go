package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/sellerbot/core/logger"
)

const (
	migComponent = "db.migrate"
	// previewFiles caps how many file names a log line lists.
	previewFiles = 6
)

// migrationFile is one *.up.sql file of the migrations directory.
type migrationFile struct {
	version uint64
	name    string
}

type migrationSet []migrationFile

// between returns the files with from < version <= to.
func (s migrationSet) between(from, to uint64) migrationSet {
	var out migrationSet
	for _, f := range s {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

// previewAttrs lists up to previewFiles names, flagging the rest as truncated.
func (s migrationSet) previewAttrs() []slog.Attr {
	attrs := []slog.Attr{slog.Int("files_total", len(s))}
	if len(s) == 0 {
		return attrs
	}
	names := make([]string, 0, min(len(s), previewFiles))
	for _, f := range s[:min(len(s), previewFiles)] {
		names = append(names, f.name)
	}
	attrs = append(attrs, slog.String("files_preview", strings.Join(names, ", ")))
	if len(s) > previewFiles {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}

// RunMigrations applies every pending up migration from cfg.MigrationsDir.
// The memory driver has no schema and is skipped.
func RunMigrations(cfg Config) error {
	ctx := context.Background()
	if cfg.Driver == DriverMemory {
		logger.Info(ctx, migComponent, "summary", slog.String("driver", cfg.Driver), slog.String("status", "skip"))
		return nil
	}
	if cfg.Driver != DriverSQLite {
		if err := WaitForPostgres(cfg.MigrateURL(), 30*time.Second); err != nil {
			logger.Error(ctx, migComponent, "db.wait", slog.String("err", err.Error()))
			return fmt.Errorf("database not ready: %w", err)
		}
	}

	dir, err := migrationsDir(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	files, err := readMigrations(dir)
	if err != nil {
		logger.Error(ctx, migComponent, "resolve", slog.String("path", dir), slog.String("err", err.Error()))
		return err
	}
	logger.Debug(ctx, migComponent, "resolve", append(files.previewAttrs(), slog.String("path", dir))...)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.MigrateURL())
	if err != nil {
		logger.Error(ctx, migComponent, "init", slog.String("err", err.Error()))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	from := currentVersion(m)
	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, migComponent, "apply", slog.Uint64("from_ver", from), slog.String("err", upErr.Error()), slog.Duration("duration", took))
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	to := currentVersion(m)
	applied := files.between(from, to)
	if len(applied) > 0 {
		logger.Debug(ctx, migComponent, "apply", applied.previewAttrs()...)
	}
	logger.Info(ctx, migComponent, "summary",
		slog.Uint64("from_ver", from),
		slog.Uint64("to_ver", to),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// currentVersion is 0 before the first migration has run.
func currentVersion(m *migrate.Migrate) uint64 {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return uint64(v)
}

func migrationsDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	return abs, nil
}

// readMigrations lists the up files of dir ordered by version. Files without
// a numeric NNN_ prefix are ignored, as golang-migrate ignores them.
func readMigrations(dir string) (migrationSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var set migrationSet
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		set = append(set, migrationFile{version: v, name: name})
	}
	slices.SortFunc(set, func(a, b migrationFile) int { return cmp.Compare(a.version, b.version) })
	return set, nil
}
