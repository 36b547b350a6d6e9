package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMigrationsOrdersByVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000010_profiles.up.sql",
		"000002_portal_cookies.up.sql",
		"000002_portal_cookies.down.sql",
		"000001_chat_sessions.up.sql",
		"README.md",
		"notes.up.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	set, err := readMigrations(dir)
	require.NoError(t, err)
	require.Len(t, set, 3)
	assert.Equal(t, []uint64{1, 2, 10}, []uint64{set[0].version, set[1].version, set[2].version})

	pending := set.between(1, 10)
	require.Len(t, pending, 2)
	assert.Equal(t, "000002_portal_cookies.up.sql", pending[0].name)
	assert.Empty(t, set.between(10, 10))
}

func TestMigrationPreviewTruncates(t *testing.T) {
	var set migrationSet
	for v := range 8 {
		set = append(set, migrationFile{version: uint64(v + 1), name: "m"})
	}
	attrs := map[string]string{}
	for _, a := range set.previewAttrs() {
		attrs[a.Key] = a.Value.String()
	}
	assert.Equal(t, "8", attrs["files_total"])
	assert.Equal(t, "true", attrs["files_truncated"])
	assert.Equal(t, "m, m, m, m, m, m", attrs["files_preview"])

	assert.Len(t, migrationSet(nil).previewAttrs(), 1)
}

func TestRunMigrationsSkipsMemoryDriver(t *testing.T) {
	assert.NoError(t, RunMigrations(Config{Driver: DriverMemory}))
}

func TestReadMigrationsMissingDir(t *testing.T) {
	_, err := readMigrations(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
