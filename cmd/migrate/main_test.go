package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_orders.sql", "001_stock.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}

	files, err := discoverMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_stock.sql", "002_orders.sql"}, files)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_again.sql"), []byte("SELECT 2;"), 0o644))
	_, err = discoverMigrations(dir)
	assert.ErrorContains(t, err, "duplicate version 002")
}

func TestExtractVersion(t *testing.T) {
	v, err := extractVersion("001_stock_engine.sql")
	require.NoError(t, err)
	assert.Equal(t, "001", v)

	_, err = extractVersion("stock.sql")
	assert.Error(t, err)
}

func TestChecksumStable(t *testing.T) {
	assert.Equal(t, checksum([]byte("a")), checksum([]byte("a")))
	assert.NotEqual(t, checksum([]byte("a")), checksum([]byte("b")))
}
