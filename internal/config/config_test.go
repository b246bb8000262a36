package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chirst/dbm/pager"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "dbm.yaml"))
	require.NoError(t, err)
	require.Equal(t, pager.PAGE_CACHE_SIZE, cfg.CacheSize)
	require.Equal(t, pager.PAGE_SIZE, cfg.PageSize)
	require.Empty(t, cfg.DBFile)
}

func TestLoadOverlaysProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_size: 2000\ndb_file: my.db\n"), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2000, cfg.CacheSize)
	require.Equal(t, "my.db", cfg.DBFile)
	require.Equal(t, pager.PAGE_SIZE, cfg.PageSize)
}

func TestLoadRejectsUnsupportedPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 8192\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_size: [this is not a number\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}
