// Package config loads dbm's runtime configuration from an optional YAML
// file, falling back to the pager's compiled-in defaults when the file is
// absent. It is consumed by cmd/dbm before handing a *db.DB to the repl.
package config

import (
	"fmt"
	"os"

	"github.com/chirst/dbm/pager"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the optional dbm.yaml shape. Zero values mean "not set"
// and fall back to the pager's own defaults.
type fileConfig struct {
	PageSize  int    `yaml:"page_size"`
	CacheSize int    `yaml:"cache_size"`
	DBFile    string `yaml:"db_file"`
}

// Config is the resolved configuration handed to db.NewWithConfig.
type Config struct {
	// Memory, when true, opens an in-memory database regardless of DBFile.
	Memory bool
	// DBFile is the path to the database file. Ignored when Memory is true.
	DBFile string
	// CacheSize is the number of pages the pager's LRU cache may hold.
	CacheSize int
	// PageSize is recorded for visibility only; the on-disk page layout is a
	// fixed format, not a runtime knob, so a file that requests a PageSize
	// other than pager.PAGE_SIZE is rejected rather than silently ignored.
	PageSize int
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		CacheSize: pager.PAGE_CACHE_SIZE,
		PageSize:  pager.PAGE_SIZE,
	}
}

// Load reads path (typically dbm.yaml in the working directory) and overlays it on
// top of Default. A missing file is not an error; it just means the defaults
// apply. A present but malformed file, or one that asks for an unsupported
// page size, is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	var fc fileConfig
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if fc.CacheSize > 0 {
		cfg.CacheSize = fc.CacheSize
	}
	if fc.PageSize > 0 {
		if fc.PageSize != pager.PAGE_SIZE {
			return nil, fmt.Errorf("config: page_size %d is not supported, the on-disk format is fixed at %d", fc.PageSize, pager.PAGE_SIZE)
		}
		cfg.PageSize = fc.PageSize
	}
	if fc.DBFile != "" {
		cfg.DBFile = fc.DBFile
	}
	return cfg, nil
}
