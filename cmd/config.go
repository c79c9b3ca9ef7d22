package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sim-replay/sim-replay/replay"
	"github.com/sim-replay/sim-replay/replay/sqlitestore"
	"github.com/sim-replay/sim-replay/schelling"
)

// CacheConfig groups where and how the cache is stored.
type CacheConfig struct {
	Path        string `yaml:"path"`        // cache file (or SQLite database) path
	Store       string `yaml:"store"`       // "file" (default), "stream" or "sqlite"
	Compression string `yaml:"compression"` // "none" (default), "gzip" or "zstd"
	StepRate    int    `yaml:"step_rate"`   // cache every n-th step (default 1)
	RunID       string `yaml:"run_id"`      // SQLite only: run to replay (default latest)
}

// RunConfig is the YAML configuration for a recorded or replayed run.
type RunConfig struct {
	Model schelling.Params `yaml:"model"`
	Cache CacheConfig      `yaml:"cache"`
}

// DefaultRunConfig returns the configuration used when no config file and no
// flags are given.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Model: schelling.DefaultParams(),
		Cache: CacheConfig{
			Path:        "schelling.cache",
			Store:       "file",
			Compression: string(replay.CompressionNone),
			StepRate:    1,
		},
	}
}

// LoadRunConfig reads a RunConfig from a YAML file, layered on top of the
// defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	return cfg, nil
}

// openCacheDB opens the SQLite cache database behind "store: sqlite".
func openCacheDB(path string) (*sqlitestore.DB, error) {
	db, err := sqlitestore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database %s: %w", path, err)
	}
	return db, nil
}

// openRecordStore creates the store a recording writes to, based on the cache
// configuration. The returned closer tears down any store-backing handle
// (the SQLite database) and must be called after the session finishes.
func openRecordStore(cfg CacheConfig, header *replay.Header) (replay.Store, func() error, error) {
	switch cfg.Store {
	case "", "file":
		st, err := replay.NewFileStore(cfg.Path, header)
		return st, nil, err
	case "stream":
		st, err := replay.NewStreamStore(cfg.Path, header)
		return st, nil, err
	case "sqlite":
		db, err := openCacheDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		st, err := db.Record(header)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q (want file, stream or sqlite)", cfg.Store)
	}
}

// openReplayStore opens the store a replay reads from.
func openReplayStore(cfg CacheConfig) (replay.Store, func() error, error) {
	switch cfg.Store {
	case "", "file":
		st, err := replay.OpenFileStore(cfg.Path)
		return st, nil, err
	case "stream":
		st, err := replay.OpenStreamStore(cfg.Path)
		return st, nil, err
	case "sqlite":
		db, err := openCacheDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		st, err := db.Replay(cfg.RunID)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q (want file, stream or sqlite)", cfg.Store)
	}
}
