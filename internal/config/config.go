/*
Package config manages the TOML configuration shared by the index builder and the suggestion server.

A missing file is not an error: every field has a default. Database credentials can be kept out of
the file and supplied through the environment (or a .env file):

	DEISUGGEST_STORE_DRIVER=mysql
	DEISUGGEST_STORE_DSN=user:secret@tcp(localhost:3306)/ngram
	DEISUGGEST_SERVER_ADDR=:9000

Example file:

	[store]
	driver = "sqlite3"
	dsn = "suggest.db"

	[build]
	prefix_lengths = [2]
	continuation_length = 1
	# max_ngram = 3 counts every prefix/continuation split of windows up to 3 words
	min_count = 5
	keep_top = 10

	[server]
	addr = ":8080"
	query_timeout_ms = 2000
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	EnvStoreDriver = "DEISUGGEST_STORE_DRIVER"
	EnvStoreDSN    = "DEISUGGEST_STORE_DSN"
	EnvServerAddr  = "DEISUGGEST_SERVER_ADDR"
)

// Config holds the entire config structure.
type Config struct {
	Store  StoreConfig  `toml:"store"`
	Build  BuildConfig  `toml:"build"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// StoreConfig selects the frequency store backend.
// Driver is one of "sqlite3", "mysql", "bolt" or "memory".
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	// Snapshot is a msgpack export preloaded by the memory driver.
	Snapshot string `toml:"snapshot"`
	// BatchSize bounds the rows written per transaction.
	BatchSize int `toml:"batch_size"`
}

// BuildConfig holds n-gram indexing options.
type BuildConfig struct {
	PrefixLengths      []int        `toml:"prefix_lengths"`
	ContinuationLength int          `toml:"continuation_length"`
	// MaxNgram, when > 0, replaces ContinuationLength with every continuation length
	// that keeps prefix + continuation within MaxNgram words.
	MaxNgram           int          `toml:"max_ngram"`
	Workers            int          `toml:"workers"`
	FlushSize          int          `toml:"flush_size"`
	MinCount           uint64       `toml:"min_count"`
	KeepTop            int          `toml:"keep_top"`
	SampleSize         int          `toml:"sample_size"`
	Filters            FilterConfig `toml:"filters"`
}

// FilterConfig enables the optional word filters applied on both build and query paths.
type FilterConfig struct {
	LettersOnly   bool `toml:"letters_only"`
	DropStopWords bool `toml:"drop_stop_words"`
	MinWordLength int  `toml:"min_word_length"`
}

// ServerConfig has query server options.
type ServerConfig struct {
	Addr           string `toml:"addr"`
	DefaultLimit   int    `toml:"default_limit"`
	MaxLimit       int    `toml:"max_limit"`
	QueryTimeoutMS int    `toml:"query_timeout_ms"`
	CacheSize      int    `toml:"cache_size"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// QueryTimeout returns the per-query store deadline.
func (s ServerConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutMS) * time.Millisecond
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:    "sqlite3",
			DSN:       "suggest.db",
			BatchSize: 10000,
		},
		Build: BuildConfig{
			PrefixLengths:      []int{2},
			ContinuationLength: 1,
			Workers:            runtime.NumCPU(),
			FlushSize:          50000,
			MinCount:           1,
			KeepTop:            0,
			SampleSize:         1000,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			DefaultLimit:   10,
			MaxLimit:       50,
			QueryTimeoutMS: 2000,
			CacheSize:      4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configPath over the defaults, then applies .env and environment overrides.
// An empty or missing configPath yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if _, err := toml.DecodeFile(configPath, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
			}
			log.Debugf("Loaded config from %s", configPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", configPath, err)
		} else {
			log.Debugf("Config file %s not found, using defaults", configPath)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Ignoring unreadable .env file: %v", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.Server.Addr = v
	}
}

// Validate rejects configurations the builder or server cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite3", "mysql", "bolt", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if len(c.Build.PrefixLengths) == 0 {
		return errors.New("build.prefix_lengths must not be empty")
	}
	for _, n := range c.Build.PrefixLengths {
		if n < 1 {
			return fmt.Errorf("build.prefix_lengths: invalid length %d", n)
		}
	}
	if c.Build.ContinuationLength < 1 {
		return fmt.Errorf("build.continuation_length: invalid length %d", c.Build.ContinuationLength)
	}
	if c.Build.MaxNgram < 0 {
		return fmt.Errorf("build.max_ngram: invalid length %d", c.Build.MaxNgram)
	}
	if c.Build.MaxNgram > 0 && slices.Min(c.Build.PrefixLengths) >= c.Build.MaxNgram {
		return fmt.Errorf("build.max_ngram: %d leaves no room for a continuation after prefix lengths %v",
			c.Build.MaxNgram, c.Build.PrefixLengths)
	}
	if c.Server.DefaultLimit < 1 || c.Server.MaxLimit < c.Server.DefaultLimit {
		return fmt.Errorf("server limits out of range: default=%d max=%d", c.Server.DefaultLimit, c.Server.MaxLimit)
	}
	return nil
}
