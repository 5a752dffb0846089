package anno

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultRemoteURL is the annotation service used when a download URL has no host.
	DefaultRemoteURL = "https://webknossos.org"

	// DefaultRemoteTimeout bounds a single archive download.
	DefaultRemoteTimeout = 5 * time.Minute
)

// Config is the parsed TOML configuration, e.g.
//
//	[logging]
//	logfile = "/var/log/annotar.log"
//	max_log_size = 500 # MB
//	max_log_age = 30   # days
//
//	[storage]
//	scratch_dir = "/scratch/annotar"
//	chunk_cache_mb = 256
//	compression = "zstd"
//	checksum = "crc32"
//
//	[remote]
//	url = "https://webknossos.org"
//	timeout = "2m"
type Config struct {
	Logging LogConfig
	Storage StorageConfig
	Remote  RemoteConfig
}

// StorageConfig holds settings for layer storage and temporary copies.
type StorageConfig struct {
	// ScratchDir is where temporary volume layer copies are materialized.
	// Defaults to os.TempDir().
	ScratchDir string `toml:"scratch_dir"`

	// ChunkCacheMB is the size of the decoded chunk cache per layer.  0 disables caching.
	ChunkCacheMB int `toml:"chunk_cache_mb"`

	// Compression and Checksum set the chunk encoding for new volume layers.
	Compression string
	Checksum    string
}

// RemoteConfig holds settings for downloading annotations.
type RemoteConfig struct {
	URL     string
	Timeout Duration
}

// Duration is a time.Duration that decodes from TOML strings like "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			ScratchDir:  os.TempDir(),
			Compression: "zstd",
			Checksum:    "crc32",
		},
		Remote: RemoteConfig{
			URL:     DefaultRemoteURL,
			Timeout: Duration{DefaultRemoteTimeout},
		},
	}
}

// LoadConfig loads configuration from a TOML file on top of DefaultConfig.  Relative paths
// in the file are taken relative to the file's own directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := DefaultConfig()
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %q: %w", filename, err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	Debugf("Loaded configuration from %s: %+v\n", filename, *c)
	return c, nil
}

// ChunkCacheBytes returns the configured chunk cache size in bytes.
func (c *Config) ChunkCacheBytes() int {
	return c.Storage.ChunkCacheMB << 20
}

func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)
	var err error
	if c.Logging.Logfile != "" {
		if c.Logging.Logfile, err = ConvertToAbsolute(c.Logging.Logfile, configDir); err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %w", err)
		}
	}
	if c.Storage.ScratchDir != "" {
		if c.Storage.ScratchDir, err = ConvertToAbsolute(c.Storage.ScratchDir, configDir); err != nil {
			return fmt.Errorf("error converting scratch_dir setting to absolute path: %w", err)
		}
	}
	return nil
}

// ConvertToAbsolute returns path unchanged if absolute, else joined to baseDir.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(baseDir, path))
}
