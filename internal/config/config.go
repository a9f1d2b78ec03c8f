package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	SpeedTest SpeedTestConfig `toml:"speedtest"`
	Directory DirectoryConfig `toml:"directory"`
}

type LoggingConfig struct {
	Dir      string `toml:"dir"`
	MaxMB    int    `toml:"max_mb"`
	MaxFiles int    `toml:"max_files"`
}

type SpeedTestConfig struct {
	TestDomain string `toml:"test_domain"`
	TimeoutMS  int    `toml:"timeout_ms"`
	BatchSize  int    `toml:"batch_size"`
	Top        int    `toml:"top"`
}

type DirectoryConfig struct {
	ListFile        string   `toml:"list_file"`
	CacheDir        string   `toml:"cache_dir"`
	CacheTTLHours   int      `toml:"cache_ttl_hours"`
	Proxy           string   `toml:"proxy"`
	Retries         int      `toml:"retries"`
	HTTPTimeoutSecs int      `toml:"http_timeout_secs"`
	InsecureTLS     bool     `toml:"insecure_tls"`
	Fallback        []string `toml:"fallback"`
}

func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Dir:      "logs",
			MaxMB:    10,
			MaxFiles: 3,
		},
		SpeedTest: SpeedTestConfig{
			TestDomain: "google.com",
			TimeoutMS:  500,
			BatchSize:  100,
			Top:        2,
		},
		Directory: DirectoryConfig{
			ListFile:        "data/dns-list.json",
			CacheDir:        "cache",
			CacheTTLHours:   24,
			Retries:         3,
			HTTPTimeoutSecs: 30,
			Fallback: []string{
				"8.8.8.8",
				"8.8.4.4",
				"1.1.1.1",
				"1.0.0.1",
				"223.5.5.5",
				"223.6.6.6",
			},
		},
	}
}

// Load decodes the TOML file at path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Logging.Dir) == "" {
		errs = append(errs, "logging.dir is required")
	}
	if c.Logging.MaxMB <= 0 {
		errs = append(errs, "logging.max_mb must be > 0")
	}
	if c.Logging.MaxFiles <= 0 {
		errs = append(errs, "logging.max_files must be > 0")
	}
	if strings.TrimSpace(c.SpeedTest.TestDomain) == "" {
		errs = append(errs, "speedtest.test_domain is required")
	}
	if c.SpeedTest.TimeoutMS <= 0 {
		errs = append(errs, "speedtest.timeout_ms must be > 0")
	}
	if c.SpeedTest.BatchSize <= 0 {
		errs = append(errs, "speedtest.batch_size must be > 0")
	}
	if c.SpeedTest.Top <= 0 {
		errs = append(errs, "speedtest.top must be > 0")
	}
	if strings.TrimSpace(c.Directory.ListFile) == "" {
		errs = append(errs, "directory.list_file is required")
	}
	if strings.TrimSpace(c.Directory.CacheDir) == "" {
		errs = append(errs, "directory.cache_dir is required")
	}
	if c.Directory.CacheTTLHours < 0 {
		errs = append(errs, "directory.cache_ttl_hours must be >= 0")
	}
	if c.Directory.Retries <= 0 {
		errs = append(errs, "directory.retries must be > 0")
	}
	if c.Directory.HTTPTimeoutSecs <= 0 {
		errs = append(errs, "directory.http_timeout_secs must be > 0")
	}
	for i, ip := range c.Directory.Fallback {
		if strings.TrimSpace(ip) == "" {
			errs = append(errs, fmt.Sprintf("directory.fallback[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}
