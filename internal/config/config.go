// Package config loads the service's YAML configuration and applies
// environment variable overrides on top of it.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// FastLED WASM Compile Service - Configuration
// =============================================================================

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Build    BuildConfig    `yaml:"build"`
	Session  SessionConfig  `yaml:"session"`
	Cache    CacheConfig    `yaml:"cache"`
	Memory   MemoryConfig   `yaml:"memory"`
	Paths    PathsConfig    `yaml:"paths"`
	LiveGit  LiveGitConfig  `yaml:"live_git"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	UploadLimitMB   int    `yaml:"upload_limit_mb"`
	AllowShutdown   bool   `yaml:"allow_shutdown"`
	ClientDeadlineS int    `yaml:"client_deadline_sec"`
}

type BuildConfig struct {
	OnlyQuickBuilds bool   `yaml:"only_quick_builds"`
	NoPlatformio    bool   `yaml:"no_platformio"`
	Native          bool   `yaml:"native"`
	FastLEDVersion  string `yaml:"fastled_version"`
	BuildTimestamp  string `yaml:"build_timestamp"`
}

type SessionConfig struct {
	WorkerLeaseMinutes int `yaml:"worker_lease_minutes"`
	GcGraceMinutes     int `yaml:"gc_grace_minutes"`
	SweepIntervalSec   int `yaml:"sweep_interval_sec"`
}

type CacheConfig struct {
	Disabled   bool   `yaml:"disabled"`
	MaxEntries int    `yaml:"max_entries"`
	RedisAddr  string `yaml:"redis_addr"`
}

type MemoryConfig struct {
	LimitMB int `yaml:"limit_mb"`
}

type PathsConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	OutputDir      string `yaml:"output_dir"`
	CompilerRoot   string `yaml:"compiler_root"`
	VolumeMappedSrc string `yaml:"volume_mapped_src"`
	ExamplesDir    string `yaml:"examples_dir"`
}

type LiveGitConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalSec  int  `yaml:"interval_sec"`
	NoAutoUpdate bool `yaml:"no_auto_update"`
}

type SecurityConfig struct {
	AuthToken string `yaml:"auth_token"`
}

// =============================================================================
// Singleton with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide configuration singleton, loading it on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyDefaults()
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "80"
	}
	if c.Server.UploadLimitMB == 0 {
		c.Server.UploadLimitMB = 10
	}
	if c.Server.ClientDeadlineS == 0 {
		c.Server.ClientDeadlineS = 30
	}
	if c.Session.WorkerLeaseMinutes == 0 {
		c.Session.WorkerLeaseMinutes = 20
	}
	if c.Session.GcGraceMinutes == 0 {
		c.Session.GcGraceMinutes = 40
	}
	if c.Session.SweepIntervalSec == 0 {
		c.Session.SweepIntervalSec = 60
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 50
	}
	if c.Paths.UploadDir == "" {
		c.Paths.UploadDir = "/tmp/fastled-compile/uploads"
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = "/tmp/fastled-compile/output"
	}
	if c.Paths.CompilerRoot == "" {
		c.Paths.CompilerRoot = "/tmp/fastled-compile/compiler"
	}
	if c.Paths.ExamplesDir == "" {
		c.Paths.ExamplesDir = "/tmp/fastled-compile/examples"
	}
	if c.LiveGit.IntervalSec == 0 {
		c.LiveGit.IntervalSec = 300
	}
	if c.Security.AuthToken == "" {
		// Historical placeholder inherited from the original service; a
		// low-assurance bot filter, not a real auth boundary.
		c.Security.AuthToken = "oBOT5jbsO4ztgrpNsQwlmFLIKnD"
	}
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.AllowShutdown = getEnvBool("ALLOW_SHUTDOWN", c.Server.AllowShutdown)

	c.Build.OnlyQuickBuilds = getEnvBool("ONLY_QUICK_BUILDS", c.Build.OnlyQuickBuilds)
	c.Build.NoPlatformio = getEnvBool("NO_PLATFORMIO", c.Build.NoPlatformio)
	c.Build.Native = getEnvBool("NATIVE", c.Build.Native)
	c.Build.FastLEDVersion = getEnv("FASTLED_VERSION", c.Build.FastLEDVersion)

	c.Cache.Disabled = getEnvBool("NO_SKETCH_CACHE", c.Cache.Disabled)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)

	c.Memory.LimitMB = getEnvInt("MEMORY_LIMIT_MB", c.Memory.LimitMB)

	c.Paths.UploadDir = getEnv("UPLOAD_DIR", c.Paths.UploadDir)
	c.Paths.OutputDir = getEnv("OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.CompilerRoot = getEnv("COMPILER_ROOT", c.Paths.CompilerRoot)
	c.Paths.VolumeMappedSrc = getEnv("VOLUME_MAPPED_SRC", c.Paths.VolumeMappedSrc)
	c.Paths.ExamplesDir = getEnv("EXAMPLES_DIR", c.Paths.ExamplesDir)

	c.LiveGit.Enabled = getEnvBool("LIVE_GIT_UPDATES_ENABLED", c.LiveGit.Enabled)
	c.LiveGit.IntervalSec = getEnvInt("LIVE_GIT_UPDATE_INTERVAL", c.LiveGit.IntervalSec)
	c.LiveGit.NoAutoUpdate = getEnvBool("NO_AUTO_UPDATE", c.LiveGit.NoAutoUpdate)

	c.Security.AuthToken = getEnv("AUTH_TOKEN", c.Security.AuthToken)
}

// UploadLimitBytes is the configured upload limit expressed in bytes.
func (c *Config) UploadLimitBytes() int64 {
	return int64(c.Server.UploadLimitMB) * 1024 * 1024
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
