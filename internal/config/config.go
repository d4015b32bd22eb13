/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"storyreader/internal/assets"
	"storyreader/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type AssetsConfig struct {
	Source         string  `yaml:"source"` // one of assets.SourceNames()
	ProbeTimeoutMs int     `yaml:"probe_timeout_ms"`
	ProbeRate      float64 `yaml:"probe_rate"` // probes per second, 0 = unlimited
	ProbeBurst     int     `yaml:"probe_burst"`
	Concurrency    int     `yaml:"concurrency"`
}

type MasterDataConfig struct {
	BaseURL  string `yaml:"base_url"`
	LocalDir string `yaml:"local_dir"`
	CacheTTL string `yaml:"cache_ttl"` // Go duration, e.g. "6h"
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client, 0 = unlimited
	// The database URL is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Assets        AssetsConfig     `yaml:"assets"`
	MasterData    MasterDataConfig `yaml:"masterdata"`
	Cache         CacheConfig      `yaml:"cache"`
	Server        ServerConfig     `yaml:"server"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Assets: AssetsConfig{
			Source:         string(assets.SourceUni),
			ProbeTimeoutMs: int(assets.DefaultProbeTimeout / time.Millisecond),
			ProbeRate:      20,
			ProbeBurst:     8,
			Concurrency:    8,
		},
		MasterData: MasterDataConfig{
			BaseURL:  "https://raw.githubusercontent.com/Sekai-World/sekai-master-db-diff/main",
			CacheTTL: "6h",
		},
		Server:  ServerConfig{Addr: "127.0.0.1:8080", RateLimit: 10},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile      = "SR_CONFIG"
	EnvTelemetryOptIn  = "SR_TELEMETRY_OPT_IN"
	EnvAssetSource     = "SR_ASSET_SOURCE"
	EnvProbeTimeoutMs  = "SR_PROBE_TIMEOUT_MS"
	EnvProbeRate       = "SR_PROBE_RATE"
	EnvConcurrency     = "SR_CONCURRENCY"
	EnvMasterDataURL   = "SR_MASTERDATA_URL"
	EnvMasterDataDir   = "SR_MASTERDATA_DIR"
	EnvCacheDir        = "SR_CACHE_DIR"
	EnvServerAddr      = "SR_SERVER_ADDR"
	EnvServerRateLimit = "SR_SERVER_RATE_LIMIT"
	EnvDatabaseURL     = "SR_DATABASE_URL"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SR_LOG_LEVEL"
	EnvLogFormat = "SR_LOG_FORMAT"
	EnvLogSource = "SR_LOG_SOURCE"
	EnvLogFile   = "SR_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService     = "storyreader"
	keyringDatabaseURL = "database_url"
)

// secretStore abstracts keyring, so we can stub in tests.
var secretStore SecretStore = osKeyring{}

type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. SR_CONFIG replaces it entirely.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "storyreader", "config.yaml"), nil
}

// DefaultCacheDir is used when cache.dir is empty.
func DefaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil && base != "" {
		return filepath.Join(base, "storyreader")
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("TEMP"), "storyreader")
	}
	return filepath.Join(os.TempDir(), "storyreader")
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// It also returns the database URL: SR_DATABASE_URL wins over the keyring entry.
// A malformed config file is an error; a missing one is not.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	return cfg, DatabaseURL(), nil
}

// DatabaseURL returns the Postgres DSN from the environment or keyring, or "".
func DatabaseURL() string {
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		return v
	}
	dsn, _ := secretStore.Get(keyringService, keyringDatabaseURL)
	return dsn
}

// Save writes the user config YAML and persists the database URL into the OS keyring (if non-empty).
func Save(cfg AppConfig, databaseURL string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if databaseURL != "" {
		if err := secretStore.Set(keyringService, keyringDatabaseURL, databaseURL); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects values the rest of the program cannot work with.
func (c AppConfig) Validate() error {
	if _, err := assets.LookupSource(c.Assets.Source); err != nil {
		return fmt.Errorf("assets.source: %w", err)
	}
	if c.Assets.ProbeRate < 0 {
		return fmt.Errorf("assets.probe_rate must not be negative: %v", c.Assets.ProbeRate)
	}
	if c.MasterData.CacheTTL != "" {
		if _, err := time.ParseDuration(c.MasterData.CacheTTL); err != nil {
			return fmt.Errorf("masterdata.cache_ttl: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if strings.TrimSpace(src.Assets.Source) != "" {
		dst.Assets.Source = strings.ToLower(strings.TrimSpace(src.Assets.Source))
	}
	if src.Assets.ProbeTimeoutMs != 0 {
		dst.Assets.ProbeTimeoutMs = src.Assets.ProbeTimeoutMs
	}
	if src.Assets.ProbeRate != 0 {
		dst.Assets.ProbeRate = src.Assets.ProbeRate
	}
	if src.Assets.ProbeBurst != 0 {
		dst.Assets.ProbeBurst = src.Assets.ProbeBurst
	}
	if src.Assets.Concurrency != 0 {
		dst.Assets.Concurrency = src.Assets.Concurrency
	}
	if src.MasterData.BaseURL != "" {
		dst.MasterData.BaseURL = strings.TrimRight(src.MasterData.BaseURL, "/")
	}
	if src.MasterData.LocalDir != "" {
		dst.MasterData.LocalDir = src.MasterData.LocalDir
	}
	if src.MasterData.CacheTTL != "" {
		dst.MasterData.CacheTTL = src.MasterData.CacheTTL
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.RateLimit != 0 {
		dst.Server.RateLimit = src.Server.RateLimit
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvAssetSource)); v != "" {
		cfg.Assets.Source = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvProbeTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assets.ProbeTimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvProbeRate)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Assets.ProbeRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvConcurrency)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assets.Concurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvMasterDataURL)); v != "" {
		cfg.MasterData.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvMasterDataDir)); v != "" {
		cfg.MasterData.LocalDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		cfg.Cache.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerRateLimit)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"assets.source":            EnvAssetSource,
	"assets.probe_timeout_ms":  EnvProbeTimeoutMs,
	"assets.probe_rate":        EnvProbeRate,
	"assets.concurrency":       EnvConcurrency,
	"masterdata.base_url":      EnvMasterDataURL,
	"masterdata.local_dir":     EnvMasterDataDir,
	"cache.dir":                EnvCacheDir,
	"server.addr":              EnvServerAddr,
	"server.rate_limit":        EnvServerRateLimit,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// ProbeTimeout returns the probe timeout, falling back to the default for non-positive values.
func (a AssetsConfig) ProbeTimeout() time.Duration {
	if a.ProbeTimeoutMs <= 0 {
		return assets.DefaultProbeTimeout
	}
	return time.Duration(a.ProbeTimeoutMs) * time.Millisecond
}

// TTL returns the master data cache lifetime; zero means entries never expire.
func (m MasterDataConfig) TTL() time.Duration {
	d, err := time.ParseDuration(m.CacheTTL)
	if err != nil {
		return 0
	}
	return d
}

// CacheDir returns the configured cache directory or the per-user default.
func (c AppConfig) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return DefaultCacheDir()
}

// LogOptions maps the logging section onto log.Options.
func (l LoggingConfig) LogOptions() log.Options {
	return log.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
