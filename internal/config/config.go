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
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type StripConfig struct {
	MaxThumbWidth  int    `yaml:"max_thumb_width"`
	MaxThumbHeight int    `yaml:"max_thumb_height"`
	Spacing        int    `yaml:"spacing"`
	LabelFont      string `yaml:"label_font"` // optional TTF file for captions
	Workers        int    `yaml:"workers"`
	ReverseOrder   bool   `yaml:"reverse_order"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	DSN    string `yaml:"dsn"`
	// Password is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Strip         StripConfig   `yaml:"strip"`
	Store         StoreConfig   `yaml:"store"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Strip:         StripConfig{MaxThumbWidth: 160, MaxThumbHeight: 160, Spacing: 10, Workers: 4},
		Store:         StoreConfig{Driver: "sqlite"},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir      = "SCS_CONFIG_DIR"
	EnvTelemetryOptIn = "SCS_TELEMETRY_OPT_IN"
	EnvThumbSize      = "SCS_THUMB_SIZE" // "WxH"
	EnvSpacing        = "SCS_SPACING"
	EnvLabelFont      = "SCS_LABEL_FONT"
	EnvWorkers        = "SCS_WORKERS"
	EnvStoreDriver    = "SCS_STORE_DRIVER"
	EnvStoreDSN       = "SCS_PG_DSN"
	EnvStorePassword  = "SCS_PG_PASSWORD"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SCS_LOG_LEVEL"
	EnvLogFormat = "SCS_LOG_FORMAT"
	EnvLogSource = "SCS_LOG_SOURCE"
	EnvLogFile   = "SCS_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService  = "ScanStrip"
	keyringPassword = "store_password"
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

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch {
	case os.Getenv(EnvConfigDir) != "":
		base = os.Getenv(EnvConfigDir)
	case runtime.GOOS == "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ScanStrip")
	case runtime.GOOS == "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ScanStrip")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "scanstrip")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "scanstrip")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// The store password comes from the keyring unless SCS_PG_PASSWORD is set;
// it is returned separately and never kept inside the struct.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	if v := os.Getenv(EnvStorePassword); v != "" {
		return cfg, v, nil
	}
	pw, _ := secretStore.Get(keyringService, keyringPassword)
	return cfg, pw, nil
}

// Save writes the user config YAML and persists the password into OS keyring (if non-empty).
func Save(cfg AppConfig, password string) error {
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
	if password != "" {
		if err := secretStore.Set(keyringService, keyringPassword, password); err != nil {
			return err
		}
	}
	return nil
}

// ForgetPassword removes the store password from the keyring.
func ForgetPassword() error {
	err := secretStore.Delete(keyringService, keyringPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.Strip.ReverseOrder = src.Strip.ReverseOrder
	if src.Strip.MaxThumbWidth > 0 {
		dst.Strip.MaxThumbWidth = src.Strip.MaxThumbWidth
	}
	if src.Strip.MaxThumbHeight > 0 {
		dst.Strip.MaxThumbHeight = src.Strip.MaxThumbHeight
	}
	if src.Strip.Spacing > 0 {
		dst.Strip.Spacing = src.Strip.Spacing
	}
	if strings.TrimSpace(src.Strip.LabelFont) != "" {
		dst.Strip.LabelFont = strings.TrimSpace(src.Strip.LabelFont)
	}
	if src.Strip.Workers > 0 {
		dst.Strip.Workers = src.Strip.Workers
	}
	if strings.TrimSpace(src.Store.Driver) != "" {
		dst.Store.Driver = strings.ToLower(strings.TrimSpace(src.Store.Driver))
	}
	if strings.TrimSpace(src.Store.DSN) != "" {
		dst.Store.DSN = strings.TrimSpace(src.Store.DSN)
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

func parseBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// parseSize reads "WxH".
func parseSize(v string) (int, int, bool) {
	ws, hs, ok := strings.Cut(strings.ToLower(v), "x")
	if !ok {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(ws))
	h, err2 := strconv.Atoi(strings.TrimSpace(hs))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvThumbSize)); v != "" {
		if w, h, ok := parseSize(v); ok {
			cfg.Strip.MaxThumbWidth, cfg.Strip.MaxThumbHeight = w, h
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSpacing)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Strip.Spacing = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLabelFont)); v != "" {
		cfg.Strip.LabelFont = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Strip.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreDriver)); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreDSN)); v != "" {
		cfg.Store.DSN = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envByKey = map[string]string{
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"strip.max_thumb_width":    EnvThumbSize,
	"strip.max_thumb_height":   EnvThumbSize,
	"strip.spacing":            EnvSpacing,
	"strip.label_font":         EnvLabelFont,
	"strip.workers":            EnvWorkers,
	"store.driver":             EnvStoreDriver,
	"store.dsn":                EnvStoreDSN,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envByKey[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
