// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for echo.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env loading, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - --config flag or ECHO_CONFIG
//   - ~/.echo/config.toml
//   - ~/.echo/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/util"
)

// DefaultAPIBase is the chat service address used when nothing is configured.
const DefaultAPIBase = "http://127.0.0.1:8000"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete echo configuration.
type Config struct {
	API     APIConfig     `toml:"api" json:"api"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Auth    AuthConfig    `toml:"auth" json:"auth"`
	Log     LogConfig     `toml:"log" json:"log"`
	Voice   VoiceConfig   `toml:"voice" json:"voice"`
}

// APIConfig configures the remote chat service.
type APIConfig struct {
	// BaseURL is prepended to /chat/ and /generate-chat-title/
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs bounds one completion request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// TitleTimeoutSecs bounds one title generation request
	TitleTimeoutSecs int `toml:"title_timeout_secs" json:"title_timeout_secs"`
	// RequestsPerMinute limits outgoing requests (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
}

// ChatConfig holds chat behaviour settings.
type ChatConfig struct {
	// Personality is one of Friendly, Funny, Professional, Supportive
	Personality string `toml:"personality" json:"personality"`
	// OfflineMode forces the client to behave as if no network were available
	OfflineMode bool `toml:"offline_mode" json:"offline_mode"`
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	// DeviceBackend is "file" or "sqlite"
	DeviceBackend string `toml:"device_backend" json:"device_backend"`
	// DevicePath is the device store location (empty = under the config dir)
	DevicePath string `toml:"device_path" json:"device_path"`
	// WatchDevice reloads guest chats when another process rewrites the store
	WatchDevice bool `toml:"watch_device" json:"watch_device"`
	// RemoteDriver is "postgres" or "sqlite"; empty disables signed-in storage
	RemoteDriver string `toml:"remote_driver" json:"remote_driver"`
	// RemoteDSN is the row store connection string
	RemoteDSN string `toml:"remote_dsn" json:"remote_dsn"`
	// MigrateGuestChats copies guest chats into the remote store on sign-in
	MigrateGuestChats bool `toml:"migrate_guest_chats" json:"migrate_guest_chats"`
}

// AuthConfig configures the session token gate.
type AuthConfig struct {
	// SessionFile stores the signed-in session token (empty = under the config dir)
	SessionFile string `toml:"session_file" json:"session_file"`
	// JWTSecret verifies HS256 session tokens; empty accepts tokens unverified
	JWTSecret string `toml:"jwt_secret" json:"jwt_secret"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
	// File receives log output (empty = stderr)
	File string `toml:"file" json:"file"`
}

// VoiceConfig configures optional dictation.
type VoiceConfig struct {
	// Command prints one transcript on stdout (empty = voice unsupported)
	Command string `toml:"command" json:"command"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          DefaultAPIBase,
			TimeoutSecs:      30,
			TitleTimeoutSecs: 15,
		},
		Chat: ChatConfig{
			Personality: string(model.DefaultPersonality),
		},
		Storage: StorageConfig{
			DeviceBackend:     "file",
			WatchDevice:       true,
			MigrateGuestChats: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Timeout returns the completion request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// TitleTimeout returns the title request timeout.
func (c *Config) TitleTimeout() time.Duration {
	return time.Duration(c.API.TitleTimeoutSecs) * time.Second
}

// Personality returns the configured personality, falling back to the default.
func (c *Config) Personality() model.Personality {
	p, err := model.ParsePersonality(c.Chat.Personality)
	if err != nil {
		return model.DefaultPersonality
	}
	return p
}

// RemoteEnabled reports whether a signed-in row store is configured.
func (c *Config) RemoteEnabled() bool {
	return c.Storage.RemoteDriver != "" && c.Storage.RemoteDSN != ""
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the echo configuration directory (ECHO_HOME or ~/.echo).
func ConfigDir() (string, error) {
	if dir := os.Getenv("ECHO_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".echo"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DevicePath returns the device store location, defaulting under ConfigDir.
func (c *Config) DevicePath() (string, error) {
	if c.Storage.DevicePath != "" {
		return c.Storage.DevicePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Storage.DeviceBackend == "sqlite" {
		return filepath.Join(dir, "device.db"), nil
	}
	return filepath.Join(dir, "device.json"), nil
}

// SessionFile returns the auth session file, defaulting under ConfigDir.
func (c *Config) SessionFile() (string, error) {
	if c.Auth.SessionFile != "" {
		return c.Auth.SessionFile, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration. An explicit path (or ECHO_CONFIG) wins; otherwise
// the TOML file is tried first, then JSON, then built-in defaults. A .env file
// in the working directory is loaded before environment overrides apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("ECHO_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
		return finish(cfg)
	}

	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		p, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(p); statErr != nil {
			continue
		}
		if err := loadFile(cfg, p); err != nil {
			return nil, err
		}
		break
	}
	return finish(cfg)
}

func loadFile(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read JSON config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML config %s: %w", path, err)
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
	if c.API.TimeoutSecs <= 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.TitleTimeoutSecs <= 0 {
		c.API.TitleTimeoutSecs = d.API.TitleTimeoutSecs
	}
	if c.Chat.Personality == "" {
		c.Chat.Personality = d.Chat.Personality
	}
	if c.Storage.DeviceBackend == "" {
		c.Storage.DeviceBackend = d.Storage.DeviceBackend
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - ECHO_API_BASE (aliases API_BASE, NEXT_PUBLIC_API_BASE): api.base_url
//   - ECHO_TIMEOUT_SECS: api.timeout_secs
//   - ECHO_PERSONALITY: chat.personality
//   - ECHO_OFFLINE: "1" or "true" forces offline mode
//   - ECHO_DEVICE_STORE: storage.device_backend
//   - ECHO_DEVICE_PATH: storage.device_path
//   - ECHO_REMOTE_DRIVER / ECHO_REMOTE_DSN: remote row store
//   - ECHO_JWT_SECRET: auth.jwt_secret
//   - ECHO_VOICE_COMMAND: voice.command
//   - ECHO_LOG_LEVEL / ECHO_LOG_FILE: logging
func (c *Config) ApplyEnvOverrides() {
	for _, key := range []string{"NEXT_PUBLIC_API_BASE", "API_BASE", "ECHO_API_BASE"} {
		if v := os.Getenv(key); v != "" {
			c.API.BaseURL = v
		}
	}
	if v := os.Getenv("ECHO_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.TimeoutSecs = n
		}
	}
	if v := os.Getenv("ECHO_PERSONALITY"); v != "" {
		c.Chat.Personality = v
	}
	if v := os.Getenv("ECHO_OFFLINE"); v != "" {
		c.Chat.OfflineMode = parseBool(v)
	}
	if v := os.Getenv("ECHO_DEVICE_STORE"); v != "" {
		c.Storage.DeviceBackend = v
	}
	if v := os.Getenv("ECHO_DEVICE_PATH"); v != "" {
		c.Storage.DevicePath = v
	}
	if v := os.Getenv("ECHO_REMOTE_DRIVER"); v != "" {
		c.Storage.RemoteDriver = v
	}
	if v := os.Getenv("ECHO_REMOTE_DSN"); v != "" {
		c.Storage.RemoteDSN = v
	}
	if v := os.Getenv("ECHO_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ECHO_VOICE_COMMAND"); v != "" {
		c.Voice.Command = v
	}
	if v := os.Getenv("ECHO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ECHO_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

func parseBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("invalid URL '%s', must be an absolute http(s) URL", c.API.BaseURL),
		})
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "api.requests_per_minute", Message: "must not be negative"})
	}
	if _, err := model.ParsePersonality(c.Chat.Personality); err != nil {
		errs = append(errs, ValidationError{Field: "chat.personality", Message: err.Error()})
	}
	switch c.Storage.DeviceBackend {
	case "file", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.device_backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite", c.Storage.DeviceBackend),
		})
	}
	switch c.Storage.RemoteDriver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.remote_driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: postgres, sqlite", c.Storage.RemoteDriver),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# echo configuration file\n")
	sb.WriteString("# Generated by echo - edit with care\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String renders the configuration as TOML with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Auth.JWTSecret != "" {
		masked.Auth.JWTSecret = "********"
	}
	if masked.Storage.RemoteDSN != "" {
		masked.Storage.RemoteDSN = maskDSN(masked.Storage.RemoteDSN)
	}
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(masked); err != nil {
		return err.Error()
	}
	return sb.String()
}

// maskDSN hides the password of a URL-style or key=value DSN.
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "********")
			return u.String()
		}
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=********"
		}
	}
	return strings.Join(fields, " ")
}
