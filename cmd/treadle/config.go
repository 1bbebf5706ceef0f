// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	treadleconfig "github.com/teradata-labs/treadle/pkg/config"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName for keyring storage
	ServiceName = "treadle"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "treadle"
)

// Config holds all configuration for the Treadle CLI.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// DataDir is the Treadle data directory, resolved from the
	// TREADLE_DATA_DIR environment variable or ~/.treadle. It is set
	// during initialization and never loaded from the config file.
	DataDir string `mapstructure:"-"`

	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Memory retention configuration
	Memory MemoryConfig `mapstructure:"memory"`

	// Recall pipeline configuration
	Recall RecallConfig `mapstructure:"recall"`

	// Agent loop configuration
	Agent AgentConfig `mapstructure:"agent"`

	// Tools configuration
	Tools ToolsConfig `mapstructure:"tools"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // anthropic, bedrock, ollama

	// Model overrides the active provider's model when non-empty.
	Model string `mapstructure:"model"`

	// Anthropic-specific
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"` // From CLI/env/keyring only
	AnthropicModel  string `mapstructure:"anthropic_model"`

	// Bedrock-specific
	BedrockRegion          string `mapstructure:"bedrock_region"`
	BedrockAccessKeyID     string `mapstructure:"bedrock_access_key_id"`     // From CLI/env/keyring only
	BedrockSecretAccessKey string `mapstructure:"bedrock_secret_access_key"` // From CLI/env/keyring only
	BedrockSessionToken    string `mapstructure:"bedrock_session_token"`     // From CLI/env/keyring only
	BedrockProfile         string `mapstructure:"bedrock_profile"`
	BedrockModelID         string `mapstructure:"bedrock_model_id"`

	// Ollama-specific
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
	OllamaModel    string `mapstructure:"ollama_model"`

	// Common generation parameters
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout_seconds"`
	RateLimit   bool    `mapstructure:"rate_limit"`
}

// DatabaseConfig holds session database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`

	// Encrypt enables SQLCipher encryption at rest (cgo builds only).
	// The key comes from the keyring (db_encryption_key) or TREADLE_DB_KEY.
	Encrypt       bool   `mapstructure:"encrypt"`
	EncryptionKey string `mapstructure:"-"` // From env/keyring only, never the config file
}

// MemoryConfig holds retention configuration for the session store.
type MemoryConfig struct {
	Retention RetentionConfig `mapstructure:"retention"`
}

// RetentionConfig controls when idle sessions are purged.
type RetentionConfig struct {
	// MaxIdleDays is how long a session may stay idle before
	// `sessions purge` or `sessions sweep` removes it.
	MaxIdleDays int `mapstructure:"max_idle_days"`

	// Schedule is the 5-field cron expression `sessions sweep` runs on.
	Schedule string `mapstructure:"schedule"`
}

// RecallConfig bounds the recall pipeline.
type RecallConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxSessions        int  `mapstructure:"max_sessions"`
	EvidenceTokens     int  `mapstructure:"evidence_token_budget"`
	TimeBudgetSeconds  int  `mapstructure:"time_budget_seconds"`
	RecursionDepth     int  `mapstructure:"recursion_depth"`
	MaxTurnsPerSession int  `mapstructure:"max_turns_per_session"`
}

// AgentConfig selects the loop budget profile.
type AgentConfig struct {
	Profile string `mapstructure:"profile"`
}

// ToolsConfig holds builtin tool configuration.
type ToolsConfig struct {
	Shell ShellConfig `mapstructure:"shell"`
}

// ShellConfig restricts the shell_execute tool.
type ShellConfig struct {
	// AllowedCommands whitelists program names the shell tool may run.
	// Empty allows everything.
	AllowedCommands []string `mapstructure:"allowed_commands"`

	// Sandbox overrides the working directory commands run in. Empty
	// uses TREADLE_SANDBOX_DIR / the data directory.
	Sandbox string `mapstructure:"sandbox"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// LoadConfig loads configuration with the following priority:
// 1. CLI flags (highest priority)
// 2. Config file
// 3. Environment variables (TREADLE_*)
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config search paths (in order of priority)
		viper.AddConfigPath(treadleconfig.GetTreadleDataDir())
		viper.AddConfigPath(".")
		viper.SetConfigName(DefaultConfigFileName) // treadle.yaml
		viper.SetConfigType("yaml")
	}

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	// Bind environment variables: llm.provider <- TREADLE_LLM_PROVIDER
	viper.SetEnvPrefix("TREADLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DataDir is not loaded from the config file; it locates the config
	// file in the first place.
	config.DataDir = treadleconfig.GetTreadleDataDir()

	// Load secrets from keyring if not provided via CLI/env.
	// Non-fatal: the keyring may be unavailable on headless hosts.
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// LLM defaults
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.anthropic_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("llm.bedrock_region", "us-west-2")
	viper.SetDefault("llm.bedrock_model_id", "us.anthropic.claude-sonnet-4-5-20250929-v1:0")
	viper.SetDefault("llm.ollama_endpoint", "http://localhost:11434")
	viper.SetDefault("llm.ollama_model", "llama3.1:8b")
	viper.SetDefault("llm.temperature", 1.0)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout_seconds", 60)
	viper.SetDefault("llm.rate_limit", true)

	// Database defaults (use treadle data directory)
	defaultDBPath := filepath.Join(treadleconfig.GetTreadleDataDir(), "treadle.db")
	viper.SetDefault("database.path", defaultDBPath)
	viper.SetDefault("database.encrypt", false)

	// Retention defaults
	viper.SetDefault("memory.retention.max_idle_days", 30)
	viper.SetDefault("memory.retention.schedule", "0 3 * * *")

	// Recall defaults mirror the pipeline's own; zero fields would take
	// them anyway, but explicit defaults make `config show` honest.
	viper.SetDefault("recall.enabled", true)
	viper.SetDefault("recall.max_sessions", 3)
	viper.SetDefault("recall.evidence_token_budget", 2000)
	viper.SetDefault("recall.time_budget_seconds", 20)
	viper.SetDefault("recall.recursion_depth", 3)
	viper.SetDefault("recall.max_turns_per_session", 200)

	// Agent defaults
	viper.SetDefault("agent.profile", "balanced")

	// Tool defaults
	viper.SetDefault("tools.shell.allowed_commands", []string{})
	viper.SetDefault("tools.shell.sandbox", "")

	// Logging defaults
	viper.SetDefault("logging.level", "warn")
	viper.SetDefault("logging.format", "text")
}

// SecretMapping defines how to load a secret from keyring into the config.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	IsSet      func(*Config) bool // Returns true if the value is already set (skip keyring lookup)
}

// GetSecretMappings returns all secret mappings for the application.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "anthropic_api_key",
			Setter:     func(c *Config, val string) { c.LLM.AnthropicAPIKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.AnthropicAPIKey != "" },
		},
		{
			KeyringKey: "bedrock_access_key_id",
			Setter:     func(c *Config, val string) { c.LLM.BedrockAccessKeyID = val },
			IsSet:      func(c *Config) bool { return c.LLM.BedrockAccessKeyID != "" },
		},
		{
			KeyringKey: "bedrock_secret_access_key",
			Setter:     func(c *Config, val string) { c.LLM.BedrockSecretAccessKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.BedrockSecretAccessKey != "" },
		},
		{
			KeyringKey: "bedrock_session_token",
			Setter:     func(c *Config, val string) { c.LLM.BedrockSessionToken = val },
			IsSet:      func(c *Config) bool { return c.LLM.BedrockSessionToken != "" },
		},
		{
			KeyringKey: "db_encryption_key",
			Setter:     func(c *Config, val string) { c.Database.EncryptionKey = val },
			IsSet:      func(c *Config) bool { return c.Database.EncryptionKey != "" },
		},
	}
}

// loadSecretsFromKeyring loads API keys from the system keyring using the
// secret mappings. Values already set via CLI/env/config win.
func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(config) {
			continue
		}
		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
		// Non-fatal: if the keyring doesn't have the key, just continue
	}
	return nil
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// ListAvailableSecretKeys returns all known secret keys that can be stored
// in the keyring.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, 0, len(mappings))
	for _, m := range mappings {
		keys = append(keys, m.KeyringKey)
	}
	return keys
}

// maskSecret masks a secret for display.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
