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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/treadle/internal/log"
	"github.com/teradata-labs/treadle/pkg/agent"
	treadleconfig "github.com/teradata-labs/treadle/pkg/config"
	"github.com/teradata-labs/treadle/pkg/llm"
	"github.com/teradata-labs/treadle/pkg/llm/anthropic"
	"github.com/teradata-labs/treadle/pkg/llm/bedrock"
	"github.com/teradata-labs/treadle/pkg/llm/ollama"
	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/recall"
)

// buildProvider constructs the LLM provider selected by config.
func buildProvider(cfg *Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "anthropic":
		apiKey := cfg.LLM.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not set (use --api-key, ANTHROPIC_API_KEY, or `treadle config set-key anthropic_api_key`)")
		}
		model := cfg.LLM.AnthropicModel
		if cfg.LLM.Model != "" {
			model = cfg.LLM.Model
		}
		rl := anthropic.DefaultAnthropicRateLimiterConfig()
		rl.Enabled = cfg.LLM.RateLimit
		return anthropic.NewClient(anthropic.Config{
			APIKey:            apiKey,
			Model:             model,
			Timeout:           time.Duration(cfg.LLM.Timeout) * time.Second,
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
			RateLimiterConfig: rl,
		}), nil

	case "bedrock":
		modelID := cfg.LLM.BedrockModelID
		if cfg.LLM.Model != "" {
			modelID = cfg.LLM.Model
		}
		rl := llm.DefaultRateLimiterConfig()
		rl.Enabled = cfg.LLM.RateLimit
		return bedrock.NewClient(bedrock.Config{
			ModelID:           modelID,
			Region:            cfg.LLM.BedrockRegion,
			AccessKeyID:       cfg.LLM.BedrockAccessKeyID,
			SecretAccessKey:   cfg.LLM.BedrockSecretAccessKey,
			SessionToken:      cfg.LLM.BedrockSessionToken,
			Profile:           cfg.LLM.BedrockProfile,
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
			RateLimiterConfig: rl,
		})

	case "ollama":
		model := cfg.LLM.OllamaModel
		if cfg.LLM.Model != "" {
			model = cfg.LLM.Model
		}
		// Local inference: no rate limiting.
		return ollama.NewClient(ollama.Config{
			Endpoint:    cfg.LLM.OllamaEndpoint,
			Model:       model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.Timeout) * time.Second,
		}), nil

	default:
		return nil, fmt.Errorf("unknown provider %q (supported: anthropic, bedrock, ollama)", cfg.LLM.Provider)
	}
}

// openStore opens the session database, creating its directory if needed.
func openStore(cfg *Config) (*memory.Store, error) {
	dbPath := cfg.Database.Path
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := memory.NewStoreWithConfig(memory.Config{
		DB: memory.DBConfig{
			Path:            dbPath,
			EncryptDatabase: cfg.Database.Encrypt,
			EncryptionKey:   cfg.Database.EncryptionKey,
		},
		Logger: log.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", dbPath, err)
	}
	return store, nil
}

// resolveLoop loads loop budgets for the configured profile. Profiles come
// from the builtin presets plus any YAML files in <data-dir>/profiles.
func resolveLoop(name string) (agent.AgentLoopConfig, error) {
	registry, err := openProfiles()
	if err != nil {
		return agent.AgentLoopConfig{}, fmt.Errorf("failed to load profiles: %w", err)
	}
	defer registry.Close()

	loop, ok := registry.Get(name)
	if !ok {
		return agent.AgentLoopConfig{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(registry.List(), ", "))
	}
	return loop, nil
}

// recallLimits maps config overrides onto the pipeline defaults.
func recallLimits(cfg *Config) recall.Limits {
	limits := recall.DefaultLimits()
	if cfg.Recall.MaxSessions > 0 {
		limits.MaxMatchedSessions = cfg.Recall.MaxSessions
	}
	if cfg.Recall.EvidenceTokens > 0 {
		limits.EvidenceTokenBudget = cfg.Recall.EvidenceTokens
	}
	if cfg.Recall.TimeBudgetSeconds > 0 {
		limits.TotalRecallBudget = time.Duration(cfg.Recall.TimeBudgetSeconds) * time.Second
	}
	if cfg.Recall.RecursionDepth > 0 {
		limits.RecursionDepth = cfg.Recall.RecursionDepth
	}
	if cfg.Recall.MaxTurnsPerSession > 0 {
		limits.MaxTurnsPerSession = cfg.Recall.MaxTurnsPerSession
	}
	return limits
}

// buildRecall constructs the recall service over an open store.
func buildRecall(store *memory.Store, provider llm.Provider, cfg *Config, disabled bool) (*recall.Service, error) {
	return recall.NewService(recall.Config{
		Memory:   store,
		Provider: provider,
		Limits:   recallLimits(cfg),
		Logger:   log.Logger(),
		Disabled: disabled || !cfg.Recall.Enabled,
	})
}

// newSessionID mints a fresh short session identifier.
func newSessionID() string {
	return fmt.Sprintf("sess_%s", uuid.New().String()[:8])
}

// sandboxDir resolves the working directory for file and shell tools.
func sandboxDir(cfg *Config) string {
	if cfg.Tools.Shell.Sandbox != "" {
		return cfg.Tools.Shell.Sandbox
	}
	return treadleconfig.GetTreadleSandboxDir()
}
