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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/treadle/pkg/recall"
)

func TestBuildProvider_Unknown(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "gpt9"

	_, err := buildProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
	assert.Contains(t, err.Error(), "gpt9")
}

func TestBuildProvider_AnthropicMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := &Config{}
	cfg.LLM.Provider = "anthropic"

	_, err := buildProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestBuildProvider_Anthropic(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.AnthropicAPIKey = "sk-ant-test"
	cfg.LLM.AnthropicModel = "claude-sonnet-4-5-20250929"
	cfg.LLM.MaxTokens = 4096

	provider, err := buildProvider(cfg)
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "anthropic", provider.Name())
}

func TestBuildProvider_Ollama(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "ollama"
	cfg.LLM.OllamaEndpoint = "http://localhost:11434"
	cfg.LLM.OllamaModel = "llama3.1:8b"

	provider, err := buildProvider(cfg)
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "ollama", provider.Name())
}

func TestBuildProvider_CaseInsensitive(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "Ollama"
	cfg.LLM.OllamaModel = "llama3.1:8b"

	_, err := buildProvider(cfg)
	assert.NoError(t, err)
}

func TestBuildProvider_ModelOverride(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "ollama"
	cfg.LLM.OllamaModel = "llama3.1:8b"
	cfg.LLM.Model = "mistral"

	provider, err := buildProvider(cfg)
	require.NoError(t, err)
	// The generic override wins over the per-provider model.
	assert.Contains(t, provider.Model(), "mistral")
}

func TestRecallLimits_Defaults(t *testing.T) {
	cfg := &Config{}

	limits := recallLimits(cfg)
	def := recall.DefaultLimits()
	assert.Equal(t, def.MaxMatchedSessions, limits.MaxMatchedSessions)
	assert.Equal(t, def.EvidenceTokenBudget, limits.EvidenceTokenBudget)
	assert.Equal(t, def.TotalRecallBudget, limits.TotalRecallBudget)
}

func TestRecallLimits_Overrides(t *testing.T) {
	cfg := &Config{}
	cfg.Recall.MaxSessions = 5
	cfg.Recall.EvidenceTokens = 4000
	cfg.Recall.TimeBudgetSeconds = 45
	cfg.Recall.RecursionDepth = 2

	limits := recallLimits(cfg)
	assert.Equal(t, 5, limits.MaxMatchedSessions)
	assert.Equal(t, 4000, limits.EvidenceTokenBudget)
	assert.Equal(t, 45*time.Second, limits.TotalRecallBudget)
	assert.Equal(t, 2, limits.RecursionDepth)

	// Untouched knobs keep their defaults.
	assert.Equal(t, recall.DefaultLimits().MaxTurnsPerSession, limits.MaxTurnsPerSession)
}

func TestResolveLoop_Builtin(t *testing.T) {
	t.Setenv("TREADLE_DATA_DIR", t.TempDir())

	loop, err := resolveLoop("strict")
	require.NoError(t, err)
	assert.Equal(t, 6, loop.BaseStepLimit)
	assert.Equal(t, 16, loop.MaxStepLimit)
}

func TestResolveLoop_Unknown(t *testing.T) {
	t.Setenv("TREADLE_DATA_DIR", t.TempDir())

	_, err := resolveLoop("turbo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown profile")
	assert.Contains(t, err.Error(), "balanced")
}

func TestNewSessionID(t *testing.T) {
	id := newSessionID()
	assert.True(t, strings.HasPrefix(id, "sess_"))
	assert.Len(t, id, len("sess_")+8)
	assert.NotEqual(t, id, newSessionID())
}

func TestSandboxDir(t *testing.T) {
	t.Run("config override wins", func(t *testing.T) {
		cfg := &Config{}
		cfg.Tools.Shell.Sandbox = "/project/workspace"
		assert.Equal(t, "/project/workspace", sandboxDir(cfg))
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("TREADLE_SANDBOX_DIR", "/tmp/sandbox")
		assert.Equal(t, "/tmp/sandbox", sandboxDir(&Config{}))
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "this is...", truncate("this is too long", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{"zero time", time.Time{}, "never"},
		{"seconds", now.Add(-30 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5 minutes ago"},
		{"hours", now.Add(-3 * time.Hour), "3 hours ago"},
		{"days", now.Add(-2 * 24 * time.Hour), "2 days ago"},
		{"weeks", now.Add(-15 * 24 * time.Hour), "2 weeks ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeAgo(tt.t))
		})
	}
}
