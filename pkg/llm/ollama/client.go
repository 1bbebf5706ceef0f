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

// Package ollama implements the llm.Provider interface for local Ollama
// servers. The agent loop depends on native tool calling, so only models in
// the supported table (or an explicit native override) report tool support.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teradata-labs/treadle/internal/log"
	"github.com/teradata-labs/treadle/pkg/llm"
	"github.com/teradata-labs/treadle/pkg/tool"
	"go.uber.org/zap"
)

// Global singleton rate limiter shared across all Ollama clients
var (
	globalRateLimiter     *llm.RateLimiter
	globalRateLimiterOnce sync.Once
)

// Client implements the llm.Provider interface for Ollama.
type Client struct {
	endpoint    string
	model       string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
	toolMode    ToolMode
	rateLimiter *llm.RateLimiter
}

// Models known to support native tool calling (Ollama v0.12.3+)
var toolSupportedModels = map[string]bool{
	"llama3.3":      true,
	"llama3.2":      true,
	"llama3.1":      true,
	"qwen2.5":       true,
	"qwen2.5-coder": true,
	"mistral":       true,
	"mixtral":       true,
	"deepseek-r1":   true,
	"functionary":   true,
}

// ToolMode defines how tool support is determined.
type ToolMode string

const (
	// ToolModeAuto automatically detects if the model supports native tool calling
	ToolModeAuto ToolMode = "auto"
	// ToolModeNative forces Ollama's native tool calling API (requires Ollama v0.12.3+)
	ToolModeNative ToolMode = "native"
	// ToolModeNone disables tool calling entirely
	ToolModeNone ToolMode = "none"
)

// Config holds configuration for the Ollama client.
type Config struct {
	Endpoint          string        // Default: http://localhost:11434
	Model             string        // Required: e.g., llama3.1, mistral, qwen2.5-coder
	MaxTokens         int           // Default: model-aware (4096 for 7B/8B, 6144 for 13B-32B, 8192 for 70B+)
	Temperature       float64       // Default: 0.8
	Timeout           time.Duration // Default: 120s
	ToolMode          ToolMode      // Default: auto (detect native support)
	RateLimiterConfig llm.RateLimiterConfig
}

// getDefaultMaxTokens returns max_tokens based on model name.
// Smaller models (7B-8B) benefit from shorter outputs, while larger models can handle more.
func getDefaultMaxTokens(model string) int {
	modelLower := strings.ToLower(model)

	// Large models (70B+ parameters) - full capacity
	if strings.Contains(modelLower, "70b") || strings.Contains(modelLower, "72b") ||
		strings.Contains(modelLower, "405b") {
		return 8192
	}

	// Medium models (13B-32B parameters) - balanced outputs
	if strings.Contains(modelLower, "13b") || strings.Contains(modelLower, "14b") ||
		strings.Contains(modelLower, "20b") || strings.Contains(modelLower, "32b") {
		return 6144
	}

	// Small models (7B-8B parameters) or unknown - conservative default
	return 4096
}

// NewClient creates a new Ollama client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = getDefaultMaxTokens(cfg.Model)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ToolMode == "" {
		cfg.ToolMode = ToolModeAuto
	}

	// Initialize rate limiter if enabled
	var rateLimiter *llm.RateLimiter
	if cfg.RateLimiterConfig.Enabled {
		rateLimiter = getOrCreateGlobalRateLimiter(cfg.RateLimiterConfig)
	}

	return &Client{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		toolMode:    cfg.ToolMode,
		rateLimiter: rateLimiter,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// getOrCreateGlobalRateLimiter returns the global rate limiter, creating it if necessary.
func getOrCreateGlobalRateLimiter(config llm.RateLimiterConfig) *llm.RateLimiter {
	globalRateLimiterOnce.Do(func() {
		globalRateLimiter = llm.NewRateLimiter(config)
	})
	return globalRateLimiter
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// SupportsTools reports whether the configured model can emit native tool
// calls. Prompt-engineered tool simulation is not supported: the agent loop
// requires structured tool_calls turns.
func (c *Client) SupportsTools() bool {
	if c.toolMode == ToolModeNative {
		return true
	}
	if c.toolMode == ToolModeNone {
		return false
	}

	// Auto mode: check model compatibility.
	// Match on base model name (ignore version/variant suffixes like :8b).
	for baseModel := range toolSupportedModels {
		if strings.HasPrefix(c.model, baseModel) {
			return true
		}
	}
	return false
}

// Chat sends a conversation to Ollama and returns the model's turn.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Turn, error) {
	// Convert messages to Ollama format
	apiMessages := c.convertMessages(messages)

	// Build request
	req := chatRequest{
		Model:    c.model,
		Messages: apiMessages,
		Stream:   false,
		Options: map[string]interface{}{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}

	// Add tools if native support is available
	if c.SupportsTools() && len(tools) > 0 {
		req.Tools = c.convertTools(tools)
	}

	// Call API
	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ollama API call failed: %w", err)
	}

	// Convert response
	return c.convertTurn(resp), nil
}

// convertTools converts tools to Ollama tool format.
func (c *Client) convertTools(tools []tool.Tool) []ollamaTool {
	ollamaTools := make([]ollamaTool, len(tools))
	for i, t := range tools {
		ollamaTools[i] = ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  tool.NormalizeSchema(t.InputSchema()),
			},
		}
	}
	return ollamaTools
}

// convertMessages converts conversation messages to Ollama format.
func (c *Client) convertMessages(messages []llm.Message) []ollamaMessage {
	var apiMessages []ollamaMessage

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			apiMessages = append(apiMessages, ollamaMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})

		case llm.RoleTool:
			if c.SupportsTools() {
				// Native tool format (Ollama v0.12.3+)
				apiMessages = append(apiMessages, ollamaMessage{
					Role:    "tool",
					Content: msg.Content,
				})
			} else {
				// Fallback: include as user message
				apiMessages = append(apiMessages, ollamaMessage{
					Role:    "user",
					Content: fmt.Sprintf("Tool result: %s", msg.Content),
				})
			}
		}
	}

	return apiMessages
}

// cleanJSONString removes common formatting issues from JSON strings.
func (c *Client) cleanJSONString(s string) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Strip surrounding backticks (common in Ollama responses)
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		s = s[1 : len(s)-1]
	}

	// Strip "json" language marker after opening backticks
	if len(s) >= 4 && strings.HasPrefix(s, "json") {
		if len(s) > 4 && (s[4] == '\n' || s[4] == '\r' || s[4] == ' ' || s[4] == '\t') {
			s = strings.TrimSpace(s[4:])
		}
	}

	return s
}

// convertTurn converts an Ollama response to a model turn.
func (c *Client) convertTurn(resp *chatResponse) *llm.Turn {
	// Parse tool calls if present
	var toolCalls []llm.ToolCall
	if len(resp.Message.ToolCalls) > 0 {
		toolCalls = make([]llm.ToolCall, len(resp.Message.ToolCalls))
		for i, tc := range resp.Message.ToolCalls {
			// Parse function arguments (may be string or map)
			var params map[string]interface{}
			switch args := tc.Function.Arguments.(type) {
			case string:
				// Clean JSON string (strip backticks, trim whitespace)
				cleanedArgs := c.cleanJSONString(args)

				if err := json.Unmarshal([]byte(cleanedArgs), &params); err != nil {
					log.Warn("Failed to parse ollama tool arguments",
						zap.String("tool", tc.Function.Name),
						zap.Error(err),
						zap.String("raw", args),
					)
					params = make(map[string]interface{})
				}
			case map[string]interface{}:
				params = args
			default:
				params = make(map[string]interface{})
			}

			toolCalls[i] = llm.ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: params,
			}
		}
	}

	turn := llm.NewTurn(resp.Message.Content, toolCalls, "stop", llm.Usage{
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
		CostUSD:      0, // Ollama is free (local)
	})
	turn.Metadata = map[string]interface{}{
		"model":         resp.Model,
		"eval_duration": resp.EvalDuration,
		"native_tools":  c.SupportsTools(),
		"tool_mode":     string(c.toolMode),
	}
	return turn
}

// callAPI makes the HTTP request to Ollama.
func (c *Client) callAPI(ctx context.Context, req chatRequest) (*chatResponse, error) {
	// Marshal request
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	// Send request with rate limiting if enabled
	var httpResp *http.Response
	if c.rateLimiter != nil {
		result, rlErr := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.httpClient.Do(httpReq)
		})
		if rlErr != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", rlErr)
		}
		httpResp = result.(*http.Response)
	} else {
		httpResp, err = c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
	}
	defer httpResp.Body.Close()

	// Read response
	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Check status
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	// Parse response
	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// Ollama API types

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []ollamaTool           `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  *tool.JSONSchema `json:"parameters"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"` // Can be string or map
}

type chatResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	TotalDuration   int64         `json:"total_duration"`
	LoadDuration    int64         `json:"load_duration"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	EvalDuration    int64         `json:"eval_duration"`
}

// Ensure Client implements Provider interface.
var _ llm.Provider = (*Client)(nil)
