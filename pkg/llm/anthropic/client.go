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

// Package anthropic implements the llm.Provider interface on top of the
// official Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/teradata-labs/treadle/pkg/llm"
	"github.com/teradata-labs/treadle/pkg/tool"
)

const (
	// DefaultModel is the default Claude model
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultMaxTokens is the default maximum tokens per request
	DefaultMaxTokens = 4096
	// DefaultTemperature is the default LLM temperature
	DefaultTemperature = 1.0
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 60 * time.Second
)

// Global singleton rate limiter shared across all Anthropic clients
var (
	globalRateLimiter     *llm.RateLimiter
	globalRateLimiterOnce sync.Once
)

// DefaultAnthropicRateLimiterConfig returns safe defaults for Anthropic's API.
//
// Anthropic rate limits by tier (as of 2026):
//   - Free / Tier 1: 50 RPM, 30K–100K ITPM
//   - Tier 2:        1000 RPM, 2M ITPM
//   - Tier 3+:       5000+ RPM
//
// These defaults target Tier 1 (the most common). Users on higher tiers should
// increase requests_per_second and tokens_per_minute in treadle.yaml.
func DefaultAnthropicRateLimiterConfig() llm.RateLimiterConfig {
	return llm.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 0.7,                    // ~42 RPM — safely under Tier 1 50 RPM limit
		TokensPerMinute:   80000,                  // 80% of Tier 1 100K ITPM (30K on free)
		BurstCapacity:     3,                      // Conservative burst for multi-agent sessions
		MinDelay:          800 * time.Millisecond, // ~1.25 RPS ceiling; prevents burst overshoots
		MaxRetries:        5,
		RetryBackoff:      2 * time.Second, // Longer initial backoff for Anthropic 429s
		QueueTimeout:      5 * time.Minute,
	}
}

// Client implements the llm.Provider interface for Anthropic's Claude API.
type Client struct {
	client      anthropicsdk.Client
	model       string
	maxTokens   int64
	temperature float64
	rateLimiter *llm.RateLimiter
	toolNameMap map[string]string // sanitized name → original name
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey            string
	Model             string // Default: claude-sonnet-4-5-20250929
	BaseURL           string // Override the API base URL (for proxies)
	Timeout           time.Duration
	MaxTokens         int     // Default: 4096
	Temperature       float64 // Default: 1.0
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		// Check environment variable first, then use default
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	// Initialize rate limiter if enabled
	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = getOrCreateGlobalRateLimiter(config.RateLimiterConfig)
	}

	return &Client{
		client:      anthropicsdk.NewClient(opts...),
		model:       config.Model,
		maxTokens:   int64(config.MaxTokens),
		temperature: config.Temperature,
		rateLimiter: rateLimiter,
		toolNameMap: make(map[string]string),
	}
}

// getOrCreateGlobalRateLimiter returns the global rate limiter, creating it if necessary.
// Caller-supplied non-zero fields override DefaultAnthropicRateLimiterConfig values.
func getOrCreateGlobalRateLimiter(config llm.RateLimiterConfig) *llm.RateLimiter {
	globalRateLimiterOnce.Do(func() {
		// Start from Anthropic-specific defaults, then apply caller overrides.
		// The generic defaults are tuned for Bedrock and allow 2 RPS, which
		// exceeds Anthropic Tier 1.
		merged := DefaultAnthropicRateLimiterConfig()
		merged.Enabled = config.Enabled
		if config.Logger != nil {
			merged.Logger = config.Logger
		}
		if config.RequestsPerSecond > 0 {
			merged.RequestsPerSecond = config.RequestsPerSecond
		}
		if config.TokensPerMinute > 0 {
			merged.TokensPerMinute = config.TokensPerMinute
		}
		if config.BurstCapacity > 0 {
			merged.BurstCapacity = config.BurstCapacity
		}
		if config.MinDelay > 0 {
			merged.MinDelay = config.MinDelay
		}
		if config.MaxRetries > 0 {
			merged.MaxRetries = config.MaxRetries
		}
		if config.RetryBackoff > 0 {
			merged.RetryBackoff = config.RetryBackoff
		}
		if config.QueueTimeout > 0 {
			merged.QueueTimeout = config.QueueTimeout
		}
		globalRateLimiter = llm.NewRateLimiter(merged)
	})
	return globalRateLimiter
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// SupportsTools reports native tool calling support. All Claude models served
// through the Messages API support tools.
func (c *Client) SupportsTools() bool {
	return true
}

// Chat sends a conversation to Claude and returns the model's turn.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Turn, error) {
	// Convert messages to Anthropic SDK format
	systemPrompt, sdkMessages := c.convertMessagesToSDK(messages)

	// Validate that we have at least one message
	if len(sdkMessages) == 0 {
		return nil, fmt.Errorf("no valid messages to send (messages may be empty)")
	}

	// Build message params
	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.model),
		Messages:    sdkMessages,
		MaxTokens:   c.maxTokens,
		Temperature: anthropicsdk.Float(c.temperature),
	}

	// Add system prompt if present
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	// Add tools if provided
	if len(tools) > 0 {
		sdkTools := c.convertToolsToSDK(tools)
		toolUnions := make([]anthropicsdk.ToolUnionParam, len(sdkTools))
		for i := range sdkTools {
			toolUnions[i] = anthropicsdk.ToolUnionParam{
				OfTool: &sdkTools[i],
			}
		}
		params.Tools = toolUnions
	}

	// Call API with rate limiting if configured
	var message *anthropicsdk.Message
	var err error

	if c.rateLimiter != nil {
		result, rlErr := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.client.Messages.New(ctx, params)
		})
		if rlErr != nil {
			return nil, fmt.Errorf("anthropic invocation failed: %w", rlErr)
		}
		message = result.(*anthropicsdk.Message)
	} else {
		message, err = c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic invocation failed: %w", err)
		}
	}

	turn := c.convertTurnFromSDK(message)

	// Record token usage for rate limiter metrics
	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(message.Usage.InputTokens + message.Usage.OutputTokens))
	}

	return turn, nil
}

// convertMessagesToSDK converts conversation messages to Anthropic SDK format.
// Returns the system prompt and the API messages. System messages are
// extracted and combined, as the Messages API requires them in a separate
// "system" field, not in the messages array.
func (c *Client) convertMessagesToSDK(messages []llm.Message) (string, []anthropicsdk.MessageParam) {
	var systemPrompts []string
	var sdkMessages []anthropicsdk.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				systemPrompts = append(systemPrompts, msg.Content)
			}

		case llm.RoleUser:
			if msg.Content != "" {
				sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(
					anthropicsdk.NewTextBlock(msg.Content),
				))
			}

		case llm.RoleAssistant:
			var content []anthropicsdk.ContentBlockParamUnion

			// Add text content if present
			if msg.Content != "" {
				content = append(content, anthropicsdk.NewTextBlock(msg.Content))
			}

			// Add tool calls
			for _, tc := range msg.ToolCalls {
				// Ensure input is never null
				var input interface{}
				if tc.Input != nil {
					input = tc.Input
				} else {
					input = map[string]interface{}{}
				}
				content = append(content, anthropicsdk.NewToolUseBlock(
					tc.ID, input, llm.SanitizeToolName(tc.Name)))
			}

			if len(content) > 0 {
				sdkMessages = append(sdkMessages, anthropicsdk.NewAssistantMessage(content...))
			}

		case llm.RoleTool:
			sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(msg.ToolUseID, msg.Content, false),
			))
		}
	}

	return strings.Join(systemPrompts, "\n\n"), sdkMessages
}

// convertToolsToSDK converts tools to Anthropic SDK format with name sanitization.
func (c *Client) convertToolsToSDK(tools []tool.Tool) []anthropicsdk.ToolParam {
	var sdkTools []anthropicsdk.ToolParam

	// Clear previous mapping
	c.toolNameMap = make(map[string]string)

	for _, t := range tools {
		originalName := t.Name()
		sanitizedName := llm.SanitizeToolName(originalName)
		c.toolNameMap[sanitizedName] = originalName

		sdkTool := anthropicsdk.ToolParam{
			Name:        sanitizedName,
			Description: anthropicsdk.String(t.Description()),
		}

		schema := tool.NormalizeSchema(t.InputSchema())
		if schema != nil {
			// Marshal and unmarshal to get proper anthropic.ToolInputSchemaParam
			schemaMap := map[string]interface{}{
				"type":       schema.Type,
				"properties": schema.Properties,
				"required":   schema.Required,
			}
			schemaJSON, _ := json.Marshal(schemaMap)
			var inputSchema anthropicsdk.ToolInputSchemaParam
			_ = json.Unmarshal(schemaJSON, &inputSchema)
			sdkTool.InputSchema = inputSchema
		}

		sdkTools = append(sdkTools, sdkTool)
	}

	return sdkTools
}

// convertTurnFromSDK converts an Anthropic SDK response to a model turn.
func (c *Client) convertTurnFromSDK(message *anthropicsdk.Message) *llm.Turn {
	var content string
	var toolCalls []llm.ToolCall

	// Extract content and tool calls based on block type
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			// Parse tool input from JSON
			var input map[string]interface{}
			if block.Input != nil {
				_ = json.Unmarshal(block.Input, &input)
			}
			if input == nil {
				input = map[string]interface{}{}
			}

			toolCalls = append(toolCalls, llm.ToolCall{
				ID:    block.ID,
				Name:  llm.ReverseToolName(c.toolNameMap, block.Name),
				Input: input,
			})
		}
	}

	turn := llm.NewTurn(content, toolCalls, string(message.StopReason), llm.Usage{
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		CostUSD:      c.calculateCost(int(message.Usage.InputTokens), int(message.Usage.OutputTokens)),
	})
	turn.Metadata = map[string]interface{}{
		"model":       c.model,
		"stop_reason": message.StopReason,
		"message_id":  message.ID,
	}
	return turn
}

// calculateCost estimates cost for Claude models.
func (c *Client) calculateCost(inputTokens, outputTokens int) float64 {
	var inputPricePerMillion, outputPricePerMillion float64

	switch {
	case strings.Contains(c.model, "claude-sonnet-4"):
		inputPricePerMillion = 3.0
		outputPricePerMillion = 15.0
	case strings.Contains(c.model, "claude-haiku-4"):
		inputPricePerMillion = 0.8
		outputPricePerMillion = 4.0
	case strings.Contains(c.model, "claude-opus-4"):
		inputPricePerMillion = 15.0
		outputPricePerMillion = 75.0
	default:
		inputPricePerMillion = 3.0
		outputPricePerMillion = 15.0
	}

	inputCost := float64(inputTokens) * inputPricePerMillion / 1_000_000
	outputCost := float64(outputTokens) * outputPricePerMillion / 1_000_000
	return inputCost + outputCost
}

// Ensure Client implements Provider interface.
var _ llm.Provider = (*Client)(nil)
