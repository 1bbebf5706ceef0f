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

// Package tokencount provides token counting for LLM context management.
//
// Counts are produced with tiktoken's cl100k_base encoding, which is a close
// approximation for Claude-family models. When the encoding tables cannot be
// loaded the counter degrades to a chars/4 estimate rather than failing.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter provides token counting backed by a tiktoken encoder.
type Counter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalCounter *Counter
	initOnce      sync.Once
)

// GetCounter returns a singleton counter instance.
func GetCounter() *Counter {
	initOnce.Do(func() {
		// cl100k_base is a good approximation for Claude models
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// Fallback: approximate counting if tiktoken fails
			globalCounter = &Counter{encoder: nil}
			return
		}
		globalCounter = &Counter{encoder: tkm}
	})
	return globalCounter
}

// CountTokens returns the token count for a given text.
func (c *Counter) CountTokens(text string) int {
	if c.encoder == nil {
		// Fallback to char-based estimation if encoder not available
		return len(text) / 4
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tokens := c.encoder.Encode(text, nil, nil)
	return len(tokens)
}

// CountMultiple counts tokens across multiple text segments.
func (c *Counter) CountMultiple(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += c.CountTokens(text)
	}
	return total
}

// Budget represents a token budget with usage tracking.
type Budget struct {
	MaxTokens      int
	UsedTokens     int
	ReservedTokens int // Reserved for output
	mu             sync.RWMutex
}

// NewBudget creates a new token budget.
// For Claude Sonnet 4.5: 200K total, reserve 20K for output = 180K available for input.
func NewBudget(maxTokens, reservedForOutput int) *Budget {
	return &Budget{
		MaxTokens:      maxTokens,
		ReservedTokens: reservedForOutput,
		UsedTokens:     0,
	}
}

// AvailableTokens returns the number of tokens available for new content.
func (b *Budget) AvailableTokens() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.MaxTokens - b.ReservedTokens - b.UsedTokens
}

// CanFit checks if a given number of tokens can fit in the budget.
func (b *Budget) CanFit(tokens int) bool {
	return b.AvailableTokens() >= tokens
}

// Use marks tokens as used. Returns false if budget exceeded.
func (b *Budget) Use(tokens int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tokens > (b.MaxTokens - b.ReservedTokens - b.UsedTokens) {
		return false
	}

	b.UsedTokens += tokens
	return true
}

// Free returns tokens to the budget.
func (b *Budget) Free(tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.UsedTokens -= tokens
	if b.UsedTokens < 0 {
		b.UsedTokens = 0
	}
}

// Reset resets the used token count.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UsedTokens = 0
}

// GetUsage returns current usage statistics.
func (b *Budget) GetUsage() (used, available, total int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.UsedTokens, b.MaxTokens - b.ReservedTokens - b.UsedTokens, b.MaxTokens
}

// UsagePercentage returns the percentage of budget used.
func (b *Budget) UsagePercentage() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	maxAvailable := b.MaxTokens - b.ReservedTokens
	if maxAvailable == 0 {
		return 0
	}
	return float64(b.UsedTokens) / float64(maxAvailable) * 100
}

// IsNearLimit checks if usage is approaching budget limits.
// Returns true if usage is above the given percentage threshold.
func (b *Budget) IsNearLimit(thresholdPct float64) bool {
	return b.UsagePercentage() >= thresholdPct
}

// IsCritical checks if usage is at critical levels (>85%).
func (b *Budget) IsCritical() bool {
	return b.IsNearLimit(85.0)
}

// NeedsWarning checks if usage warrants a warning (>70%).
func (b *Budget) NeedsWarning() bool {
	return b.IsNearLimit(70.0)
}
