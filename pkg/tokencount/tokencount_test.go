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
package tokencount

import (
	"strings"
	"sync"
	"testing"
)

func TestCountTokens(t *testing.T) {
	counter := GetCounter()

	if got := counter.CountTokens(""); got != 0 {
		t.Errorf("Empty string should count 0 tokens, got %d", got)
	}

	short := counter.CountTokens("hello world")
	if short <= 0 {
		t.Errorf("Expected positive token count for short text, got %d", short)
	}

	long := counter.CountTokens(strings.Repeat("the quick brown fox ", 100))
	if long <= short {
		t.Errorf("Longer text should count more tokens: short=%d long=%d", short, long)
	}
}

func TestCountTokensFallback(t *testing.T) {
	// Encoder-less counter must degrade to chars/4, not fail.
	counter := &Counter{encoder: nil}
	if got := counter.CountTokens("12345678"); got != 2 {
		t.Errorf("Expected chars/4 fallback = 2, got %d", got)
	}
}

func TestCountMultiple(t *testing.T) {
	counter := GetCounter()
	a := counter.CountTokens("alpha beta")
	b := counter.CountTokens("gamma delta")
	if got := counter.CountMultiple("alpha beta", "gamma delta"); got != a+b {
		t.Errorf("CountMultiple = %d, want %d", got, a+b)
	}
}

func TestGetCounterSingleton(t *testing.T) {
	if GetCounter() != GetCounter() {
		t.Error("GetCounter should return the same instance")
	}
}

func TestCountTokensConcurrent(t *testing.T) {
	counter := GetCounter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				counter.CountTokens("concurrent token counting must not race")
			}
		}()
	}
	wg.Wait()
}

func TestBudget(t *testing.T) {
	budget := NewBudget(1000, 200)

	if got := budget.AvailableTokens(); got != 800 {
		t.Errorf("Expected 800 available, got %d", got)
	}
	if !budget.CanFit(800) {
		t.Error("800 tokens should fit")
	}
	if budget.CanFit(801) {
		t.Error("801 tokens should not fit")
	}

	if !budget.Use(500) {
		t.Error("Use(500) should succeed")
	}
	if budget.Use(400) {
		t.Error("Use(400) should fail with only 300 left")
	}

	used, available, total := budget.GetUsage()
	if used != 500 || available != 300 || total != 1000 {
		t.Errorf("GetUsage = (%d, %d, %d), want (500, 300, 1000)", used, available, total)
	}

	budget.Free(200)
	if got := budget.AvailableTokens(); got != 500 {
		t.Errorf("Expected 500 available after Free, got %d", got)
	}

	// Freeing more than used clamps at zero
	budget.Free(10000)
	if got := budget.AvailableTokens(); got != 800 {
		t.Errorf("Expected full budget after over-free, got %d available", got)
	}
}

func TestBudgetThresholds(t *testing.T) {
	budget := NewBudget(1000, 0)

	budget.Use(690)
	if budget.NeedsWarning() {
		t.Error("69% usage should not warn")
	}
	budget.Use(20) // 71%
	if !budget.NeedsWarning() {
		t.Error("71% usage should warn")
	}
	if budget.IsCritical() {
		t.Error("71% usage should not be critical")
	}
	budget.Use(150) // 86%
	if !budget.IsCritical() {
		t.Error("86% usage should be critical")
	}
}

func TestBudgetZeroCapacity(t *testing.T) {
	budget := NewBudget(100, 100)
	if got := budget.UsagePercentage(); got != 0 {
		t.Errorf("Zero-capacity budget should report 0%%, got %f", got)
	}
}
