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

package agent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/teradata-labs/treadle/pkg/tool"
)

// exactWordBonus outweighs scattered fuzzy subsequence hits so that a tool
// whose corpus literally contains a query word ranks above one that merely
// spells it out across unrelated characters.
const exactWordBonus = 25

// Selection is the tool subset exposed to the model for one step.
type Selection struct {
	// Tools in exposure order: always-include first, then ranked.
	Tools []tool.Tool

	// Allowed is the name set the loop checks model-chosen tools against.
	Allowed map[string]bool
}

// ToolSelector narrows a tool catalog to a bounded, query-relevant subset
// per step. It is stateless; the widen-once behavior lives in RunState.
type ToolSelector struct {
	cfg    SelectionConfig
	logger *zap.Logger
}

// NewToolSelector builds a selector. A nil logger is replaced with a no-op.
func NewToolSelector(cfg SelectionConfig, logger *zap.Logger) *ToolSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolSelector{cfg: cfg, logger: logger}
}

// toolCorpus adapts a candidate slice to fuzzy.Source. Each entry's search
// text is the tool name, description, and selection hints.
type toolCorpus struct {
	tools []tool.Tool
	texts []string
}

func newToolCorpus(tools []tool.Tool) *toolCorpus {
	texts := make([]string, len(tools))
	for i, t := range tools {
		parts := []string{t.Name(), t.Description()}
		parts = append(parts, t.SelectionHints()...)
		texts[i] = strings.ToLower(strings.Join(parts, " "))
	}
	return &toolCorpus{tools: tools, texts: texts}
}

func (c *toolCorpus) String(i int) string { return c.texts[i] }
func (c *toolCorpus) Len() int            { return len(c.tools) }

// Select ranks candidates against the query and returns the top topK plus
// the always-include list. Ranking that yields nothing fails open: the
// model gets every candidate rather than an empty set.
func (s *ToolSelector) Select(query string, candidates []tool.Tool, topK int) Selection {
	if !s.cfg.Enabled || topK <= 0 || len(candidates) <= topK {
		return selectAll(candidates)
	}

	corpus := newToolCorpus(candidates)
	scores := make([]int, len(candidates))
	matched := false

	for _, word := range queryWords(query) {
		for _, m := range fuzzy.FindFrom(word, corpus) {
			scores[m.Index] += m.Score
			matched = true
		}
		for i, text := range corpus.texts {
			if containsWord(text, word) {
				scores[i] += exactWordBonus
				matched = true
			}
		}
	}

	if !matched {
		s.logger.Debug("tool selection matched nothing, failing open",
			zap.Int("candidates", len(candidates)))
		return selectAll(candidates)
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	always := make(map[string]bool, len(s.cfg.AlwaysInclude))
	for _, name := range s.cfg.AlwaysInclude {
		always[name] = true
	}

	sel := Selection{Allowed: make(map[string]bool)}
	for _, t := range candidates {
		if always[t.Name()] && !sel.Allowed[t.Name()] {
			sel.Tools = append(sel.Tools, t)
			sel.Allowed[t.Name()] = true
		}
	}
	ranked := 0
	for _, idx := range order {
		if ranked >= topK {
			break
		}
		t := candidates[idx]
		if scores[idx] <= 0 {
			break
		}
		if sel.Allowed[t.Name()] {
			continue
		}
		sel.Tools = append(sel.Tools, t)
		sel.Allowed[t.Name()] = true
		ranked++
	}

	// Everything scored at or below zero: the ranking collapsed, so fail
	// open rather than leaving the model with no task-relevant tools.
	if ranked == 0 {
		return selectAll(candidates)
	}
	return sel
}

func selectAll(candidates []tool.Tool) Selection {
	sel := Selection{
		Tools:   make([]tool.Tool, len(candidates)),
		Allowed: make(map[string]bool, len(candidates)),
	}
	copy(sel.Tools, candidates)
	for _, t := range candidates {
		sel.Allowed[t.Name()] = true
	}
	return sel
}

// queryWords lowercases and splits the query, keeping words long enough to
// carry signal.
func queryWords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			words = append(words, f)
		}
	}
	return words
}

// containsWord reports whether text contains word bounded by non-word
// characters, so "read" does not credit "spread".
func containsWord(text, word string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isWordRune(rune(text[i-1]))
		afterIdx := i + len(word)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
