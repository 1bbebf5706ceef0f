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
package recall

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rivo/uniseg"
)

const (
	// SnippetMaxLen caps Evidence.Snippet, in grapheme clusters.
	SnippetMaxLen = 320

	// WhyRelevantMaxLen caps Evidence.WhyRelevant, in grapheme clusters.
	WhyRelevantMaxLen = 220

	// evidenceTokenOverhead is the fixed per-item charge on top of the
	// per-field estimates, covering refs and framing.
	evidenceTokenOverhead = 16
)

// Evidence is one recalled snippet of a past conversation turn.
type Evidence struct {
	// SessionID identifies the session the snippet came from.
	SessionID string `json:"session_id"`

	// TurnRef is the stable turn reference within that session.
	TurnRef string `json:"turn_ref"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Snippet is the quoted content, at most SnippetMaxLen graphemes.
	Snippet string `json:"snippet"`

	// WhyRelevant explains the match, at most WhyRelevantMaxLen graphemes.
	WhyRelevant string `json:"why_relevant"`

	// Confidence is the relevance estimate in [0, 1].
	Confidence float64 `json:"confidence"`
}

// key identifies an evidence item for dedupe and rerank.
func (e Evidence) key() string {
	return e.SessionID + "/" + e.TurnRef
}

// clampGraphemes truncates s to at most max grapheme clusters, ending with
// an ellipsis when it had to cut. Grapheme boundaries keep multi-rune
// characters (emoji, combining marks) intact.
func clampGraphemes(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	if uniseg.GraphemeClusterCount(s) <= max {
		return s
	}

	g := uniseg.NewGraphemes(s)
	end := 0
	for i := 0; i < max-1 && g.Next(); i++ {
		_, end = g.Positions()
	}
	return s[:end] + "…"
}

// clampConfidence forces c into [0, 1]. NaN and negative values become 0.
func clampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// normalize clamps every bounded field of an evidence item in place.
func (e *Evidence) normalize() {
	e.Snippet = clampGraphemes(strings.TrimSpace(e.Snippet), SnippetMaxLen)
	e.WhyRelevant = clampGraphemes(strings.TrimSpace(e.WhyRelevant), WhyRelevantMaxLen)
	e.Confidence = clampConfidence(e.Confidence)
}

// tokenCost estimates what carrying this item costs against the evidence
// token budget.
func (s *Service) tokenCost(e Evidence) int {
	return s.counter.CountTokens(e.Snippet) +
		s.counter.CountTokens(e.WhyRelevant) +
		s.counter.CountTokens(e.TurnRef) +
		evidenceTokenOverhead
}

// dedupeEvidence collapses duplicates sharing (sessionID, turnRef), keeping
// the higher-confidence copy, then sorts by confidence descending and caps
// the list.
func dedupeEvidence(items []Evidence, max int) []Evidence {
	best := make(map[string]Evidence, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		k := item.key()
		existing, seen := best[k]
		if !seen {
			best[k] = item
			order = append(order, k)
			continue
		}
		if item.Confidence > existing.Confidence {
			best[k] = item
		}
	}

	out := make([]Evidence, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// applyRerankOrder reorders items to follow the model-returned keys. Keys
// that match nothing are ignored; items the model left out keep their
// existing relative order at the tail.
func applyRerankOrder(items []Evidence, keys []string) []Evidence {
	byKey := make(map[string]int, len(items))
	for i, item := range items {
		byKey[item.key()] = i
	}

	used := make(map[int]bool, len(items))
	out := make([]Evidence, 0, len(items))
	for _, k := range keys {
		idx, ok := byKey[strings.TrimSpace(k)]
		if !ok || used[idx] {
			continue
		}
		out = append(out, items[idx])
		used[idx] = true
	}
	for i, item := range items {
		if !used[i] {
			out = append(out, item)
		}
	}
	return out
}

func buildRerankPrompt(query string, items []Evidence) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- key: %s\n  snippet: %s\n", item.key(), item.Snippet)
	}

	return fmt.Sprintf(`You are ranking recalled conversation snippets by relevance to a query.

Query: %q

Snippets:
%s
Order ALL keys from most to least relevant. Respond ONLY with valid JSON (no markdown, no code blocks):
{
  "order": ["<key>", "<key>"]
}`, query, b.String())
}
