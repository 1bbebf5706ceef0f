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
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// historyReferencePatterns match phrasing that explicitly points at prior
// conversations.
var historyReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(remember|recall)\b`),
	regexp.MustCompile(`(?i)\b(last|previous|earlier|prior|past)\s+(time|session|conversation|chat|discussion)\b`),
	regexp.MustCompile(`(?i)\bwe\s+(discussed|talked|spoke|agreed|decided|covered)\b`),
	regexp.MustCompile(`(?i)\b(you|we|i)\s+(said|mentioned|told|asked)\b`),
	regexp.MustCompile(`(?i)\bback\s+when\b`),
	regexp.MustCompile(`(?i)\bwhat\s+was\s+(that|the)\b`),
}

// referentialWords are pronouns and adverbs that lean on context the model
// does not have when the live conversation is nearly empty.
var referentialWords = map[string]bool{
	"that":    true,
	"it":      true,
	"this":    true,
	"again":   true,
	"before":  true,
	"earlier": true,
}

// shortReferentialMaxWords bounds the "short referential query" heuristic.
const shortReferentialMaxWords = 8

// maxLiveTurnsForReferential is the most live conversation a referential
// query may have while still suggesting the referent lives in history.
const maxLiveTurnsForReferential = 2

// ShouldTrigger is the cheap heuristic gate for automatic recall. It fires
// on explicit history-reference phrasing, or on a short referential query
// asked with almost no live conversation to resolve it against. Returns the
// matched reason when it fires.
func ShouldTrigger(query string, liveTurns int) (bool, string) {
	for _, pattern := range historyReferencePatterns {
		if match := pattern.FindString(query); match != "" {
			return true, fmt.Sprintf("history reference %q", strings.ToLower(match))
		}
	}

	words := strings.Fields(query)
	if len(words) == 0 || len(words) > shortReferentialMaxWords {
		return false, ""
	}
	if liveTurns > maxLiveTurnsForReferential {
		return false, ""
	}
	for _, w := range words {
		if referentialWords[strings.ToLower(strings.Trim(w, ".,!?;:'\""))] {
			return true, fmt.Sprintf("short referential query (%q with %d live turns)", strings.ToLower(w), liveTurns)
		}
	}
	return false, ""
}

// keywords lowercases and splits text on anything that is not a letter or
// digit, for overlap scoring.
func keywords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// keywordOverlap counts how many query terms appear in text (lowercased
// substring match).
func keywordOverlap(terms []string, text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	return score
}

// decision is the model's answer to "is historical recall needed here".
type decision struct {
	NeedsRecall bool   `json:"needs_recall"`
	Reason      string `json:"reason"`
	SearchQuery string `json:"search_query"`
}

// decide resolves the search query for this recall. Explicit mode trusts the
// caller's text. Auto mode asks the model; a failed or unaffordable call
// falls back to the same heuristic that opened the gate, searching on the
// raw query.
func (s *Service) decide(ctx context.Context, st *runState, query string, live []LiveTurn, mode Mode) decision {
	if mode == ModeExplicit {
		return decision{NeedsRecall: true, Reason: "explicit recall request", SearchQuery: query}
	}

	if content, ok := s.askModel(ctx, st, buildDecisionPrompt(query, live, s.limits.DecisionContextTurns)); ok {
		var d decision
		if decodeModelJSON(content, &d) {
			if d.SearchQuery == "" {
				d.SearchQuery = query
			}
			return d
		}
		s.logger.Debug("Recall decision response unparsable, using heuristic")
	}

	triggered, reason := ShouldTrigger(query, len(live))
	if !triggered {
		// The gate only admits triggered queries, so this is reachable
		// only when the heuristic and gate disagree on live context.
		return decision{NeedsRecall: false, Reason: "no history reference detected"}
	}
	return decision{NeedsRecall: true, Reason: reason, SearchQuery: query}
}

func buildDecisionPrompt(query string, live []LiveTurn, contextTurns int) string {
	var b strings.Builder
	start := len(live) - contextTurns
	if start < 0 {
		start = 0
	}
	for _, turn := range live[start:] {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, clampGraphemes(turn.Content, 200))
	}
	if b.Len() == 0 {
		b.WriteString("(none)\n")
	}

	return fmt.Sprintf(`You decide whether answering a user requires searching PAST conversation sessions (history that is not in the current context).

Current conversation:
%s
Latest user message: %q

If the message references something not present above (a prior discussion, an earlier decision, "that thing from before"), recall is needed. If the current conversation already contains the referent, it is not.

Respond ONLY with valid JSON (no markdown, no code blocks):
{
  "needs_recall": <true|false>,
  "reason": "<brief explanation>",
  "search_query": "<keywords to search past sessions for>"
}`, b.String(), query)
}
