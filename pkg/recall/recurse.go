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
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/treadle/pkg/memory"
)

// ChunkCandidate is one contiguous slice of a session's turns offered to the
// model during recursive narrowing. Built fresh per recursion level and
// discarded after it.
type ChunkCandidate struct {
	// ID encodes the turn span, e.g. "t12:t47".
	ID string

	// Turns is the contiguous subset.
	Turns []memory.Turn

	// Summary shows the first two and last two turns of the span.
	Summary string
}

const chunkSummaryLineLimit = 160

// extract recursively narrows a session's turns down to evidence. Sets
// within MaxLeafTurns, or at exhausted depth, are extracted directly.
// Larger sets are chunked, the most promising chunks selected, and each
// selected chunk recursed one level deeper. A recursion that yields nothing
// falls back to extracting the unsplit set.
func (s *Service) extract(ctx context.Context, st *runState, query, sessionID string, turns []memory.Turn, depth int) []Evidence {
	if len(turns) == 0 {
		return nil
	}
	if len(turns) <= s.limits.MaxLeafTurns || depth <= 0 {
		return s.extractLeaf(ctx, st, query, sessionID, turns)
	}

	chunks := splitChunks(turns, s.limits.MaxChunkBranches, s.limits.MaxLeafTurns)
	selected := s.selectChunks(ctx, st, query, chunks)

	var out []Evidence
	for _, chunk := range selected {
		out = append(out, s.extract(ctx, st, query, sessionID, chunk.Turns, depth-1)...)
	}
	if len(out) == 0 {
		s.logger.Debug("Recursion yielded no evidence, extracting unsplit turn set",
			zap.String("session_id", sessionID),
			zap.Int("turns", len(turns)))
		return s.extractLeaf(ctx, st, query, sessionID, turns)
	}
	return out
}

// splitChunks cuts turns into between 2 and maxBranches contiguous chunks,
// aiming for roughly leaf-sized pieces.
func splitChunks(turns []memory.Turn, maxBranches, leafSize int) []ChunkCandidate {
	n := len(turns)
	branches := (n + leafSize - 1) / leafSize
	if branches < 2 {
		branches = 2
	}
	if branches > maxBranches {
		branches = maxBranches
	}
	size := (n + branches - 1) / branches

	chunks := make([]ChunkCandidate, 0, branches)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		subset := turns[start:end]
		chunks = append(chunks, ChunkCandidate{
			ID:      subset[0].Ref + ":" + subset[len(subset)-1].Ref,
			Turns:   subset,
			Summary: summarizeSpan(subset),
		})
	}
	return chunks
}

// summarizeSpan renders the first two and last two turns of a span, with a
// gap marker for anything elided between them.
func summarizeSpan(turns []memory.Turn) string {
	renderTurn := func(t memory.Turn) string {
		text := strings.Join(strings.Fields(t.Content), " ")
		return t.Role + ": " + clampGraphemes(text, chunkSummaryLineLimit)
	}

	if len(turns) <= 4 {
		lines := make([]string, 0, len(turns))
		for _, t := range turns {
			lines = append(lines, renderTurn(t))
		}
		return strings.Join(lines, "\n")
	}

	lines := []string{
		renderTurn(turns[0]),
		renderTurn(turns[1]),
		fmt.Sprintf("... %d more turns ...", len(turns)-4),
		renderTurn(turns[len(turns)-2]),
		renderTurn(turns[len(turns)-1]),
	}
	return strings.Join(lines, "\n")
}

type chunkSelection struct {
	Selections []struct {
		ChunkID    string  `json:"chunk_id"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	} `json:"selections"`
}

// selectChunks picks the chunks worth descending into, asking the model
// first and falling back to keyword overlap against the chunk summaries.
func (s *Service) selectChunks(ctx context.Context, st *runState, query string, chunks []ChunkCandidate) []ChunkCandidate {
	byID := make(map[string]ChunkCandidate, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	if content, ok := s.askModel(ctx, st, buildChunkPrompt(query, chunks, s.limits.MaxChunkSelections)); ok {
		var sel chunkSelection
		if decodeModelJSON(content, &sel) && len(sel.Selections) > 0 {
			selected := make([]ChunkCandidate, 0, s.limits.MaxChunkSelections)
			seen := make(map[string]bool, len(sel.Selections))
			for _, choice := range sel.Selections {
				if len(selected) >= s.limits.MaxChunkSelections {
					break
				}
				id := strings.TrimSpace(choice.ChunkID)
				chunk, known := byID[id]
				if !known || seen[id] {
					continue
				}
				seen[id] = true
				selected = append(selected, chunk)
			}
			if len(selected) > 0 {
				return selected
			}
		}
		s.logger.Debug("Chunk selection response unusable, scoring by keyword overlap")
	}

	terms := keywords(query)
	type scored struct {
		chunk ChunkCandidate
		score int
	}
	ranked := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		if score := keywordOverlap(terms, chunk.Summary); score > 0 {
			ranked = append(ranked, scored{chunk: chunk, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	selected := make([]ChunkCandidate, 0, s.limits.MaxChunkSelections)
	for _, r := range ranked {
		if len(selected) >= s.limits.MaxChunkSelections {
			break
		}
		selected = append(selected, r.chunk)
	}
	return selected
}

func buildChunkPrompt(query string, chunks []ChunkCandidate, maxSelections int) string {
	var b strings.Builder
	for _, chunk := range chunks {
		fmt.Fprintf(&b, "chunk %s:\n%s\n\n", chunk.ID, chunk.Summary)
	}

	return fmt.Sprintf(`You are narrowing a search through an old conversation. Each chunk below is a span of turns, shown by its first and last messages.

Query: %q

%sSelect up to %d chunks most likely to contain content relevant to the query. Respond ONLY with valid JSON (no markdown, no code blocks):
{
  "selections": [
    {"chunk_id": "<id>", "reason": "<brief>", "confidence": <0.0-1.0>}
  ]
}

If no chunk looks relevant, return an empty selections list.`, query, b.String(), maxSelections)
}

type leafExtraction struct {
	Evidence []struct {
		TurnRef     string  `json:"turn_ref"`
		Snippet     string  `json:"snippet"`
		WhyRelevant string  `json:"why_relevant"`
		Confidence  float64 `json:"confidence"`
	} `json:"evidence"`
}

// extractLeaf pulls evidence items out of a turn set small enough to read in
// one pass. Model items referencing turns that were not supplied are
// dropped; missing fields are backfilled from the matched turn. Falls back
// to keyword ranking when the model is unavailable or returns nothing.
func (s *Service) extractLeaf(ctx context.Context, st *runState, query, sessionID string, turns []memory.Turn) []Evidence {
	byRef := make(map[string]memory.Turn, len(turns))
	for _, turn := range turns {
		byRef[turn.Ref] = turn
	}

	if content, ok := s.askModel(ctx, st, buildLeafPrompt(query, turns, s.limits.MaxEvidencePerLeaf)); ok {
		var extraction leafExtraction
		if decodeModelJSON(content, &extraction) && len(extraction.Evidence) > 0 {
			out := make([]Evidence, 0, s.limits.MaxEvidencePerLeaf)
			for _, item := range extraction.Evidence {
				if len(out) >= s.limits.MaxEvidencePerLeaf {
					break
				}
				turn, known := byRef[strings.TrimSpace(item.TurnRef)]
				if !known {
					continue
				}
				ev := Evidence{
					SessionID:   sessionID,
					TurnRef:     turn.Ref,
					Timestamp:   turn.CreatedAt,
					Snippet:     item.Snippet,
					WhyRelevant: item.WhyRelevant,
					Confidence:  item.Confidence,
				}
				if ev.Snippet == "" {
					ev.Snippet = turn.Content
				}
				if ev.WhyRelevant == "" {
					ev.WhyRelevant = turn.Content
				}
				ev.normalize()
				out = append(out, ev)
			}
			if len(out) > 0 {
				return out
			}
		}
		s.logger.Debug("Leaf extraction response unusable, ranking by keywords",
			zap.String("session_id", sessionID))
	}

	return s.extractByKeywords(query, sessionID, turns)
}

// extractByKeywords is the deterministic leaf fallback: turns ranked by how
// many query terms they contain, with a confidence derived from the match
// count.
func (s *Service) extractByKeywords(query, sessionID string, turns []memory.Turn) []Evidence {
	terms := keywords(query)
	type scored struct {
		turn    memory.Turn
		matched []string
	}
	ranked := make([]scored, 0, len(turns))
	for _, turn := range turns {
		lower := strings.ToLower(turn.Content)
		var matched []string
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matched = append(matched, term)
			}
		}
		if len(matched) > 0 {
			ranked = append(ranked, scored{turn: turn, matched: matched})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return len(ranked[i].matched) > len(ranked[j].matched) })

	out := make([]Evidence, 0, s.limits.MaxEvidencePerLeaf)
	for _, r := range ranked {
		if len(out) >= s.limits.MaxEvidencePerLeaf {
			break
		}
		confidence := 0.4 + 0.1*float64(len(r.matched))
		if confidence > 0.8 {
			confidence = 0.8
		}
		ev := Evidence{
			SessionID:   sessionID,
			TurnRef:     r.turn.Ref,
			Timestamp:   r.turn.CreatedAt,
			Snippet:     r.turn.Content,
			WhyRelevant: "contains query terms: " + strings.Join(r.matched, ", "),
			Confidence:  confidence,
		}
		ev.normalize()
		out = append(out, ev)
	}
	return out
}

func buildLeafPrompt(query string, turns []memory.Turn, maxItems int) string {
	var b strings.Builder
	for _, turn := range turns {
		text := strings.Join(strings.Fields(turn.Content), " ")
		fmt.Fprintf(&b, "[%s] %s: %s\n", turn.Ref, turn.Role, clampGraphemes(text, 500))
	}

	return fmt.Sprintf(`You are extracting evidence from an old conversation that may answer a query.

Query: %q

Turns:
%s
Return up to %d evidence items. turn_ref MUST be one of the bracketed refs above. snippet quotes the relevant content; why_relevant explains the connection to the query. Respond ONLY with valid JSON (no markdown, no code blocks):
{
  "evidence": [
    {"turn_ref": "<ref>", "snippet": "<quote>", "why_relevant": "<brief>", "confidence": <0.0-1.0>}
  ]
}

If nothing is relevant, return an empty evidence list.`, query, b.String(), maxItems)
}
