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

// Package recall retrieves evidence from past conversation sessions with a
// divide-and-conquer search: candidate sessions are found by summary
// relevance, each session's turns are recursively narrowed through
// model-selected chunks, and evidence is extracted from the leaves. Every
// model sub-call has a deterministic fallback, so the pipeline degrades
// instead of failing; Recall never returns an error.
package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/treadle/pkg/llm"
	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/observability"
	"github.com/teradata-labs/treadle/pkg/tokencount"
)

// Mode selects how a recall is initiated.
type Mode string

const (
	// ModeAuto gates on the trigger heuristic and lets the model decide
	// the search query.
	ModeAuto Mode = "auto"

	// ModeExplicit searches on the caller-supplied text directly. The
	// agent's recall tool uses this mode.
	ModeExplicit Mode = "explicit"
)

// Status is the outcome class of a recall.
type Status string

const (
	// StatusSkipped means the gate decided no historical search was
	// needed.
	StatusSkipped Status = "skipped"

	// StatusNotFound means a search ran but produced no evidence.
	StatusNotFound Status = "not_found"

	// StatusFound means evidence was returned with no budget cuts.
	StatusFound Status = "found"

	// StatusPartial means evidence was returned but something was
	// truncated along the way.
	StatusPartial Status = "partial"
)

// LiveTurn is one turn of the in-progress conversation, supplied so the
// gate and decision stages can tell what the model already has in context.
type LiveTurn struct {
	Role    string
	Content string
}

// Result is what Recall always returns, even when every internal model call
// failed.
type Result struct {
	Status             Status     `json:"status"`
	Reason             string     `json:"reason"`
	Evidence           []Evidence `json:"evidence,omitempty"`
	SearchedSessionIDs []string   `json:"searched_session_ids,omitempty"`
	ElapsedMs          int64      `json:"elapsed_ms"`
	ModelCalls         int        `json:"model_calls"`
	TriggerReason      string     `json:"trigger_reason,omitempty"`
}

// SessionMemory is the slice of the session store the pipeline consumes.
type SessionMemory interface {
	SearchSessionSummaries(ctx context.Context, query string, limit int) ([]memory.SummaryHit, error)
	LoadSessionTurns(ctx context.Context, sessionID string) ([]memory.Turn, error)
}

// Config assembles a recall Service.
type Config struct {
	// Memory is the session store searched for evidence. Required.
	Memory SessionMemory

	// Provider drives the model sub-calls. Nil disables recall (every
	// call returns skipped).
	Provider llm.Provider

	// Limits bounds each invocation; zero fields take defaults.
	Limits Limits

	// Tracer defaults to the no-op tracer.
	Tracer observability.Tracer

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Disabled turns the service off; every call returns skipped.
	Disabled bool
}

// Service runs the recall pipeline. Safe for concurrent use: all per-call
// state lives in a runState owned by one invocation.
type Service struct {
	memory   SessionMemory
	provider llm.Provider
	limits   Limits
	tracer   observability.Tracer
	logger   *zap.Logger
	counter  *tokencount.Counter
	disabled bool
}

// NewService validates the configuration and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Memory == nil {
		return nil, fmt.Errorf("session memory is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		memory:   cfg.Memory,
		provider: cfg.Provider,
		limits:   cfg.Limits.withDefaults(),
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
		counter:  tokencount.GetCounter(),
		disabled: cfg.Disabled,
	}, nil
}

// Limits returns the bounds this service applies per invocation.
func (s *Service) Limits() Limits {
	return s.limits
}

// Recall searches past sessions for evidence relevant to query. It never
// returns an error: internal failures degrade to a not_found result, and
// panics are contained.
func (s *Service) Recall(ctx context.Context, query string, live []LiveTurn, activeSessionID string, mode Mode) (result *Result) {
	ctx, span := s.tracer.StartSpan(ctx, "recall.recall")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("mode", string(mode))

	st := &runState{
		startedAt:       time.Now(),
		remainingTokens: s.limits.EvidenceTokenBudget,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recall pipeline panicked", zap.Any("panic", r))
			result = s.finish(st, StatusNotFound, "internal recall failure", nil, nil)
		}
		span.SetAttribute("status", string(result.Status))
		span.SetAttribute("evidence_count", len(result.Evidence))
		span.SetAttribute("model_calls", result.ModelCalls)
	}()

	if mode == "" {
		mode = ModeAuto
	}

	// Stage 1: gate.
	if s.disabled {
		return s.finish(st, StatusSkipped, "recall disabled", nil, nil)
	}
	if s.provider == nil {
		return s.finish(st, StatusSkipped, "no model configured", nil, nil)
	}
	if mode == ModeExplicit {
		st.triggerReason = "explicit request"
	} else {
		triggered, reason := ShouldTrigger(query, len(live))
		if !triggered {
			return s.finish(st, StatusSkipped, "no history reference in query", nil, nil)
		}
		st.triggerReason = reason
	}

	// Stage 2: decide the search query.
	d := s.decide(ctx, st, query, live, mode)
	if !d.NeedsRecall {
		return s.finish(st, StatusSkipped, d.Reason, nil, nil)
	}

	// Stage 3: candidate sessions by summary relevance.
	hits, err := s.memory.SearchSessionSummaries(ctx, d.SearchQuery, s.limits.MaxMatchedSessions+2)
	if err != nil {
		s.logger.Warn("Session summary search failed", zap.Error(err))
		hits = nil
	}
	candidates := make([]memory.SummaryHit, 0, s.limits.MaxMatchedSessions)
	for _, hit := range hits {
		if hit.SessionID == activeSessionID {
			continue
		}
		candidates = append(candidates, hit)
		if len(candidates) == s.limits.MaxMatchedSessions {
			break
		}
	}
	if len(candidates) == 0 {
		return s.finish(st, StatusNotFound, "no matching session summaries", nil, nil)
	}

	// Stages 4-7: recurse into each candidate and accumulate evidence
	// against the token budget.
	var collected []Evidence
	var searched []string
candidateLoop:
	for _, candidate := range candidates {
		if st.elapsed() >= s.limits.TotalRecallBudget {
			st.truncated = true
			s.logger.Debug("Recall time budget exhausted",
				zap.Duration("elapsed", st.elapsed()),
				zap.Int("sessions_searched", len(searched)))
			break
		}
		if len(collected) >= s.limits.MaxEvidenceItems {
			break
		}

		turns, err := s.memory.LoadSessionTurns(ctx, candidate.SessionID)
		if err != nil {
			s.logger.Warn("Failed to load session turns",
				zap.String("session_id", candidate.SessionID),
				zap.Error(err))
			continue
		}
		if len(turns) == 0 {
			continue
		}
		if len(turns) > s.limits.MaxTurnsPerSession {
			turns = turns[len(turns)-s.limits.MaxTurnsPerSession:]
			st.truncated = true
		}
		searched = append(searched, candidate.SessionID)

		for _, ev := range s.extract(ctx, st, d.SearchQuery, candidate.SessionID, turns, s.limits.RecursionDepth) {
			if len(collected) >= s.limits.MaxEvidenceItems {
				break candidateLoop
			}
			cost := s.tokenCost(ev)
			if cost > st.remainingTokens {
				st.truncated = true
				continue
			}
			st.remainingTokens -= cost
			collected = append(collected, ev)
			if st.remainingTokens <= 0 {
				break candidateLoop
			}
		}
	}

	// Stage 8: dedupe, sort, cap.
	evidence := dedupeEvidence(collected, s.limits.MaxEvidenceItems)

	// Stage 9: model rerank when affordable; confidence order otherwise.
	evidence = s.rerank(ctx, st, d.SearchQuery, evidence)

	// Stage 10: status.
	if len(evidence) == 0 {
		return s.finish(st, StatusNotFound, "no relevant evidence found", nil, searched)
	}
	status := StatusFound
	if st.truncated {
		status = StatusPartial
	}
	s.logger.Info("Recall complete",
		zap.String("status", string(status)),
		zap.Int("evidence", len(evidence)),
		zap.Int("sessions_searched", len(searched)),
		zap.Int("model_calls", st.modelCalls),
		zap.Duration("elapsed", st.elapsed()))
	return s.finish(st, status, d.Reason, evidence, searched)
}

func (s *Service) finish(st *runState, status Status, reason string, evidence []Evidence, searched []string) *Result {
	return &Result{
		Status:             status,
		Reason:             reason,
		Evidence:           evidence,
		SearchedSessionIDs: searched,
		ElapsedMs:          st.elapsed().Milliseconds(),
		ModelCalls:         st.modelCalls,
		TriggerReason:      st.triggerReason,
	}
}

// rerank asks the model to order the evidence. Unaffordable calls and
// unusable responses keep the confidence-descending order the list already
// has.
func (s *Service) rerank(ctx context.Context, st *runState, query string, items []Evidence) []Evidence {
	if len(items) <= 1 {
		return items
	}
	content, ok := s.askModel(ctx, st, buildRerankPrompt(query, items))
	if !ok {
		return items
	}
	var ranked struct {
		Order []string `json:"order"`
	}
	if !decodeModelJSON(content, &ranked) || len(ranked.Order) == 0 {
		return items
	}
	out := applyRerankOrder(items, ranked.Order)
	if len(out) > s.limits.MaxEvidenceItems {
		out = out[:s.limits.MaxEvidenceItems]
	}
	return out
}

// canCallModel gates every model sub-call: a provider must be present, the
// call count must stay within MaxModelCalls, and the time budget must not
// be spent. A failing gate routes the sub-step to its deterministic
// fallback.
func (s *Service) canCallModel(st *runState) bool {
	return s.provider != nil &&
		st.modelCalls < s.limits.MaxModelCalls &&
		st.elapsed() < s.limits.TotalRecallBudget
}

// askModel issues one narrow model call. The call is counted before it is
// made, and its context deadline is the recall's overall time budget.
func (s *Service) askModel(ctx context.Context, st *runState, prompt string) (string, bool) {
	if !s.canCallModel(st) {
		return "", false
	}
	st.modelCalls++

	callCtx, cancel := context.WithDeadline(ctx, st.startedAt.Add(s.limits.TotalRecallBudget))
	defer cancel()

	turn, err := s.provider.Chat(callCtx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		s.logger.Debug("Recall model call failed", zap.Error(err))
		return "", false
	}
	return turn.Content, true
}

// decodeModelJSON parses model output tolerantly: surrounding markdown code
// fences are stripped first, and anything that still fails to parse is
// treated like an absent response.
func decodeModelJSON(content string, v interface{}) bool {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	return json.Unmarshal([]byte(content), v) == nil
}
