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

import "time"

// Limits bounds one recall invocation. Immutable per Service; zero fields
// take the defaults below.
type Limits struct {
	// MaxMatchedSessions is the number of candidate sessions searched.
	MaxMatchedSessions int

	// RecursionDepth is how many times a session's turns may be split
	// before evidence is extracted from whatever remains.
	RecursionDepth int

	// MaxTurnsPerSession caps the turns loaded per candidate session.
	// Hitting the cap marks the result truncated.
	MaxTurnsPerSession int

	// EvidenceTokenBudget is the total estimated token cost of all
	// evidence returned by one call.
	EvidenceTokenBudget int

	// TotalRecallBudget is the wall-clock budget for the whole call.
	// Checked before each unit of work; an in-flight model call is
	// allowed to finish past it.
	TotalRecallBudget time.Duration

	// MaxEvidenceItems caps the evidence list in the result.
	MaxEvidenceItems int

	// MaxModelCalls caps model sub-calls per recall invocation.
	MaxModelCalls int

	// MaxChunkSelections is how many chunks the model may pick per
	// recursion level.
	MaxChunkSelections int

	// MaxChunkBranches is the most chunks a turn set splits into.
	MaxChunkBranches int

	// MaxLeafTurns is the largest turn set extracted in one pass
	// without further splitting.
	MaxLeafTurns int

	// MaxEvidencePerLeaf caps evidence items extracted from one leaf.
	MaxEvidencePerLeaf int

	// DecisionContextTurns is how many live turns the recall-decision
	// prompt includes.
	DecisionContextTurns int
}

// DefaultLimits returns the limits used when a field is left zero.
func DefaultLimits() Limits {
	return Limits{
		MaxMatchedSessions:   3,
		RecursionDepth:       3,
		MaxTurnsPerSession:   200,
		EvidenceTokenBudget:  2000,
		TotalRecallBudget:    20 * time.Second,
		MaxEvidenceItems:     8,
		MaxModelCalls:        10,
		MaxChunkSelections:   2,
		MaxChunkBranches:     4,
		MaxLeafTurns:         12,
		MaxEvidencePerLeaf:   3,
		DecisionContextTurns: 6,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxMatchedSessions <= 0 {
		l.MaxMatchedSessions = d.MaxMatchedSessions
	}
	if l.RecursionDepth <= 0 {
		l.RecursionDepth = d.RecursionDepth
	}
	if l.MaxTurnsPerSession <= 0 {
		l.MaxTurnsPerSession = d.MaxTurnsPerSession
	}
	if l.EvidenceTokenBudget <= 0 {
		l.EvidenceTokenBudget = d.EvidenceTokenBudget
	}
	if l.TotalRecallBudget <= 0 {
		l.TotalRecallBudget = d.TotalRecallBudget
	}
	if l.MaxEvidenceItems <= 0 {
		l.MaxEvidenceItems = d.MaxEvidenceItems
	}
	if l.MaxModelCalls <= 0 {
		l.MaxModelCalls = d.MaxModelCalls
	}
	if l.MaxChunkSelections <= 0 {
		l.MaxChunkSelections = d.MaxChunkSelections
	}
	if l.MaxChunkBranches < 2 {
		l.MaxChunkBranches = d.MaxChunkBranches
	}
	if l.MaxLeafTurns <= 0 {
		l.MaxLeafTurns = d.MaxLeafTurns
	}
	if l.MaxEvidencePerLeaf <= 0 {
		l.MaxEvidencePerLeaf = d.MaxEvidencePerLeaf
	}
	if l.DecisionContextTurns <= 0 {
		l.DecisionContextTurns = d.DecisionContextTurns
	}
	return l
}

// runState tracks the budgets of one recall invocation. remainingTokens only
// decreases, modelCalls only increases, and truncated is sticky.
type runState struct {
	startedAt       time.Time
	remainingTokens int
	modelCalls      int
	truncated       bool
	triggerReason   string
}

func (st *runState) elapsed() time.Duration {
	return time.Since(st.startedAt)
}
