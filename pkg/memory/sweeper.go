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
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultRetentionSchedule runs the sweep nightly at 03:00.
	DefaultRetentionSchedule = "0 3 * * *"

	// DefaultMaxIdleAge keeps sessions for 30 days after their last
	// activity.
	DefaultMaxIdleAge = 30 * 24 * time.Hour
)

// RetentionPolicy controls when idle sessions are purged.
type RetentionPolicy struct {
	// MaxIdleAge is how long a session may stay idle before it is purged.
	// 0 uses DefaultMaxIdleAge.
	MaxIdleAge time.Duration

	// Schedule is a standard 5-field cron expression for the sweep.
	// Empty uses DefaultRetentionSchedule.
	Schedule string
}

// Sweeper purges idle sessions on a cron schedule.
type Sweeper struct {
	store  *Store
	policy RetentionPolicy
	engine *cron.Cron
	logger *zap.Logger
}

// NewSweeper validates the policy and prepares the cron engine. Call Start
// to begin sweeping.
func NewSweeper(store *Store, policy RetentionPolicy, logger *zap.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxIdleAge <= 0 {
		policy.MaxIdleAge = DefaultMaxIdleAge
	}
	if policy.Schedule == "" {
		policy.Schedule = DefaultRetentionSchedule
	}
	if _, err := cron.ParseStandard(policy.Schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", policy.Schedule, err)
	}

	w := &Sweeper{
		store:  store,
		policy: policy,
		engine: cron.New(),
		logger: logger,
	}
	if _, err := w.engine.AddFunc(policy.Schedule, w.sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	return w, nil
}

// Start begins running the sweep on its schedule.
func (w *Sweeper) Start() {
	w.logger.Info("Starting retention sweeper",
		zap.String("schedule", w.policy.Schedule),
		zap.Duration("max_idle_age", w.policy.MaxIdleAge))
	w.engine.Start()
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	ctx := w.engine.Stop()
	<-ctx.Done()
	w.logger.Info("Retention sweeper stopped")
}

func (w *Sweeper) sweep() {
	purged, err := w.store.PurgeIdleSessions(context.Background(), w.policy.MaxIdleAge)
	if err != nil {
		w.logger.Error("Retention sweep failed", zap.Error(err))
		return
	}
	if purged > 0 {
		w.logger.Info("Retention sweep purged idle sessions", zap.Int("count", purged))
	}
}

// PurgeIdleSessions removes every session whose last activity is older than
// olderThan, along with its turns and tool events. Returns the number of
// sessions removed.
func (s *Store) PurgeIdleSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.purge_idle_sessions")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("older_than", olderThan.String())

	cutoff := time.Now().Add(-olderThan).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to find idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("failed to scan session ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error iterating idle sessions: %w", err)
	}

	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.deleteSessions(ctx, ids); err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttribute("purged", len(ids))
	return len(ids), nil
}
