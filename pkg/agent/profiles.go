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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ProfileReloadCallback is invoked after a profile file is loaded or
// reloaded from disk.
type ProfileReloadCallback func(name string, cfg AgentLoopConfig)

// ProfileRegistry holds named loop-budget presets. Three builtins are
// always present (balanced, thorough, strict); YAML files in the profile
// directory add to or shadow them and are hot-reloaded on change.
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]AgentLoopConfig
	dir      string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	onReload ProfileReloadCallback
}

// NewProfileRegistry builds a registry seeded with the builtin presets.
// dir may be empty to run without file-backed profiles.
func NewProfileRegistry(dir string, logger *zap.Logger) (*ProfileRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ProfileRegistry{
		profiles: make(map[string]AgentLoopConfig),
		dir:      dir,
		logger:   logger,
	}
	r.seedBuiltins()

	if dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create profile watcher: %w", err)
		}
		r.watcher = watcher
		if err := r.LoadProfiles(); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *ProfileRegistry) seedBuiltins() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cfg := range builtinProfiles() {
		r.profiles[name] = cfg
	}
}

func builtinProfiles() map[string]AgentLoopConfig {
	balanced := DefaultLoopConfig()

	thorough := balanced
	thorough.BaseStepLimit = 16
	thorough.MaxStepLimit = 64
	thorough.StepLimitPerTool = 4
	thorough.NoProgressLimit = 8
	thorough.RepeatedActionLimit = 3
	thorough.Selection.TopK = 12
	thorough.Selection.RetryTopK = 24
	thorough.Escalation = EscalationConfig{
		Enabled:            true,
		MinToolCalls:       10,
		MinDistinctTools:   4,
		MinFailedToolCalls: 4,
		MinReflectCycles:   3,
	}

	strict := balanced
	strict.BaseStepLimit = 6
	strict.MaxStepLimit = 16
	strict.StepLimitPerTool = 2
	strict.NoProgressLimit = 3
	strict.RepeatedActionLimit = 1
	strict.Selection.TopK = 5
	strict.Selection.RetryTopK = 10
	strict.Escalation = EscalationConfig{
		Enabled:            true,
		MinToolCalls:       4,
		MinDistinctTools:   2,
		MinFailedToolCalls: 2,
		MinReflectCycles:   1,
	}

	return map[string]AgentLoopConfig{
		"balanced": balanced,
		"thorough": thorough,
		"strict":   strict,
	}
}

// LoadProfiles scans the profile directory and loads every YAML file. The
// file name without extension is the profile name.
func (r *ProfileRegistry) LoadProfiles() error {
	if r.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read profile directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := r.loadFile(filepath.Join(r.dir, entry.Name())); err != nil {
			r.logger.Warn("skipping invalid profile file",
				zap.String("file", entry.Name()),
				zap.Error(err))
		}
	}
	return nil
}

func (r *ProfileRegistry) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}
	var cfg AgentLoopConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	cfg = cfg.withDefaults()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r.mu.Lock()
	r.profiles[name] = cfg
	cb := r.onReload
	r.mu.Unlock()

	r.logger.Info("loaded loop profile",
		zap.String("profile", name),
		zap.Int("base_step_limit", cfg.BaseStepLimit),
		zap.Int("max_step_limit", cfg.MaxStepLimit))
	if cb != nil {
		cb(name, cfg)
	}
	return nil
}

// Get returns the named profile.
func (r *ProfileRegistry) Get(name string) (AgentLoopConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.profiles[name]
	return cfg, ok
}

// List returns all profile names, sorted.
func (r *ProfileRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetReloadCallback registers a callback invoked after each file load.
func (r *ProfileRegistry) SetReloadCallback(cb ProfileReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = cb
}

// Watch blocks, reloading profile files as they change, until the context
// is cancelled or the watcher closes. fsnotify event granularity varies by
// platform; every write or create of a YAML file triggers a single-file
// reload, and removals revert any shadowed builtin.
func (r *ProfileRegistry) Watch(ctx context.Context) error {
	if r.watcher == nil {
		return fmt.Errorf("profile registry has no directory to watch")
	}
	if err := r.watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch profile directory: %w", err)
	}
	r.logger.Info("watching loop profiles", zap.String("dir", r.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), ext)

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
					continue
				}
				r.logger.Info("profile file changed, reloading",
					zap.String("profile", name))
				if err := r.loadFile(event.Name); err != nil {
					r.logger.Error("failed to reload profile",
						zap.String("profile", name),
						zap.Error(err))
				}

			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				r.mu.Lock()
				delete(r.profiles, name)
				if builtin, ok := builtinProfiles()[name]; ok {
					r.profiles[name] = builtin
				}
				r.mu.Unlock()
				r.logger.Info("profile file removed", zap.String("profile", name))
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("profile watcher error", zap.Error(err))
		}
	}
}

// Close stops the file watcher.
func (r *ProfileRegistry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
