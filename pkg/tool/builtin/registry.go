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

// Package builtin ships the standard tools every Treadle agent can use:
// shell execution, file access, persistent notes, and a clock.
package builtin

import (
	"github.com/teradata-labs/treadle/pkg/tool"
)

// Config configures the builtin tool set.
type Config struct {
	// BaseDir roots relative paths for the file and shell tools. Empty
	// means the current working directory.
	BaseDir string

	// AllowedCommands restricts shell_execute to the listed programs.
	// Empty permits any command.
	AllowedCommands []string

	// Notes backs the notes tool. Nil leaves the tool registered but
	// failing with a configuration error, so the model gets a clear
	// message instead of a missing tool.
	Notes NoteStore

	// SessionID is recorded as the writer on saved notes.
	SessionID string
}

// All creates all builtin tools.
func All(cfg Config) []tool.Tool {
	return []tool.Tool{
		NewShellExecuteTool(cfg.BaseDir, cfg.AllowedCommands),
		NewFileReadTool(cfg.BaseDir),
		NewFileWriteTool(cfg.BaseDir),
		NewNotesTool(cfg.Notes, cfg.SessionID),
		NewDatetimeTool(),
	}
}

// ByName creates a single builtin tool by name. Returns nil if the name is
// not a builtin.
func ByName(name string, cfg Config) tool.Tool {
	switch name {
	case "shell_execute":
		return NewShellExecuteTool(cfg.BaseDir, cfg.AllowedCommands)
	case "file_read":
		return NewFileReadTool(cfg.BaseDir)
	case "file_write":
		return NewFileWriteTool(cfg.BaseDir)
	case "notes":
		return NewNotesTool(cfg.Notes, cfg.SessionID)
	case "datetime":
		return NewDatetimeTool()
	default:
		return nil
	}
}

// Names returns the names of all builtin tools.
func Names() []string {
	return []string{
		"shell_execute",
		"file_read",
		"file_write",
		"notes",
		"datetime",
	}
}

// RegisterAll registers all builtin tools with a registry.
func RegisterAll(registry *tool.Registry, cfg Config) {
	for _, t := range All(cfg) {
		registry.Register(t)
	}
}

// RegisterByNames registers only the named builtin tools, skipping names
// that are not builtins.
func RegisterByNames(registry *tool.Registry, cfg Config, names []string) {
	for _, name := range names {
		if t := ByName(name, cfg); t != nil {
			registry.Register(t)
		}
	}
}
