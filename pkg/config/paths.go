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

// Package config resolves the filesystem locations Treadle uses: the data
// directory holding the config file, session database, and loop profiles,
// and the sandbox directory where the shell tool runs commands.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetTreadleDataDir returns the Treadle data directory.
//
// Priority:
// 1. TREADLE_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.treadle (default)
//
// The returned path is always absolute. Tilde (~) in TREADLE_DATA_DIR is
// expanded to the user's home directory, and relative paths are made
// absolute.
//
// This function is called during bootstrap, before the config file is
// loaded, to locate the config file itself. It reads os.Getenv directly
// rather than viper to avoid a circular dependency during initialization.
func GetTreadleDataDir() string {
	if dataDir := os.Getenv("TREADLE_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".treadle"
	}
	return filepath.Join(homeDir, ".treadle")
}

// GetTreadleSandboxDir returns the directory where shell commands run by
// default.
//
// Priority:
// 1. TREADLE_SANDBOX_DIR environment variable (if set and non-empty)
// 2. TREADLE_DATA_DIR (default)
//
// The sandbox is deliberately separate from the data directory: the data
// directory stores internal state (database, profiles, config) while the
// sandbox is the agent's working area.
func GetTreadleSandboxDir() string {
	if sandboxDir := os.Getenv("TREADLE_SANDBOX_DIR"); sandboxDir != "" {
		return expandPath(sandboxDir)
	}
	return GetTreadleDataDir()
}

// GetTreadleSubDir returns a subdirectory within the Treadle data directory.
// Example: GetTreadleSubDir("profiles") returns ~/.treadle/profiles
func GetTreadleSubDir(subdir string) string {
	return filepath.Join(GetTreadleDataDir(), subdir)
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path // Return as-is if we can't make it absolute
	}
	return absPath
}
