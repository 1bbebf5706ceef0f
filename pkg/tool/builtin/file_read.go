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
package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/teradata-labs/treadle/pkg/tool"
)

const (
	// MaxFileReadSize is the largest file the read tool will open (10MB).
	MaxFileReadSize = 10 * 1024 * 1024

	// DefaultMaxReadLines limits text output so one read cannot flood the
	// model's context.
	DefaultMaxReadLines = 1000
)

// FileReadTool reads files from the local filesystem with size and line
// windows.
type FileReadTool struct {
	baseDir string
}

// NewFileReadTool creates a file read tool rooted at baseDir. Empty baseDir
// means the current working directory.
func NewFileReadTool(baseDir string) *FileReadTool {
	if baseDir == "" {
		baseDir, _ = os.Getwd()
	}
	return &FileReadTool{baseDir: baseDir}
}

func (t *FileReadTool) Name() string {
	return "file_read"
}

func (t *FileReadTool) Description() string {
	return heredoc.Doc(`
		Reads content from a file on the local filesystem.

		Use this tool to:
		- Ground answers in actual file content rather than guessing
		- Load data, configuration, or results from earlier steps
		- Inspect a window of a large file with start_line and max_lines

		Sensitive system files are refused. Files larger than 10MB must be
		read in windows.
	`)
}

func (t *FileReadTool) SelectionHints() []string {
	return []string{"file", "read", "open", "load", "content", "cat"}
}

func (t *FileReadTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema(
		"Parameters for reading files",
		map[string]*tool.JSONSchema{
			"path": tool.NewStringSchema("File path to read (required). Relative paths are resolved from the tool's base directory."),
			"encoding": tool.NewStringSchema("Output encoding: 'text' (default) or 'base64' for binary files").
				WithEnum("text", "base64").
				WithDefault("text"),
			"max_lines":  tool.NewNumberSchema("Maximum lines to return for text files (default: 1000, 0 = unlimited)"),
			"start_line": tool.NewNumberSchema("Start reading from this line number (1-based, default: 1)"),
		},
		[]string{"path"},
	)
}

func (t *FileReadTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	path, ok := params["path"].(string)
	if !ok || path == "" {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    "path is required",
				Suggestion: "Provide a file path (e.g., 'data/results.json')",
			},
		}, start), nil
	}

	encoding := "text"
	if e, ok := params["encoding"].(string); ok && e != "" {
		encoding = e
	}

	maxLines := DefaultMaxReadLines
	if m, ok := params["max_lines"].(float64); ok {
		maxLines = int(m)
	}

	startLine := 1
	if s, ok := params["start_line"].(float64); ok && s > 0 {
		startLine = int(s)
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(t.baseDir, cleanPath)
	}

	if isSensitiveReadPath(cleanPath) {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "unsafe_path",
				Message:    fmt.Sprintf("cannot read sensitive location: %s", cleanPath),
				Suggestion: "Read files from your project or user data directories",
			},
		}, start), nil
	}

	info, err := os.Stat(cleanPath)
	if os.IsNotExist(err) {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "file_not_found",
				Message:    fmt.Sprintf("file not found: %s", cleanPath),
				Suggestion: "Check the file path and ensure the file exists",
			},
		}, start), nil
	}
	if err != nil {
		return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to stat file: %v", err)), start), nil
	}

	if info.IsDir() {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "is_directory",
				Message:    fmt.Sprintf("path is a directory, not a file: %s", cleanPath),
				Suggestion: "Provide a path to a file, or list the directory with shell_execute",
			},
		}, start), nil
	}

	if info.Size() > MaxFileReadSize {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "file_too_large",
				Message:    fmt.Sprintf("file is %d bytes (max: %d)", info.Size(), MaxFileReadSize),
				Suggestion: "Use start_line and max_lines to read a portion of the file",
			},
		}, start), nil
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to read file: %v", err)), start), nil
	}

	var content string
	var totalLines, returnedLines int
	truncated := false

	if encoding == "base64" {
		content = base64.StdEncoding.EncodeToString(data)
	} else {
		lines := strings.Split(string(data), "\n")
		totalLines = len(lines)

		if startLine > 1 {
			if startLine > len(lines) {
				lines = []string{}
			} else {
				lines = lines[startLine-1:]
			}
		}
		if maxLines > 0 && len(lines) > maxLines {
			lines = lines[:maxLines]
			truncated = true
		}

		returnedLines = len(lines)
		content = strings.Join(lines, "\n")
	}

	output := content
	if truncated {
		output += fmt.Sprintf("\n... [%d of %d lines shown; continue with start_line=%d]",
			returnedLines, totalLines, startLine+returnedLines)
	}

	return stamp(&tool.Result{
		OK:     true,
		Output: output,
		Meta: map[string]interface{}{
			"path":        cleanPath,
			"encoding":    encoding,
			"size_bytes":  info.Size(),
			"total_lines": totalLines,
			"lines_read":  returnedLines,
			"start_line":  startLine,
			"truncated":   truncated,
			"modified_at": info.ModTime().Format(time.RFC3339),
		},
	}, start), nil
}

// isSensitiveReadPath reports whether a path must not be read. Reading is
// less dangerous than writing, but credential stores and kernel interfaces
// stay off-limits.
func isSensitiveReadPath(path string) bool {
	sensitive := []string{
		"/etc/shadow",
		"/etc/passwd",
		"/etc/sudoers",
		"/private/etc/shadow",
		"/private/etc/passwd",
		"/private/etc/sudoers",
	}
	for _, s := range sensitive {
		if path == s {
			return true
		}
	}

	protectedDirs := []string{
		"/proc",
		"/sys",
		"/dev",
	}
	for _, prefix := range protectedDirs {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}
	return false
}
