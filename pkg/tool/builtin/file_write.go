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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/teradata-labs/treadle/pkg/tool"
)

// MaxWriteContentSize caps content per write call. Providers cap output
// tokens well below this, so anything larger is split across append calls
// anyway; the cap turns a silent truncation into an explicit error.
const MaxWriteContentSize = 50 * 1024

// FileWriteTool writes files on the local filesystem, creating parent
// directories as needed.
type FileWriteTool struct {
	baseDir string
}

// NewFileWriteTool creates a file write tool rooted at baseDir. Empty
// baseDir means the current working directory.
func NewFileWriteTool(baseDir string) *FileWriteTool {
	if baseDir == "" {
		baseDir, _ = os.Getwd()
	}
	return &FileWriteTool{baseDir: baseDir}
}

func (t *FileWriteTool) Name() string {
	return "file_write"
}

func (t *FileWriteTool) Description() string {
	return heredoc.Doc(`
		Writes content to a file on the local filesystem. Parent directories
		are created automatically.

		Use this tool to:
		- Save results and generated output
		- Build up large files incrementally with mode 'append'
		- Store data for later steps to read back

		System directories are refused. Content is capped at 50KB per call;
		use append mode for anything larger.
	`)
}

func (t *FileWriteTool) SelectionHints() []string {
	return []string{"file", "write", "save", "create", "output", "store"}
}

func (t *FileWriteTool) InputSchema() *tool.JSONSchema {
	maxContentLen := MaxWriteContentSize
	return tool.NewObjectSchema(
		"Parameters for writing files",
		map[string]*tool.JSONSchema{
			"path": tool.NewStringSchema("File path to write (required). Relative paths are resolved from the tool's base directory."),
			"content": tool.NewStringSchema("Content to write (required). Max 50KB per call; use mode 'append' for larger content.").
				WithLength(nil, &maxContentLen),
			"mode": tool.NewStringSchema("Write mode: 'create' (fail if exists), 'overwrite', or 'append' (default: create)").
				WithEnum("create", "overwrite", "append").
				WithDefault("create"),
		},
		[]string{"path", "content"},
	)
}

func (t *FileWriteTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	path, ok := params["path"].(string)
	if !ok || path == "" {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    "path is required",
				Suggestion: "Provide a file path (e.g., 'output.txt' or 'data/results.json')",
			},
		}, start), nil
	}

	content, ok := params["content"].(string)
	if !ok {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    "content is required",
				Suggestion: "Provide content to write to the file",
			},
		}, start), nil
	}

	if len(content) > MaxWriteContentSize {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:    "content_too_large",
				Message: fmt.Sprintf("content is %d bytes (max: %d per call)", len(content), MaxWriteContentSize),
				Suggestion: heredoc.Doc(`
					Split the content across calls:
					1. file_write(path="out.md", content="part 1", mode="create")
					2. file_write(path="out.md", content="part 2", mode="append")
				`),
			},
		}, start), nil
	}

	mode := "create"
	if m, ok := params["mode"].(string); ok && m != "" {
		mode = m
	}
	switch mode {
	case "create", "overwrite", "append":
	default:
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    fmt.Sprintf("unknown write mode: %s", mode),
				Suggestion: "Use 'create', 'overwrite', or 'append'",
			},
		}, start), nil
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(t.baseDir, cleanPath)
	}

	if isSensitiveWritePath(cleanPath) {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "unsafe_path",
				Message:    fmt.Sprintf("cannot write to sensitive location: %s", cleanPath),
				Suggestion: "Use a path in your project or a user data directory",
			},
		}, start), nil
	}

	_, err := os.Stat(cleanPath)
	fileExists := err == nil

	if fileExists && mode == "create" {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "file_exists",
				Message:    fmt.Sprintf("file already exists: %s", cleanPath),
				Suggestion: "Use mode='overwrite' to replace it, or mode='append' to add content",
			},
		}, start), nil
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0750); err != nil {
		return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to create directory: %v", err)), start), nil
	}

	var writeErr error
	bytesWritten := 0
	switch mode {
	case "append":
		f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			writeErr = err
		} else {
			n, err := f.WriteString(content)
			bytesWritten = n
			writeErr = err
			f.Close()
		}
	default:
		data := []byte(content)
		writeErr = os.WriteFile(cleanPath, data, 0600)
		bytesWritten = len(data)
	}

	if writeErr != nil {
		return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to write file: %v", writeErr)), start), nil
	}

	verb := "wrote"
	switch {
	case mode == "append":
		verb = "appended"
	case !fileExists:
		verb = "created"
	}
	return stamp(&tool.Result{
		OK:     true,
		Output: fmt.Sprintf("%s %s (%d bytes)", verb, cleanPath, bytesWritten),
		Meta: map[string]interface{}{
			"path":          cleanPath,
			"bytes_written": bytesWritten,
			"mode":          mode,
			"created":       !fileExists,
		},
	}, start), nil
}

// isSensitiveWritePath reports whether writing to the path would touch a
// system location.
func isSensitiveWritePath(path string) bool {
	sensitive := []string{
		"/etc",
		"/bin",
		"/sbin",
		"/usr/bin",
		"/usr/sbin",
		"/System",
		"/Library",
		"/boot",
		"/dev",
		"/proc",
		"/sys",
	}
	for _, prefix := range sensitive {
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
