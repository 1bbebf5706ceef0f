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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/teradata-labs/treadle/pkg/tool"
)

const (
	// DefaultShellTimeoutSeconds applies when no timeout_seconds is given.
	DefaultShellTimeoutSeconds = 300

	// MaxShellTimeoutSeconds is the hard ceiling for timeout_seconds.
	MaxShellTimeoutSeconds = 600

	// MaxShellOutputBytes caps captured stdout+stderr. The max_output_bytes
	// parameter can lower this but never raise it.
	MaxShellOutputBytes = 1024 * 1024

	// maxCommandChars caps the command string itself. Commands beyond this
	// are almost always a model trying to inline file content.
	maxCommandChars = 40000

	// stderrTailChars is how much stderr is folded into the error message
	// on a non-zero exit.
	stderrTailChars = 500
)

// ShellExecuteTool runs shell commands with a timeout, an output cap, and
// optional command allow-listing.
type ShellExecuteTool struct {
	baseDir string
	allowed map[string]bool
}

// NewShellExecuteTool creates a shell tool rooted at baseDir. Empty baseDir
// means the current working directory. When allowedCommands is non-empty,
// only commands whose first token matches an entry may run.
func NewShellExecuteTool(baseDir string, allowedCommands []string) *ShellExecuteTool {
	if baseDir == "" {
		baseDir, _ = os.Getwd()
	}
	var allowed map[string]bool
	if len(allowedCommands) > 0 {
		allowed = make(map[string]bool, len(allowedCommands))
		for _, c := range allowedCommands {
			if c = strings.TrimSpace(c); c != "" {
				allowed[c] = true
			}
		}
	}
	return &ShellExecuteTool{baseDir: baseDir, allowed: allowed}
}

func (t *ShellExecuteTool) Name() string {
	return "shell_execute"
}

func (t *ShellExecuteTool) Description() string {
	return heredoc.Doc(`
		Executes a shell command and returns its output.

		Use this tool to:
		- Run build, test, and data processing commands
		- Inspect the filesystem (ls, find, grep, wc)
		- Chain operations with pipes and redirects

		Commands run under bash (or sh when bash is unavailable) in the
		configured working directory. Output is captured up to 1MB; commands
		are killed after the timeout. System directories are off-limits as
		working directories, and sensitive environment variables are not
		passed through.
	`)
}

func (t *ShellExecuteTool) SelectionHints() []string {
	return []string{"shell", "command", "run", "execute", "bash", "script", "terminal"}
}

func (t *ShellExecuteTool) InputSchema() *tool.JSONSchema {
	minTimeout := float64(1)
	maxTimeout := float64(MaxShellTimeoutSeconds)
	return tool.NewObjectSchema(
		"Parameters for executing shell commands",
		map[string]*tool.JSONSchema{
			"command":     tool.NewStringSchema("Shell command to execute (required)"),
			"working_dir": tool.NewStringSchema("Working directory for the command. Relative paths are resolved from the tool's base directory."),
			"env": tool.NewObjectSchema(
				"Additional environment variables (key-value pairs). Sensitive variables are filtered.",
				map[string]*tool.JSONSchema{},
				nil,
			),
			"timeout_seconds": tool.NewNumberSchema("Timeout in seconds (default: 300, max: 600)").
				WithRange(&minTimeout, &maxTimeout).
				WithDefault(DefaultShellTimeoutSeconds),
			"shell": tool.NewStringSchema("Shell to use: 'default' auto-detects bash then sh").
				WithEnum("default", "bash", "sh").
				WithDefault("default"),
			"max_output_bytes": tool.NewNumberSchema("Output capture limit in bytes (default and ceiling: 1MB)"),
		},
		[]string{"command"},
	)
}

func (t *ShellExecuteTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	command, ok := params["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    "command is required",
				Suggestion: "Provide a shell command to execute (e.g., 'ls -la')",
			},
		}, start), nil
	}

	if len(command) > maxCommandChars {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "command_too_large",
				Message:    fmt.Sprintf("command is %d characters (max: %d)", len(command), maxCommandChars),
				Suggestion: "Write large content with file_write and reference the file instead of inlining it",
			},
		}, start), nil
	}

	if res := t.checkAllowed(command); res != nil {
		return stamp(res, start), nil
	}

	workingDir := ""
	if wd, ok := params["working_dir"].(string); ok {
		workingDir = wd
	}
	cleanDir, err := resolveWorkingDir(workingDir, t.baseDir)
	if err != nil {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    err.Error(),
				Suggestion: "Provide an existing directory, or omit working_dir to use the base directory",
			},
		}, start), nil
	}
	if isBlockedWorkingDir(cleanDir) {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "unsafe_path",
				Message:    fmt.Sprintf("cannot run commands in system directory: %s", cleanDir),
				Suggestion: "Use a project or user data directory as the working directory",
			},
		}, start), nil
	}

	timeoutSeconds := DefaultShellTimeoutSeconds
	if ts, ok := params["timeout_seconds"].(float64); ok && ts > 0 {
		timeoutSeconds = int(ts)
	}
	if timeoutSeconds > MaxShellTimeoutSeconds {
		timeoutSeconds = MaxShellTimeoutSeconds
	}

	maxOutput := int64(MaxShellOutputBytes)
	if m, ok := params["max_output_bytes"].(float64); ok && m > 0 && int64(m) < maxOutput {
		maxOutput = int64(m)
	}

	shellType := "default"
	if s, ok := params["shell"].(string); ok && s != "" {
		shellType = s
	}
	binary, args, actualShell, err := detectShell(shellType, command)
	if err != nil {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeExecution,
				Message:    err.Error(),
				Suggestion: "Use shell 'default' to auto-detect an available shell",
			},
		}, start), nil
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = cleanDir
	cmd.Env = os.Environ()
	if envParam, ok := params["env"].(map[string]interface{}); ok {
		extra := make(map[string]string, len(envParam))
		for k, v := range envParam {
			if vs, ok := v.(string); ok {
				extra[k] = vs
			}
		}
		for k, v := range filterSensitiveEnv(extra) {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to create stdout pipe: %v", err)), start), nil
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to create stderr pipe: %v", err)), start), nil
	}

	if err := cmd.Start(); err != nil {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeExecution,
				Message:    fmt.Sprintf("failed to start command: %v", err),
				Suggestion: "Check command syntax and ensure required executables are installed",
			},
		}, start), nil
	}

	capture := &outputCapture{limit: maxOutput}
	var wg sync.WaitGroup
	wg.Add(2)
	go capture.drain(&wg, stdoutPipe, &capture.stdout)
	go capture.drain(&wg, stderrPipe, &capture.stderr)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(time.Duration(timeoutSeconds) * time.Second)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitDone:
		wg.Wait()
	case <-timer.C:
		timedOut = true
		waitErr = killAndDrain(cmd, waitDone, &wg)
	case <-ctx.Done():
		timedOut = true
		waitErr = killAndDrain(cmd, waitDone, &wg)
	}

	stdout, stderr, overflowed := capture.collect()

	if overflowed {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       "output_overflow",
				Message:    fmt.Sprintf("output exceeded %d bytes", maxOutput),
				Suggestion: "Pipe output through head, tail, or grep to reduce it",
			},
			Meta: map[string]interface{}{
				"command":      sanitizeCommand(command),
				"shell":        actualShell,
				"output_bytes": capture.bytes(),
			},
		}, start), nil
	}

	if timedOut {
		msg := fmt.Sprintf("command timed out after %d seconds", timeoutSeconds)
		if ctx.Err() != nil {
			msg = "command cancelled: " + ctx.Err().Error()
		}
		return stamp(&tool.Result{
			OK: false,
			Output: renderShellOutput(stdout, stderr),
			Error: &tool.Error{
				Code:       "timeout",
				Message:    msg,
				Suggestion: "Increase timeout_seconds or break the work into smaller commands",
				Details: map[string]interface{}{
					"stdout": stdout,
					"stderr": stderr,
				},
			},
			Meta: map[string]interface{}{
				"command":     sanitizeCommand(command),
				"shell":       actualShell,
				"working_dir": cleanDir,
				"timed_out":   true,
			},
		}, start), nil
	}

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("command execution error: %v", waitErr)), start), nil
		}
		exitCode = exitErr.ExitCode()
	}

	meta := map[string]interface{}{
		"command":      sanitizeCommand(command),
		"shell":        actualShell,
		"working_dir":  cleanDir,
		"exit_code":    exitCode,
		"output_bytes": capture.bytes(),
		"timed_out":    false,
	}

	if exitCode != 0 {
		msg := fmt.Sprintf("command exited with code %d", exitCode)
		if tail := clampTail(stderr, stderrTailChars); tail != "" {
			msg += "\nstderr: " + tail
		}
		return stamp(&tool.Result{
			OK: false,
			Output: renderShellOutput(stdout, stderr),
			Error: &tool.Error{
				Code:       "exit_error",
				Message:    msg,
				Retryable:  true,
				Suggestion: "Check the stderr output for details",
				Details: map[string]interface{}{
					"exit_code": exitCode,
					"stdout":    stdout,
					"stderr":    stderr,
				},
			},
			Meta: meta,
		}, start), nil
	}

	return stamp(&tool.Result{
		OK:     true,
		Output: renderShellOutput(stdout, stderr),
		Meta:   meta,
	}, start), nil
}

// checkAllowed enforces the command allow-list. The first whitespace token
// is the program name; everything after it is arguments the list does not
// constrain.
func (t *ShellExecuteTool) checkAllowed(command string) *tool.Result {
	if len(t.allowed) == 0 {
		return nil
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	program := filepath.Base(fields[0])
	if t.allowed[program] {
		return nil
	}

	names := make([]string, 0, len(t.allowed))
	for name := range t.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return &tool.Result{
		OK: false,
		Error: &tool.Error{
			Code:       "command_not_allowed",
			Message:    fmt.Sprintf("command %q is not on the allow-list", program),
			Suggestion: "Allowed commands: " + strings.Join(names, ", "),
			Details: map[string]interface{}{
				"command": program,
				"allowed": names,
			},
		},
	}
}

// outputCapture accumulates command output lines under a shared byte limit.
type outputCapture struct {
	mu         sync.Mutex
	limit      int64
	total      int64
	overflowed bool
	stdout     []string
	stderr     []string
}

func (c *outputCapture) drain(wg *sync.WaitGroup, r io.Reader, dst *[]string) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		c.mu.Lock()
		c.total += int64(len(line)) + 1
		if c.total > c.limit {
			c.overflowed = true
			c.mu.Unlock()
			return
		}
		*dst = append(*dst, line)
		c.mu.Unlock()
	}
}

func (c *outputCapture) collect() (stdout, stderr string, overflowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.stdout, "\n"), strings.Join(c.stderr, "\n"), c.overflowed
}

func (c *outputCapture) bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// killAndDrain forcefully terminates the process, then waits briefly for
// Wait and the output streams so the partial output is usable.
func killAndDrain(cmd *exec.Cmd, waitDone <-chan error, wg *sync.WaitGroup) error {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Kill)
		_ = cmd.Process.Kill()
	}

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-time.After(500 * time.Millisecond):
	}

	streams := make(chan struct{})
	go func() {
		wg.Wait()
		close(streams)
	}()
	select {
	case <-streams:
	case <-time.After(100 * time.Millisecond):
	}
	return waitErr
}

// renderShellOutput merges captured streams into the text handed back to
// the model. Stderr is kept separate so warnings stay distinguishable.
func renderShellOutput(stdout, stderr string) string {
	switch {
	case stdout == "" && stderr == "":
		return ""
	case stderr == "":
		return stdout
	case stdout == "":
		return "[stderr]\n" + stderr
	default:
		return stdout + "\n[stderr]\n" + stderr
	}
}

// detectShell resolves the shell binary and its argument form. Treadle
// targets POSIX hosts: 'default' tries bash first and falls back to sh.
func detectShell(shellType, command string) (binary string, args []string, actualType string, err error) {
	switch shellType {
	case "bash":
		binary, err = exec.LookPath("bash")
		if err != nil {
			return "", nil, "", fmt.Errorf("bash not found")
		}
		return binary, []string{"-c", command}, "bash", nil

	case "sh":
		binary, err = exec.LookPath("sh")
		if err != nil {
			return "", nil, "", fmt.Errorf("sh not found")
		}
		return binary, []string{"-c", command}, "sh", nil

	case "default":
		if binary, err = exec.LookPath("bash"); err == nil {
			return binary, []string{"-c", command}, "bash", nil
		}
		if binary, err = exec.LookPath("sh"); err == nil {
			return binary, []string{"-c", command}, "sh", nil
		}
		return "", nil, "", fmt.Errorf("no shell found (tried bash, sh)")

	default:
		return "", nil, "", fmt.Errorf("unknown shell type: %s", shellType)
	}
}

// resolveWorkingDir resolves and validates the working directory.
func resolveWorkingDir(workingDir, baseDir string) (string, error) {
	if workingDir == "" {
		return baseDir, nil
	}

	cleanDir := filepath.Clean(workingDir)
	if !filepath.IsAbs(cleanDir) {
		cleanDir = filepath.Join(baseDir, cleanDir)
	}

	info, err := os.Stat(cleanDir)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("directory does not exist: %s", cleanDir)
	}
	if err != nil {
		return "", fmt.Errorf("cannot access directory: %v", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", cleanDir)
	}
	return cleanDir, nil
}

// isBlockedWorkingDir reports whether a path is inside a system directory
// commands must not run from.
func isBlockedWorkingDir(path string) bool {
	blockedDirs := []string{
		"/etc",
		"/bin",
		"/sbin",
		"/boot",
		"/sys",
		"/proc",
		"/private/etc",
		"/System",
		"/Library",
	}

	cleanPath := filepath.Clean(path)
	for _, blocked := range blockedDirs {
		if cleanPath == blocked || strings.HasPrefix(cleanPath, blocked+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// filterSensitiveEnv drops credential-bearing variables from user-supplied
// environment maps before they reach the child process.
func filterSensitiveEnv(envVars map[string]string) map[string]string {
	blockedVars := map[string]bool{
		"AWS_SECRET_ACCESS_KEY": true,
		"AWS_SESSION_TOKEN":     true,
		"GITHUB_TOKEN":          true,
		"ANTHROPIC_API_KEY":     true,
		"OPENAI_API_KEY":        true,
		"DATABASE_PASSWORD":     true,
		"DB_PASSWORD":           true,
		"DB_PASS":               true,
		"MYSQL_PASSWORD":        true,
		"POSTGRES_PASSWORD":     true,
	}

	filtered := make(map[string]string)
	for k, v := range envVars {
		keyUpper := strings.ToUpper(k)
		if blockedVars[keyUpper] || strings.Contains(keyUpper, "SECRET") || strings.Contains(keyUpper, "PASSWORD") {
			continue
		}
		filtered[k] = v
	}
	return filtered
}

var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key)[=\s:]+[^\s'";]+`),
	regexp.MustCompile(`(?i)(password)[=\s:]+[^\s'";]+`),
	regexp.MustCompile(`(?i)(token)[=\s:]+[^\s'";]+`),
	regexp.MustCompile(`(?i)(secret)[=\s:]+[^\s'";]+`),
	regexp.MustCompile(`(?i)(key)[=\s:]+[^\s'";]+`),
}

// sanitizeCommand redacts credential-looking fragments before the command
// is recorded in metadata or traces.
func sanitizeCommand(command string) string {
	sanitized := command
	for _, pattern := range redactPatterns {
		sanitized = pattern.ReplaceAllString(sanitized, "${1}=***")
	}
	if len(sanitized) > 200 {
		sanitized = sanitized[:200] + "..."
	}
	return sanitized
}

// clampTail returns up to limit characters from the end of text.
func clampTail(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return "..." + string(runes[len(runes)-limit:])
}

// stamp fills in the execution time on a result.
func stamp(res *tool.Result, start time.Time) *tool.Result {
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	return res
}
