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
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/treadle/internal/log"
	"github.com/teradata-labs/treadle/pkg/agent"
	"github.com/teradata-labs/treadle/pkg/tool"
	"github.com/teradata-labs/treadle/pkg/tool/builtin"
)

var (
	chatSession   string
	chatContext   string
	chatNoRecall  bool
	chatShowSteps bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run one agent turn against the configured provider",
	Long: `Run one turn of the agent loop. The message comes from the arguments,
or from stdin when no arguments are given.

Each turn is persisted to the session database. Pass --session to continue
an earlier conversation; otherwise a fresh session is created and its ID
printed so you can resume it later.`,
	Example: `  treadle chat "What's the capital of France?"
  treadle chat --session sess_a1b2c3d4 "And its population?"
  cat report.md | treadle chat "Summarize this document"
  treadle chat --no-recall "Ignore past sessions for this one"`,
	Run: func(cmd *cobra.Command, args []string) {
		message := strings.TrimSpace(strings.Join(args, " "))
		if message == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read stdin: %v\n", err)
				os.Exit(1)
			}
			message = strings.TrimSpace(string(data))
		}
		if message == "" {
			fmt.Fprintln(os.Stderr, "Error: no message given (pass it as an argument or on stdin)")
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runChat(ctx, message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session ID to continue (default: new session)")
	chatCmd.Flags().StringVar(&chatContext, "context", "", "extra system context for this turn")
	chatCmd.Flags().BoolVar(&chatNoRecall, "no-recall", false, "disable recall over past sessions")
	chatCmd.Flags().BoolVar(&chatShowSteps, "show-steps", false, "print step and tool-call counts after the reply")
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context, message string) error {
	provider, err := buildProvider(config)
	if err != nil {
		return err
	}

	store, err := openStore(config)
	if err != nil {
		return err
	}
	defer store.Close()

	recallSvc, err := buildRecall(store, provider, config, chatNoRecall)
	if err != nil {
		return err
	}

	loop, err := resolveLoop(config.Agent.Profile)
	if err != nil {
		return err
	}

	sessionID := chatSession
	if sessionID == "" {
		sessionID = newSessionID()
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}

	registry := tool.NewRegistry()
	builtin.RegisterAll(registry, builtin.Config{
		BaseDir:         sandboxDir(config),
		AllowedCommands: config.Tools.Shell.AllowedCommands,
		Notes:           store,
		SessionID:       sessionID,
	})

	ag, err := agent.New(agent.Config{
		Provider: provider,
		Tools:    registry,
		Recall:   recallSvc,
		Memory:   store,
		Loop:     loop,
		Logger:   log.Logger(),
	})
	if err != nil {
		return err
	}

	result, err := ag.Run(ctx, agent.RunRequest{
		ClientID:      sessionID,
		UserContent:   message,
		SystemContext: chatContext,
	})
	if err != nil {
		return err
	}

	renderResult(result)
	return nil
}

// renderResult prints the answer to stdout and run diagnostics to stderr,
// so piped output stays clean.
func renderResult(result *agent.RunResult) {
	fmt.Println(result.Content)

	switch result.Type {
	case agent.ResultFeedback:
		fmt.Fprintln(os.Stderr, "\n[agent is waiting for more input; reply with `treadle chat --session <id> ...`]")
	case agent.ResultEscalate:
		fmt.Fprintln(os.Stderr, "\n[escalated]")
		if esc := result.Escalation; esc != nil {
			fmt.Fprintf(os.Stderr, "  reason:        %s\n", esc.Reason)
			fmt.Fprintf(os.Stderr, "  tools used:    %s\n", strings.Join(esc.ToolsUsed, ", "))
			fmt.Fprintf(os.Stderr, "  tool calls:    %d (%d failed)\n", esc.ToolCallsMade, esc.FailedToolCalls)
			fmt.Fprintf(os.Stderr, "  reflect cycles: %d\n", esc.ReflectCycles)
		}
	default:
		if result.EndStatus != agent.EndSolved && result.EndStatus != "" {
			fmt.Fprintf(os.Stderr, "\n[ended %s]\n", result.EndStatus)
		}
	}

	if chatShowSteps {
		fmt.Fprintf(os.Stderr, "\n%d steps, %d tool calls\n", result.TotalSteps, result.ToolCallsMade)
	}
}
