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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/treadle/pkg/recall"
)

var (
	recallExclude string
	recallJSON    bool
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search past sessions for evidence",
	Long: `Run the recall pipeline directly: match stored session summaries against
the query, then drill into the matched sessions for supporting snippets.

This is the same search the agent performs through its context_recall tool,
exposed for inspection and scripting.`,
	Example: `  treadle recall "postgres connection settings we discussed"
  treadle recall --json "error budget decision" | jq .evidence
  treadle recall --exclude sess_a1b2c3d4 "earlier debugging notes"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runRecall(ctx, strings.Join(args, " ")); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	recallCmd.Flags().StringVar(&recallExclude, "exclude", "", "session ID to exclude from the search")
	recallCmd.Flags().BoolVar(&recallJSON, "json", false, "emit the raw result as JSON")
	rootCmd.AddCommand(recallCmd)
}

func runRecall(ctx context.Context, query string) error {
	provider, err := buildProvider(config)
	if err != nil {
		return err
	}

	store, err := openStore(config)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := buildRecall(store, provider, config, false)
	if err != nil {
		return err
	}

	// Explicit mode: the query is searched as given, no trigger gate.
	result := svc.Recall(ctx, query, nil, recallExclude, recall.ModeExplicit)

	if recallJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	renderRecallResult(result)
	return nil
}

func renderRecallResult(result *recall.Result) {
	switch result.Status {
	case recall.StatusSkipped:
		fmt.Printf("Skipped: %s\n", result.Reason)
		return
	case recall.StatusNotFound:
		fmt.Printf("Nothing found")
		if result.Reason != "" {
			fmt.Printf(" (%s)", result.Reason)
		}
		fmt.Println()
	case recall.StatusPartial:
		fmt.Printf("Partial results (%s):\n\n", result.Reason)
	default:
		fmt.Printf("Found %d item(s):\n\n", len(result.Evidence))
	}

	for i, ev := range result.Evidence {
		fmt.Printf("%d. [%s %s] %s (confidence %.2f)\n", i+1, ev.SessionID, ev.TurnRef,
			ev.Timestamp.Format("2006-01-02"), ev.Confidence)
		fmt.Printf("   %s\n", ev.Snippet)
		if ev.WhyRelevant != "" {
			fmt.Printf("   why: %s\n", ev.WhyRelevant)
		}
		fmt.Println()
	}

	if len(result.SearchedSessionIDs) > 0 {
		fmt.Printf("Searched %s in %dms (%d model calls)\n",
			strings.Join(result.SearchedSessionIDs, ", "), result.ElapsedMs, result.ModelCalls)
	}
}
