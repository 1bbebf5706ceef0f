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
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/treadle/internal/log"
	"github.com/teradata-labs/treadle/pkg/memory"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored conversation sessions",
	Long:  `List, inspect, delete, and purge the sessions Treadle has persisted.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		sessions, err := store.ListSessions(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list sessions: %v\n", err)
			os.Exit(1)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			fmt.Println("\nStart one with: treadle chat \"hello\"")
			return
		}

		fmt.Printf("%-15s %-40s %6s %8s  %s\n", "ID", "TITLE", "TURNS", "TOKENS", "UPDATED")
		fmt.Println(strings.Repeat("-", 90))
		for _, s := range sessions {
			fmt.Printf("%-15s %-40s %6d %8d  %s\n",
				s.ID,
				truncate(s.Title, 40),
				s.TurnCount,
				s.TotalTokens,
				formatTimeAgo(s.UpdatedAt),
			)
		}
		fmt.Printf("\n%d session(s)\n", len(sessions))
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the turns of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		turns, err := store.LoadSessionTurns(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load session: %v\n", err)
			os.Exit(1)
		}
		if len(turns) == 0 {
			fmt.Fprintf(os.Stderr, "Error: session %s not found or empty\n", args[0])
			os.Exit(1)
		}

		for _, t := range turns {
			fmt.Printf("[%s] %s (%s, %d tokens)\n", t.Ref, t.Role, t.CreatedAt.Format("2006-01-02 15:04"), t.TokenCount)
			fmt.Println(t.Content)
			fmt.Println()
		}
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and all its turns",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := store.DeleteSession(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to delete session: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Deleted session %s\n", args[0])
	},
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store-wide counters",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		stats, err := store.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read stats: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sessions:         %d\n", stats.SessionCount)
		fmt.Printf("Turns:            %d\n", stats.TurnCount)
		fmt.Printf("Compressed turns: %d\n", stats.CompressedTurnCount)
		fmt.Printf("Tool events:      %d\n", stats.ToolEventCount)
		fmt.Printf("Total tokens:     %d\n", stats.TotalTokens)
		fmt.Printf("Database:         %s\n", config.Database.Path)
	},
}

var purgeOlderThan int

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions idle longer than the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		days := purgeOlderThan
		if days <= 0 {
			days = config.Memory.Retention.MaxIdleDays
		}
		purged, err := store.PurgeIdleSessions(context.Background(), time.Duration(days)*24*time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: purge failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Purged %d session(s) idle longer than %d days\n", purged, days)
	},
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the retention sweeper in the foreground",
	Long: `Run the cron-scheduled retention sweeper until interrupted. Sessions
idle longer than memory.retention.max_idle_days are purged on each tick
of memory.retention.schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		sweeper, err := memory.NewSweeper(store, memory.RetentionPolicy{
			MaxIdleAge: time.Duration(config.Memory.Retention.MaxIdleDays) * 24 * time.Hour,
			Schedule:   config.Memory.Retention.Schedule,
		}, log.Logger())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		sweeper.Start()
		fmt.Printf("Sweeper running (schedule %q, max idle %d days). Ctrl+C to stop.\n",
			config.Memory.Retention.Schedule, config.Memory.Retention.MaxIdleDays)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		sweeper.Stop()
		fmt.Println("\nSweeper stopped.")
	},
}

func init() {
	sessionsPurgeCmd.Flags().IntVar(&purgeOlderThan, "older-than", 0, "override retention window in days (default: memory.retention.max_idle_days)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	sessionsCmd.AddCommand(sessionsSweepCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// truncate shortens s for table display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// formatTimeAgo renders a timestamp as a relative age.
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d weeks ago", int(d.Hours()/(24*7)))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%d months ago", int(d.Hours()/(24*30)))
	default:
		return fmt.Sprintf("%d years ago", int(d.Hours()/(24*365)))
	}
}
