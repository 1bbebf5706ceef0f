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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/treadle/internal/log"
	"github.com/teradata-labs/treadle/pkg/agent"
	treadleconfig "github.com/teradata-labs/treadle/pkg/config"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage agent loop budget profiles",
	Long: `Profiles bundle the loop budgets: step limits, no-progress and
repeated-action cutoffs, tool selection width, and escalation thresholds.

Builtin profiles are balanced, thorough, and strict. Drop a YAML file in
` + "`<data-dir>/profiles/`" + ` to add your own; the file name (minus extension)
becomes the profile name.`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := openProfiles()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer registry.Close()

		for _, name := range registry.List() {
			marker := " "
			if name == config.Agent.Profile {
				marker = "*"
			}
			loop, _ := registry.Get(name)
			fmt.Printf("%s %-12s steps %d-%d, selection top-%d\n",
				marker, name, loop.BaseStepLimit, loop.MaxStepLimit, loop.Selection.TopK)
		}
		fmt.Println("\n* = active (agent.profile)")
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile's budgets",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := openProfiles()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer registry.Close()

		loop, ok := registry.Get(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown profile %q (available: %s)\n",
				args[0], strings.Join(registry.List(), ", "))
			os.Exit(1)
		}

		fmt.Printf("profile: %s\n\n", args[0])
		fmt.Printf("base_step_limit:       %d\n", loop.BaseStepLimit)
		fmt.Printf("max_step_limit:        %d\n", loop.MaxStepLimit)
		fmt.Printf("step_limit_per_tool:   %d\n", loop.StepLimitPerTool)
		fmt.Printf("no_progress_limit:     %d\n", loop.NoProgressLimit)
		fmt.Printf("repeated_action_limit: %d\n", loop.RepeatedActionLimit)
		fmt.Println("selection:")
		fmt.Printf("  enabled:        %t\n", loop.Selection.Enabled)
		fmt.Printf("  top_k:          %d\n", loop.Selection.TopK)
		fmt.Printf("  retry_top_k:    %d\n", loop.Selection.RetryTopK)
		fmt.Printf("  always_include: %s\n", strings.Join(loop.Selection.AlwaysInclude, ", "))
		fmt.Println("escalation:")
		fmt.Printf("  enabled:                  %t\n", loop.Escalation.Enabled)
		fmt.Printf("  min_tool_calls:           %d\n", loop.Escalation.MinToolCalls)
		fmt.Printf("  min_distinct_tools:       %d\n", loop.Escalation.MinDistinctTools)
		fmt.Printf("  min_failed_tool_calls:    %d\n", loop.Escalation.MinFailedToolCalls)
		fmt.Printf("  min_reflect_cycles:       %d\n", loop.Escalation.MinReflectCycles)
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	rootCmd.AddCommand(profilesCmd)
}

func openProfiles() (*agent.ProfileRegistry, error) {
	return agent.NewProfileRegistry(treadleconfig.GetTreadleSubDir("profiles"), log.Logger())
}
