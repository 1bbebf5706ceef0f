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
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration and manage API keys",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("Config file: %s\n\n", used)
		} else {
			fmt.Printf("Config file: (none; defaults + env + flags)\n\n")
		}

		fmt.Println("llm:")
		fmt.Printf("  provider:         %s\n", config.LLM.Provider)
		if config.LLM.Model != "" {
			fmt.Printf("  model:            %s\n", config.LLM.Model)
		}
		switch config.LLM.Provider {
		case "anthropic":
			fmt.Printf("  anthropic_model:  %s\n", config.LLM.AnthropicModel)
			fmt.Printf("  api_key:          %s\n", maskIfSet(config.LLM.AnthropicAPIKey))
		case "bedrock":
			fmt.Printf("  bedrock_model_id: %s\n", config.LLM.BedrockModelID)
			fmt.Printf("  bedrock_region:   %s\n", config.LLM.BedrockRegion)
			if config.LLM.BedrockProfile != "" {
				fmt.Printf("  bedrock_profile:  %s\n", config.LLM.BedrockProfile)
			}
			fmt.Printf("  access_key_id:    %s\n", maskIfSet(config.LLM.BedrockAccessKeyID))
		case "ollama":
			fmt.Printf("  ollama_endpoint:  %s\n", config.LLM.OllamaEndpoint)
			fmt.Printf("  ollama_model:     %s\n", config.LLM.OllamaModel)
		}
		fmt.Printf("  temperature:      %.1f\n", config.LLM.Temperature)
		fmt.Printf("  max_tokens:       %d\n", config.LLM.MaxTokens)
		fmt.Printf("  rate_limit:       %t\n", config.LLM.RateLimit)

		fmt.Println("database:")
		fmt.Printf("  path:             %s\n", config.Database.Path)
		fmt.Printf("  encrypt:          %t\n", config.Database.Encrypt)

		fmt.Println("memory.retention:")
		fmt.Printf("  max_idle_days:    %d\n", config.Memory.Retention.MaxIdleDays)
		fmt.Printf("  schedule:         %s\n", config.Memory.Retention.Schedule)

		fmt.Println("recall:")
		fmt.Printf("  enabled:          %t\n", config.Recall.Enabled)
		fmt.Printf("  max_sessions:     %d\n", config.Recall.MaxSessions)
		fmt.Printf("  evidence_tokens:  %d\n", config.Recall.EvidenceTokens)
		fmt.Printf("  time_budget:      %ds\n", config.Recall.TimeBudgetSeconds)

		fmt.Println("agent:")
		fmt.Printf("  profile:          %s\n", config.Agent.Profile)

		if len(config.Tools.Shell.AllowedCommands) > 0 {
			fmt.Println("tools.shell:")
			fmt.Printf("  allowed_commands: %s\n", strings.Join(config.Tools.Shell.AllowedCommands, ", "))
		}

		fmt.Println("logging:")
		fmt.Printf("  level:            %s\n", config.Logging.Level)
		fmt.Printf("  format:           %s\n", config.Logging.Format)
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example treadle.yaml to the data directory",
	Run: func(cmd *cobra.Command, args []string) {
		path := filepath.Join(config.DataDir, DefaultConfigFileName+".yaml")
		if _, err := os.Stat(path); err == nil && !configInitForce {
			fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", path)
			os.Exit(1)
		}
		if err := os.MkdirAll(config.DataDir, 0750); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(path, []byte(exampleConfig()), 0600); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Wrote %s\n", path)
		fmt.Println("\nNext: store your API key with `treadle config set-key anthropic_api_key`")
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <key-name>",
	Short: "Store a secret in the system keyring",
	Long: `Store a secret in the system keyring so it never lives in a config file.

Available keys:
  anthropic_api_key
  bedrock_access_key_id
  bedrock_secret_access_key
  bedrock_session_token
  db_encryption_key`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keyName := args[0]
		if !isKnownSecretKey(keyName) {
			fmt.Fprintf(os.Stderr, "Error: unknown key %q (available: %s)\n",
				keyName, strings.Join(ListAvailableSecretKeys(), ", "))
			os.Exit(1)
		}

		fmt.Printf("Enter %s (input hidden): ", keyName)
		value, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read input: %v\n", err)
			os.Exit(1)
		}
		if len(value) == 0 {
			fmt.Fprintln(os.Stderr, "Error: empty value, nothing saved")
			os.Exit(1)
		}

		if err := SaveSecretToKeyring(keyName, string(value)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Saved %s to system keyring\n", keyName)
	},
}

var configGetKeyCmd = &cobra.Command{
	Use:   "get-key <key-name>",
	Short: "Show a stored secret (masked)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keyName := args[0]
		value, err := GetSecretFromKeyring(keyName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s not found in keyring\n", keyName)
			os.Exit(1)
		}
		fmt.Printf("%s: %s\n", keyName, maskSecret(value))
	},
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key <key-name>",
	Short: "Remove a secret from the system keyring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keyName := args[0]
		if err := DeleteSecretFromKeyring(keyName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to delete %s: %v\n", keyName, err)
			os.Exit(1)
		}
		fmt.Printf("✓ Deleted %s from system keyring\n", keyName)
	},
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List known secret keys and whether each is stored",
	Run: func(cmd *cobra.Command, args []string) {
		for _, key := range ListAvailableSecretKeys() {
			if _, err := GetSecretFromKeyring(key); err == nil {
				fmt.Printf("  %-28s ✓ stored\n", key)
			} else {
				fmt.Printf("  %-28s not set\n", key)
			}
		}
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configGetKeyCmd)
	configCmd.AddCommand(configDeleteKeyCmd)
	configCmd.AddCommand(configListKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func isKnownSecretKey(name string) bool {
	for _, key := range ListAvailableSecretKeys() {
		if key == name {
			return true
		}
	}
	return false
}

func maskIfSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return maskSecret(s)
}

// exampleConfig is the template `config init` writes.
func exampleConfig() string {
	return heredoc.Doc(`
		# Treadle configuration.
		# Secrets (API keys, DB encryption key) do not belong here; store them
		# with: treadle config set-key <name>

		llm:
		  provider: anthropic          # anthropic, bedrock, ollama
		  anthropic_model: claude-sonnet-4-5-20250929
		  # bedrock_region: us-west-2
		  # bedrock_model_id: us.anthropic.claude-sonnet-4-5-20250929-v1:0
		  # ollama_endpoint: http://localhost:11434
		  # ollama_model: llama3.1:8b
		  temperature: 1.0
		  max_tokens: 4096
		  rate_limit: true

		database:
		  # path: ~/.treadle/treadle.db
		  encrypt: false

		memory:
		  retention:
		    max_idle_days: 30
		    schedule: "0 3 * * *"

		recall:
		  enabled: true
		  max_sessions: 3
		  evidence_token_budget: 2000
		  time_budget_seconds: 20

		agent:
		  profile: balanced            # balanced, thorough, strict, or a custom profile

		tools:
		  shell:
		    # Empty allows any command; list programs to restrict shell_execute.
		    allowed_commands: []

		logging:
		  level: warn
		  format: text
	`)
}
