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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/treadle/internal/log"
	"github.com/teradata-labs/treadle/internal/version"
	treadleconfig "github.com/teradata-labs/treadle/pkg/config"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "treadle",
	Short:   "Treadle - phase-driven LLM agent loop with session recall",
	Long:    `Treadle runs a single LLM agent through an explicit reason/act/reflect step protocol, with tool selection, budget enforcement, persistent session memory, and recursive recall over past conversations.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Custom help template with Support at bottom
	rootCmd.SetHelpTemplate(`{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}

Quick Start:
  1. Save your API key:  treadle config set-key anthropic_api_key
  2. Chat:               treadle chat "list the files in this directory"
  3. Search history:     treadle recall "what did we decide about retries"

Support:
  GitHub: https://github.com/teradata-labs/treadle/issues
  Documentation: https://github.com/teradata-labs/treadle
`)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $TREADLE_DATA_DIR/treadle.yaml)")

	// LLM flags
	rootCmd.PersistentFlags().String("provider", "anthropic", "LLM provider (anthropic, bedrock, ollama)")
	rootCmd.PersistentFlags().String("api-key", "", "Anthropic API key (or use keyring/env)")
	rootCmd.PersistentFlags().String("model", "", "model override for the active provider")
	rootCmd.PersistentFlags().Float64("temperature", 1.0, "LLM temperature")
	rootCmd.PersistentFlags().Int("max-tokens", 4096, "maximum tokens per model turn")

	// Database flags
	// GetTreadleDataDir respects the TREADLE_DATA_DIR environment variable
	defaultDBPath := filepath.Join(treadleconfig.GetTreadleDataDir(), "treadle.db")
	rootCmd.PersistentFlags().String("db", defaultDBPath, "session database path")

	// Loop profile flags
	rootCmd.PersistentFlags().String("profile", "balanced", "loop budget profile (builtin: balanced, thorough, strict)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("llm.anthropic_api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	_ = viper.BindPFlag("llm.max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))

	_ = viper.BindPFlag("agent.profile", rootCmd.PersistentFlags().Lookup("profile"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set, then installs
// the global logger.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := log.Configure(config.Logging.Level, config.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
}
