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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/vigil/internal/version"
	"github.com/teradata-labs/vigil/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - proactive agent runtime",
	Long: `Vigil runs a single proactive agent: a heartbeat loop that senses
internal state, decides when to think, and reaches out on its own
instead of only answering.

Press Ctrl+C to gracefully shutdown.`,
	Version: version.Get(),
	RunE:    runAgent,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $DATA_PATH/vigil.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default: ~/.vigil)")
	rootCmd.PersistentFlags().Bool("console", false, "attach an interactive console channel on stdin/stdout")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("channel.console", rootCmd.PersistentFlags().Lookup("console"))

	viper.SetEnvPrefix("VIGIL")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath resolves the effective config file location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if dir := viper.GetString("data.dir"); dir != "" {
		_ = os.Setenv("DATA_PATH", dir)
	}
	return config.DefaultConfigPath()
}
