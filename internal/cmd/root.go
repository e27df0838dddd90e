// Package cmd wires the orchestrator CLI: the long-running daemon plus the
// operational commands for starting, inspecting, and stopping tasks.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/intexuraos/orchestrator/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Agent-task orchestrator",
	Long: `Orchestrator launches autonomous coding-agent workers in isolated tmux
sessions bound to git worktrees, tracks their lifecycle across restarts,
and notifies external systems of task outcomes via signed, retried
webhook calls.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/intexuraos/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file.
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("INTEXURA")
	// Replace dots with underscores for nested keys in env vars,
	// e.g. INTEXURA_WEBHOOK_URL for webhook.url.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found).
	_ = viper.ReadInConfig()
}
