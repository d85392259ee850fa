// Package cmd is secretsctl's command-line client, built the same way
// as secretsd's launcher: cobra subcommands with viper-bound persistent
// flags, layered over an optional config file and environment
// variables.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "secretsctl",
	Short: "Command-line client for secretsd",
	Long: `secretsctl talks to a running secretsd over its local IPC socket: it
creates and deletes collections, and sets, reads and removes secrets
within them.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.secretsctl.yaml)")
	rootCmd.PersistentFlags().String("socket", "", "path to secretsd's Unix domain socket")

	bindFlagOrPanic("socket", "socket")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	viper.SetDefault("socket", "/run/secretsd/secretsd.sock")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".secretsctl")
	}

	viper.SetEnvPrefix("SECRETSCTL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}
