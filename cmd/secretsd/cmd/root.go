// Package cmd is secretsd's command-line launcher, built the way the
// teacher's cli/cmd package builds its own root command: cobra for
// subcommands, viper bound to persistent pflags for configuration, with
// environment variables and an optional config file layered underneath.
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
	Use:   "secretsd",
	Short: "Local secrets storage and delegated-cryptography daemon",
	Long: `secretsd stores application secrets under named collections and
performs delegated cryptographic operations via pluggable storage,
encryption and authentication backends, accessed over a local IPC
socket.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.secretsd.yaml)")
	rootCmd.PersistentFlags().String("socket", "", "path to the Unix domain socket to listen on")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the catalogue database and filesystem-backed plugins")
	rootCmd.PersistentFlags().String("passphrase", "", "bootstrap passphrase (or SECRETSD_PASSPHRASE env var)")
	rootCmd.PersistentFlags().Bool("test-mode", false, "only load plugins built for test use (is_test=true)")

	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint for the optional s3 storage plugin")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use TLS for S3 connections")

	rootCmd.PersistentFlags().Bool("audit-enabled", false, "record every verb completion to the audit log")
	rootCmd.PersistentFlags().String("audit-type", "file", "audit backend: file or syslog")
	rootCmd.PersistentFlags().String("audit-file-path", "", "audit log path when audit-type=file (default: <data-dir>/audit.jsonl)")
	rootCmd.PersistentFlags().String("audit-log-level", "info", "audit log verbosity: info, warn or error")

	bindFlagOrPanic("socket", "socket")
	bindFlagOrPanic("data_dir", "data-dir")
	bindFlagOrPanic("passphrase", "passphrase")
	bindFlagOrPanic("test_mode", "test-mode")
	bindFlagOrPanic("s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("s3.region", "s3-region")
	bindFlagOrPanic("s3.bucket", "s3-bucket")
	bindFlagOrPanic("s3.prefix", "s3-prefix")
	bindFlagOrPanic("s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("s3.use_ssl", "s3-use-ssl")

	bindFlagOrPanic("audit.enabled", "audit-enabled")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.file_path", "audit-file-path")
	bindFlagOrPanic("audit.log_level", "audit-log-level")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/secretsd")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".secretsd")
	}

	viper.SetEnvPrefix("SECRETSD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("socket", "/run/secretsd/secretsd.sock")
	viper.SetDefault("data_dir", ".secretsd")
	viper.SetDefault("test_mode", false)
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.prefix", "secretsd/")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("audit.type", "file")
	viper.SetDefault("audit.log_level", "info")
}
