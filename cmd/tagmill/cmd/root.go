// Package cmd provides the CLI commands for tagmill.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagmill/tagmill/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tagmill",
	Short: "tagmill - module build tag resolution service",
	Long: `Tagmill resolves destination tags for module builds.

It evaluates incoming module build events against an ordered rule
catalog and applies the winning rule's destination tag through the
build-system hub.

Quick start:
  1. Create a config file: tagmill.yaml
  2. Run: tagmill serve

Configuration:
  Config is loaded from tagmill.yaml in the current directory,
  $HOME/.tagmill/, or /etc/tagmill/.

  Environment variables can override config values with the TAGMILL_ prefix.
  Example: TAGMILL_SERVER_ADDR=:9090

Commands:
  serve       Start the event listener
  resolve     Resolve a destination tag for one build
  validate    Validate a rule catalog
  stop        Stop the running server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tagmill.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
