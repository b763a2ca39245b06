package commands

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X ...commands.version=...".
var version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kitchen-buddy",
	Short: "Voice cooking assistant server",
	Long: `kitchen-buddy runs a turn-taking voice assistant over WebSocket.

Each connection streams audio segments that are transcribed, answered by a
language model and spoken back, one turn at a time.`,
	SilenceUsage: true,
	Version:      version,
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(talkCmd)
}
