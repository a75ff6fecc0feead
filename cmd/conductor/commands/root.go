// Package commands provides the CLI commands for conductor.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/conductor-html/conductor/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	debugMode bool
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor - declarative command dispatch for HTML documents",
	Long: `Conductor wires commands declared in HTML attributes to a dispatch
engine: buttons carry command/commandfor pairs, arbitrary events bind
through command-on, and and-then chains schedule follow-up commands.

Run 'conductor run page.html' to process documents in batch, or
'conductor serve' to host them behind an HTTP API with live updates.`,
	Version: Version,
	// If no subcommand, show help
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		initLogging()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Debug logging to stderr (implies --print-logs)")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("conductor %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(commandsCmd)
}

// initLogging applies the global logging flags. Logs stay off stdout
// so piped document output is never polluted; --print-logs routes them
// to stderr.
func initLogging() {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	cfg.Pretty = true
	if debugMode {
		cfg.Level = logging.DebugLevel
	}
	if printLogs || debugMode {
		cfg.Output = os.Stderr
	} else {
		cfg.Output = io.Discard
	}
	logging.Init(cfg)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
