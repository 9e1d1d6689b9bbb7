// Package cmd contains the metropolia command-line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "metropolia",
	Short: "Retrieval-augmented assistant for Metropolia's public website",
	Long: `metropolia answers questions about Metropolia University of Applied
Sciences, grounded in content ingested from the public website.

Run "metropolia ingest" to build the corpus, "metropolia migrate" to prepare
the database schema and "metropolia serve" to start the HTTP API.`,
	SilenceUsage: true,
}

var debugFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. Debug level is enabled by --debug or
// the DEBUG environment variable.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if debugFlag || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}
