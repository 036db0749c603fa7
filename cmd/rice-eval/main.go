// Package main provides the rice-eval binary: offline retrieval
// evaluation from TREC files and an HTTP evaluation server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rice-eval",
		Short: "Rice Eval - retrieval evaluation toolkit",
		Long: `Rice Eval scores ranked retrieval runs against relevance judgments
and tests whether differences between systems are significant.

Run 'rice-eval evaluate' to score TREC run files.
Run 'rice-eval serve' to start the HTTP evaluation server.
Run 'rice-eval cache clear' to drop stored runs.
Run 'rice-eval journal' to inspect or replay published events.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		evaluateCmd(),
		serveCmd(),
		cacheCmd(),
		journalCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rice-eval %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
		},
	}
}

// loadConfig reads the global flags and builds the configuration and
// logger shared by every command.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	// Logs go to stderr so reports on stdout stay clean
	log := logger.NewWithWriter(os.Stderr, level, cfg.Log.Format)

	return cfg, log, nil
}
