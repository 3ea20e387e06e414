// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-digest/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "github-digest",
	Short: "A CLI tool that emails a daily digest of GitHub repository activity.",
	Long: `github-digest collects the issues and pull requests opened, updated and
closed in a list of GitHub repositories over the last 24 hours, renders an
HTML summary and sends it by email.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSlice("repos", nil, "Repositories to watch as owner/name, overriding the config (comma-separated)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory for cached GitHub responses (default: user cache dir)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Do not read or write the GitHub response cache")
}

// newLogger discards everything unless --verbose is set.
func newLogger(cmd *cobra.Command) *log.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := log.New(io.Discard, "", log.LstdFlags)
	if verbose {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// loadConfig reads the config file and environment, then applies the flags
// the user set. Flag values go through the same validation as the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	var o config.Overrides
	o.Repositories, _ = cmd.Flags().GetStringSlice("repos")
	if f := cmd.Flags().Lookup("lookback"); f != nil && f.Changed {
		lookback, _ := cmd.Flags().GetDuration("lookback")
		o.Lookback = &lookback
	}
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		o.Concurrency = &concurrency
	}
	if cmd.Flags().Changed("cache-dir") {
		dir, _ := cmd.Flags().GetString("cache-dir")
		o.CacheDir = &dir
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		dir := ""
		o.CacheDir = &dir
	}
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	return cfg, nil
}
