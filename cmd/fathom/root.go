package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/fathom/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "fathom",
	Short: "Streaming research agent",
	Long: "Fathom answers research questions with a tool-calling agent loop and\n" +
		"streams results to clients over the AI SDK data stream protocol.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".fathom", "config.json"),
		"config file path")
}

// loadConfig loads the config file, exiting on failure. Called from RunE so
// the persistent --config flag is already parsed.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
