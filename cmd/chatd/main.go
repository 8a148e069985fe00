// Command chatd runs the chat daemon and its companion CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/chatd/internal/config"
)

// cfgPath is the resolved config file path, set by the root command's
// persistent flag before any subcommand's RunE runs.
var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "chatd",
	Short: "chatd is a multi-session conversational agent server",
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".chatd", "config.json")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file path")
}

// loadConfig loads the config at cfgPath, exiting the process on failure.
// It's the one place every subcommand goes through, so a bad config file
// fails the same way no matter which subcommand triggered the load.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs a text slog handler on stderr at the level named
// by cfg.LogLevel.
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

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
