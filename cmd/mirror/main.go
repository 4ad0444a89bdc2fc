package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor  bool
	userFlag string
)

var rootCmd = &cobra.Command{
	Use:           "mirror",
	Short:         "Profile ingestion and consent-gated mirror and contact requests",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", os.Getenv("MIRROR_USER"), "act as this user id (env MIRROR_USER)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, mcpCmd)
	rootCmd.AddCommand(profileCmd, notificationsCmd, configCmd)
	rootCmd.AddCommand(newRequestCmd(mirrorProtocol), newRequestCmd(contactProtocol))
}

// setupLogging installs a text handler on stderr at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func requireUser() (string, error) {
	if strings.TrimSpace(userFlag) == "" {
		return "", fmt.Errorf("--user is required (or set MIRROR_USER)")
	}
	return userFlag, nil
}
