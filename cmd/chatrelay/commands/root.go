// Package commands implements the chatrelay CLI commands using cobra.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "chatrelay - Discord to LLM chat relay",
		Long: `chatrelay relays messages from a Discord channel to an OpenAI-compatible
chat model and posts the replies back, keeping a bounded history per channel.

Examples:
  chatrelay setup
  chatrelay serve
  chatrelay chat
  chatrelay config set-key openai`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newHealthCmd(version),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig loads the config from --config, a discovered file, or defaults.
func loadConfig(cmd *cobra.Command) (*relay.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath == "" {
		configPath = relay.FindConfigFile()
	}
	if configPath == "" {
		return relay.LoadDefaultConfig(), "", nil
	}

	cfg, err := relay.LoadConfigFromFile(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	return cfg, configPath, nil
}

// newLogger builds the process logger from the logging section and --verbose.
func newLogger(cmd *cobra.Command, cfg *relay.Config, w io.Writer) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
