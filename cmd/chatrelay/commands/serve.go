package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels/discord"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `chatrelay serve` command that runs the Discord bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and relay messages",
		Long: `Start chatrelay as a service: connect to Discord and answer every message
posted in the configured channel.

Examples:
  chatrelay serve
  chatrelay serve --config ./config.yaml -v`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg, os.Stdout)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Discord.Token == "" {
		return errors.New("no Discord token found. Set DISCORD_TOKEN or run: chatrelay config set-key discord")
	}
	if cfg.API.APIKey == "" {
		logger.Warn("no API key found. Set OPENAI_API_KEY or run: chatrelay config set-key openai")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channelMgr := channels.NewManager(logger)
	if err := channelMgr.Register(discord.New(cfg.Discord, logger)); err != nil {
		return fmt.Errorf("registering discord: %w", err)
	}

	client := relay.NewLLMClient(cfg.API, cfg.RequestTimeout, logger)
	r := relay.New(cfg, channelMgr, client, logger)

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	logger.Info("chatrelay running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"channel_name", cfg.ChannelName,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	stopWithTimeout(r, logger)
	return nil
}

// stopWithTimeout stops the relay, giving up after 10 seconds.
func stopWithTimeout(r *relay.Relay, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
}
