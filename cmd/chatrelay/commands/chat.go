package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels/console"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
	"github.com/spf13/cobra"
)

// newChatCmd creates the `chatrelay chat` command for a local terminal session.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the relay from the terminal",
		Long: `Open an interactive terminal session that goes through the same history,
budget and command handling as the Discord bot. Every ! command works.
Type /exit or press Ctrl+D to leave.

Examples:
  chatrelay chat
  chatrelay chat --name alice`,
		RunE: runChat,
	}
	cmd.Flags().String("name", "", "display name used for your messages (default: $USER)")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Logs go to stderr so they do not interleave with the prompt.
	logger := newLogger(cmd, cfg, os.Stderr)

	userName, _ := cmd.Flags().GetString("name")
	if userName == "" {
		userName = os.Getenv("USER")
	}

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".chatrelay_history")
	}

	term := console.New(console.Config{
		ChatName:    cfg.ChannelName,
		UserName:    userName,
		BotName:     cfg.Name,
		HistoryFile: historyFile,
	}, logger)

	channelMgr := channels.NewManager(logger)
	if err := channelMgr.Register(term); err != nil {
		return err
	}

	client := relay.NewLLMClient(cfg.API, cfg.RequestTimeout, logger)
	r := relay.New(cfg, channelMgr, client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	fmt.Printf("Chatting with %s (%s). Type !help for commands, /exit to quit.\n", cfg.Name, cfg.Models.Standard)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	select {
	case <-term.Done():
	case <-sigChan:
	}

	stopWithTimeout(r, logger)
	return nil
}
