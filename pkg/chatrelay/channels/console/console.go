// Package console implements a local terminal channel backed by readline,
// used by `chatrelay chat` to talk to the relay without a Discord server.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// ChatID is the conversation id used for every console message.
const ChatID = "console"

// Config holds console channel configuration.
type Config struct {
	// ChatName is reported as the chat name of every message, so it must
	// match the relay's channel_name.
	ChatName string

	// UserName is the display name of the local user.
	UserName string

	// BotName prefixes replies.
	BotName string

	// HistoryFile keeps readline history between sessions. Optional.
	HistoryFile string

	// MediaDir is where received files are written. Defaults to the OS temp dir.
	MediaDir string

	// Stdin and Stdout override the terminal, mainly for tests.
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// Console implements channels.Channel, channels.MediaChannel and
// channels.ReactionChannel on a terminal.
type Console struct {
	cfg    Config
	logger *slog.Logger

	rl       *readline.Instance
	out      io.Writer
	outMu    sync.Mutex
	messages chan *channels.IncomingMessage
	done     chan struct{}

	seq        atomic.Int64
	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64
}

// New creates a console channel.
func New(cfg Config, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserName == "" {
		cfg.UserName = "you"
	}
	if cfg.BotName == "" {
		cfg.BotName = "bot"
	}
	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		cfg:      cfg,
		logger:   logger.With("component", "console"),
		out:      out,
		messages: make(chan *channels.IncomingMessage, 16),
		done:     make(chan struct{}),
	}
}

// Name returns "console".
func (c *Console) Name() string { return "console" }

// Connect opens the readline prompt and starts reading lines.
func (c *Console) Connect(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.cfg.UserName + "> ",
		HistoryFile:     c.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           c.cfg.Stdin,
		Stdout:          c.cfg.Stdout,
	})
	if err != nil {
		return fmt.Errorf("console: opening readline: %w", err)
	}

	c.rl = rl
	c.outMu.Lock()
	c.out = rl.Stdout()
	c.outMu.Unlock()
	c.connected.Store(true)

	go c.readLoop(ctx)
	return nil
}

// Disconnect closes the prompt.
func (c *Console) Disconnect() error {
	c.connected.Store(false)
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

// Done is closed when the user ends the session (Ctrl+C, Ctrl+D or /exit).
func (c *Console) Done() <-chan struct{} { return c.done }

// Send prints a reply.
func (c *Console) Send(_ context.Context, _ string, message *channels.OutgoingMessage) error {
	c.printf("%s: %s\n", c.cfg.BotName, message.Content)
	return nil
}

// Receive returns the incoming messages channel.
func (c *Console) Receive() <-chan *channels.IncomingMessage { return c.messages }

// IsConnected returns true while the prompt is open.
func (c *Console) IsConnected() bool { return c.connected.Load() }

// Health returns the channel health status.
func (c *Console) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := c.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     c.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(c.errorCount.Load()),
	}
}

// SendMedia writes the file to MediaDir and prints its path with the caption.
func (c *Console) SendMedia(_ context.Context, _ string, media *channels.MediaMessage) error {
	dir := c.cfg.MediaDir
	if dir == "" {
		dir = os.TempDir()
	}

	ext := filepath.Ext(media.Filename)
	f, err := os.CreateTemp(dir, "chatrelay-*"+ext)
	if err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("console: creating media file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(media.Data); err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("console: writing media file: %w", err)
	}

	if media.Caption != "" {
		c.printf("%s: %s\n", c.cfg.BotName, media.Caption)
	}
	c.printf("%s: [file saved to %s]\n", c.cfg.BotName, f.Name())
	return nil
}

// AddReaction shows the reaction as a status line.
func (c *Console) AddReaction(_ context.Context, _, _, emoji string) error {
	c.printf("%s\n", emoji)
	return nil
}

// RemoveReaction is a no-op on a terminal.
func (c *Console) RemoveReaction(context.Context, string, string, string) error {
	return nil
}

func (c *Console) readLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.messages)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if !errors.Is(err, readline.ErrInterrupt) && !errors.Is(err, io.EOF) {
				c.logger.Warn("console: read failed", "error", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return
		}

		msg := c.newMessage(line)
		select {
		case c.messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Console) newMessage(text string) *channels.IncomingMessage {
	now := time.Now()
	c.lastMsg.Store(now)
	return &channels.IncomingMessage{
		ID:        strconv.FormatInt(c.seq.Add(1), 10),
		Channel:   "console",
		ChatID:    ChatID,
		ChatName:  c.cfg.ChatName,
		From:      "local",
		FromName:  c.cfg.UserName,
		Content:   text,
		Timestamp: now,
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Console)(nil)
	_ channels.MediaChannel    = (*Console)(nil)
	_ channels.ReactionChannel = (*Console)(nil)
)
