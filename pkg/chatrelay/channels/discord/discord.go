// Package discord implements the Discord channel for chatrelay using discordgo.
//
// Features:
//   - Receive text with mentions replaced by readable names
//   - All attachments forwarded, images flagged for vision input
//   - Reactions (add/remove) used as a progress indicator
//   - File uploads with caption
//   - Guild allowlist
//   - Automatic reconnection via discordgo's gateway
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// AllowedGuilds restricts which guild (server) IDs the bot listens in.
	// Empty means every guild.
	AllowedGuilds []string `yaml:"allowed_guilds"`
}

// Discord implements channels.Channel, channels.MediaChannel and
// channels.ReactionChannel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// messages is the channel for incoming messages forwarded to the relay.
	messages chan *channels.IncomingMessage

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("component", "discord"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// ---------- Channel Interface ----------

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(_ context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			d.logger.Warn("discord: close failed", "error", err)
		}
	}
	d.connected.Store(false)
	d.logger.Info("discord: disconnected")
	return nil
}

// Send sends a text message to the specified channel. Callers split long
// text beforehand; Discord rejects messages above its size limit.
func (d *Discord) Send(_ context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	msgSend := &discordgo.MessageSend{Content: message.Content}
	if message.ReplyTo != "" {
		msgSend.Reference = &discordgo.MessageReference{MessageID: message.ReplyTo, ChannelID: to}
	}
	if _, err := d.session.ChannelMessageSendComplex(to, msgSend); err != nil {
		d.errorCount.Add(1)
		return fmt.Errorf("discord: send: %w", err)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// ---------- MediaChannel Interface ----------

// SendMedia uploads a file to the specified channel.
func (d *Discord) SendMedia(_ context.Context, to string, media *channels.MediaMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}
	if len(media.Data) == 0 {
		return fmt.Errorf("discord: no media data")
	}

	filename := media.Filename
	if filename == "" {
		filename = "file"
	}

	msgSend := &discordgo.MessageSend{
		Content: media.Caption,
		Files: []*discordgo.File{
			{Name: filename, ContentType: media.MimeType, Reader: bytes.NewReader(media.Data)},
		},
	}
	if media.ReplyTo != "" {
		msgSend.Reference = &discordgo.MessageReference{MessageID: media.ReplyTo, ChannelID: to}
	}

	if _, err := d.session.ChannelMessageSendComplex(to, msgSend); err != nil {
		d.errorCount.Add(1)
		return fmt.Errorf("discord: send media: %w", err)
	}
	return nil
}

// ---------- ReactionChannel Interface ----------

// AddReaction adds a reaction emoji to a message.
func (d *Discord) AddReaction(_ context.Context, chatID, messageID, emoji string) error {
	if d.session == nil {
		return nil
	}
	return d.session.MessageReactionAdd(chatID, messageID, emoji)
}

// RemoveReaction removes the bot's own reaction from a message.
func (d *Discord) RemoveReaction(_ context.Context, chatID, messageID, emoji string) error {
	if d.session == nil {
		return nil
	}
	return d.session.MessageReactionRemove(chatID, messageID, emoji, "@me")
}

// ---------- Event Handlers ----------

// onMessageCreate handles incoming Discord messages.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	if len(d.cfg.AllowedGuilds) > 0 && m.GuildID != "" && !slices.Contains(d.cfg.AllowedGuilds, m.GuildID) {
		return
	}

	incoming := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		ChatID:    m.ChannelID,
		ChatName:  d.channelName(s, m.ChannelID),
		From:      m.Author.ID,
		FromName:  displayName(m),
		Content:   m.ContentWithMentionsReplaced(),
		Timestamp: m.Timestamp,
	}

	for _, att := range m.Attachments {
		incoming.Attachments = append(incoming.Attachments, channels.Attachment{
			URL:      att.URL,
			Filename: att.Filename,
			MimeType: att.ContentType,
			IsImage:  channels.IsImageType(att.ContentType) || att.Width > 0,
		})
	}

	d.lastMsg.Store(time.Now())

	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("discord: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// channelName resolves a channel id to its name, preferring the state cache.
func (d *Discord) channelName(s *discordgo.Session, channelID string) string {
	if ch, err := s.State.Channel(channelID); err == nil && ch != nil {
		return ch.Name
	}
	ch, err := s.Channel(channelID)
	if err != nil {
		d.errorCount.Add(1)
		d.logger.Warn("discord: channel lookup failed", "channel_id", channelID, "error", err)
		return ""
	}
	return ch.Name
}

// displayName returns the name users see: guild nickname, then global
// display name, then username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Discord)(nil)
	_ channels.MediaChannel    = (*Discord)(nil)
	_ channels.ReactionChannel = (*Discord)(nil)
)
