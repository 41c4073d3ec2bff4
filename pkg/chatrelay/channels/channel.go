// Package channels defines the interfaces and types for chatrelay
// communication channels. Each channel (Discord, the local console) implements
// the Channel interface to receive and send messages in a unified way.
package channels

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Channel defines the interface that every communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord", "console").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a text message to the specified chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// MediaChannel extends Channel with file attachments.
type MediaChannel interface {
	Channel

	// SendMedia sends a file with an optional caption.
	SendMedia(ctx context.Context, to string, media *MediaMessage) error
}

// ReactionChannel extends Channel with message reactions. Reactions are used
// as the "in progress" indicator on the message being answered.
type ReactionChannel interface {
	Channel

	// AddReaction adds a reaction emoji to a specific message.
	AddReaction(ctx context.Context, chatID, messageID, emoji string) error

	// RemoveReaction removes the bot's own reaction from a specific message.
	RemoveReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// IncomingMessage represents a message received from any channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "discord").
	Channel string

	// ChatID is the conversation identifier (the platform channel id).
	ChatID string

	// ChatName is the human readable name of the chat (e.g. "bot-chat").
	ChatName string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name.
	FromName string

	// Content is the text content with mentions replaced by readable names.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Attachments lists the files attached to the message, in order.
	Attachments []Attachment
}

// ImageURLs returns the URLs of the image attachments, preserving order.
func (m *IncomingMessage) ImageURLs() []string {
	var urls []string
	for _, att := range m.Attachments {
		if att.IsImage {
			urls = append(urls, att.URL)
		}
	}
	return urls
}

// Attachment describes a file attached to an incoming message.
type Attachment struct {
	URL      string
	Filename string
	MimeType string
	IsImage  bool
}

// IsImageType reports whether a MIME type denotes an image.
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// MediaMessage represents a file to be sent.
type MediaMessage struct {
	// Data is the raw file bytes.
	Data []byte

	// MimeType is the MIME type (e.g. "image/png").
	MimeType string

	// Filename is the name shown for the attachment.
	Filename string

	// Caption is the text accompanying the file.
	Caption string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

// Errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrMediaNotSupported   = errors.New("media not supported by this channel")
)
