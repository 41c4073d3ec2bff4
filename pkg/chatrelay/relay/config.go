package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels/discord"
)

// Config holds all relay configuration.
type Config struct {
	// Name is the bot's display name, used in the default persona.
	Name string `yaml:"name"`

	// Persona is the default system prompt. "{name}" is replaced with Name.
	Persona string `yaml:"persona"`

	// ChannelName is the only chat name the relay answers in.
	ChannelName string `yaml:"channel_name"`

	// HistoryLimit bounds the turns kept per conversation.
	HistoryLimit int `yaml:"history_limit"`

	// MessageLimit is the maximum size of one outbound message, in characters.
	MessageLimit int `yaml:"message_limit"`

	// ProgressReaction is the emoji shown while a request is in flight.
	ProgressReaction string `yaml:"progress_reaction"`

	// RequestTimeout bounds each remote call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// QueueSize bounds the pending events per conversation.
	QueueSize int `yaml:"queue_size"`

	API     APIConfig      `yaml:"api"`
	Models  ModelsConfig   `yaml:"models"`
	Image   ImageConfig    `yaml:"image"`
	Budget  BudgetConfig   `yaml:"budget"`
	Discord discord.Config `yaml:"discord"`
	Logging LoggingConfig  `yaml:"logging"`
	Status  StatusConfig   `yaml:"status"`
}

// APIConfig configures the OpenAI-compatible endpoint.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ModelsConfig names the model behind each tier.
type ModelsConfig struct {
	Standard        string `yaml:"standard"`
	Premium         string `yaml:"premium"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// ImageConfig configures the !draw command.
type ImageConfig struct {
	Model   string `yaml:"model"`
	Size    string `yaml:"size"`
	Quality string `yaml:"quality"`
	Count   int    `yaml:"count"`
}

// BudgetConfig configures premium metering.
type BudgetConfig struct {
	PricePer1K float64 `yaml:"price_per_1k_tokens"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// StatusConfig configures the periodic status report.
type StatusConfig struct {
	// Schedule is a cron spec ("@every 1h", "0 * * * *"). Empty disables it.
	Schedule string `yaml:"schedule"`
}

const defaultPersona = "You are @{name}, a relaxed friendly dude. You are responding to multiple people, " +
	"who you can tell apart by the username that appears at the beginning of their messages. " +
	"You strive to treat them as individuals with different personalities."

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Name:             "SmarterAdult",
		Persona:          defaultPersona,
		ChannelName:      "bot-chat",
		HistoryLimit:     DefaultHistoryLimit,
		MessageLimit:     DefaultMessageLimit,
		ProgressReaction: "⏳",
		RequestTimeout:   120 * time.Second,
		QueueSize:        defaultQueueSize,
		API: APIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Models: ModelsConfig{
			Standard: "gpt-3.5-turbo",
			Premium:  "gpt-4",
		},
		Image: ImageConfig{
			Model:   "dall-e-3",
			Size:    "1024x1024",
			Quality: "standard",
			Count:   1,
		},
		Budget: BudgetConfig{PricePer1K: DefaultPricePer1K},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Status: StatusConfig{Schedule: "@every 1h"},
	}
}

// PersonaPrompt returns the default persona with the bot name filled in.
func (c *Config) PersonaPrompt() string {
	return strings.ReplaceAll(c.Persona, "{name}", c.Name)
}

// Validate checks that limits and prices are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.ChannelName == "" {
		errs = append(errs, errors.New("channel_name is required"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.MessageLimit <= 0 {
		errs = append(errs, fmt.Errorf("message_limit must be positive, got %d", c.MessageLimit))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.Budget.PricePer1K <= 0 {
		errs = append(errs, fmt.Errorf("budget.price_per_1k_tokens must be positive, got %g", c.Budget.PricePer1K))
	}
	if c.Models.Standard == "" || c.Models.Premium == "" {
		errs = append(errs, errors.New("models.standard and models.premium are required"))
	}
	return errors.Join(errs...)
}

// NewBudget builds the tier policy from the configuration.
func (c *Config) NewBudget() *Budget {
	return &Budget{
		PricePer1K:    c.Budget.PricePer1K,
		StandardModel: c.Models.Standard,
		PremiumModel:  c.Models.Premium,
	}
}
