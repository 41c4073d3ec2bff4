package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
	"github.com/spf13/cobra"
)

// newSetupCmd creates the `chatrelay setup` interactive wizard.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Walk through the bot name, channel, models and credentials, then write
a config file. Credentials go to the OS keyring when it is available.

Examples:
  chatrelay setup
  chatrelay setup --output ./configs/config.yaml`,
		RunE: runSetup,
	}
	cmd.Flags().StringP("output", "o", "config.yaml", "where to write the config file")
	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		cfg = relay.DefaultConfig()
	}

	if _, err := os.Stat(output); err == nil {
		overwrite := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite?", output)).
			Value(&overwrite).
			Run()
		if err != nil {
			return abortErr(err)
		}
		if !overwrite {
			fmt.Println("Setup cancelled.")
			return nil
		}
	}

	var apiKey, discordToken string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("chatrelay setup").
				Description("Relay one Discord channel to an OpenAI-compatible chat model."),
			huh.NewInput().
				Title("Bot name").
				Description("Used in the persona prompt").
				Placeholder(cfg.Name).
				Value(&cfg.Name),
			huh.NewInput().
				Title("Channel name").
				Description("Only messages in channels with this name are answered").
				Placeholder(cfg.ChannelName).
				Value(&cfg.ChannelName).
				Validate(notBlank("channel name")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Placeholder(cfg.API.BaseURL).
				Value(&cfg.API.BaseURL),
			huh.NewInput().
				Title("Standard model").
				Value(&cfg.Models.Standard).
				Validate(notBlank("standard model")),
			huh.NewInput().
				Title("Premium model").
				Description("Used while paid tokens remain").
				Value(&cfg.Models.Premium).
				Validate(notBlank("premium model")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				Description("Leave empty to keep the current value").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Discord bot token").
				Description("Leave empty to keep the current value").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
		),
	).WithShowHelp(true)

	if err := form.Run(); err != nil {
		return abortErr(err)
	}

	useKeyring := false
	if (apiKey != "" || discordToken != "") && relay.KeyringAvailable() {
		useKeyring = true
		err := huh.NewConfirm().
			Title("Store credentials in the OS keyring?").
			Description("Otherwise they are written to the config file").
			Value(&useKeyring).
			Run()
		if err != nil {
			return abortErr(err)
		}
	}

	if err := applySecret(&cfg.API.APIKey, apiKey, relay.KeyringOpenAI, useKeyring); err != nil {
		return err
	}
	if err := applySecret(&cfg.Discord.Token, discordToken, relay.KeyringDiscord, useKeyring); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := relay.SaveConfigToFile(cfg, output); err != nil {
		return err
	}

	fmt.Printf("Config written to %s\n", output)
	fmt.Println("Start the bot with: chatrelay serve")
	return nil
}

// applySecret stores value in the keyring or the config field.
// An empty value keeps whatever the field already holds.
func applySecret(field *string, value, keyringKey string, useKeyring bool) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if useKeyring {
		if err := relay.StoreKeyring(keyringKey, value); err != nil {
			return err
		}
		*field = ""
		return nil
	}
	*field = value
	return nil
}

func notBlank(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func abortErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New("setup aborted")
	}
	return err
}
