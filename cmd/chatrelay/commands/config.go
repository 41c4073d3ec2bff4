package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `chatrelay config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration and manage credentials",
	}
	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			masked := *cfg
			masked.API.APIKey = maskSecret(cfg.API.APIKey)
			masked.Discord.Token = maskSecret(cfg.Discord.Token)

			data, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file that would be loaded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Println("(none, using defaults)")
				return nil
			}
			fmt.Println(path)
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-key <openai|discord>",
		Short:     "Store a credential in the OS keyring",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"openai", "discord"},
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := keyringKey(args[0])
			if err != nil {
				return err
			}
			if !relay.KeyringAvailable() {
				return fmt.Errorf("OS keyring is not available on this system; use environment variables instead")
			}

			value, err := readSecret(fmt.Sprintf("Enter %s credential: ", args[0]))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value, nothing stored")
			}
			if err := relay.StoreKeyring(key, value); err != nil {
				return err
			}
			fmt.Printf("Stored %s credential in the OS keyring.\n", args[0])
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key <openai|discord>",
		Short: "Remove a credential from the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := keyringKey(args[0])
			if err != nil {
				return err
			}
			if err := relay.DeleteKeyring(key); err != nil {
				return fmt.Errorf("deleting %s credential: %w", args[0], err)
			}
			fmt.Printf("Removed %s credential from the OS keyring.\n", args[0])
			return nil
		},
	}
}

func keyringKey(name string) (string, error) {
	switch strings.ToLower(name) {
	case "openai":
		return relay.KeyringOpenAI, nil
	case "discord":
		return relay.KeyringDiscord, nil
	default:
		return "", fmt.Errorf("unknown credential %q (expected openai or discord)", name)
	}
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print(prompt)
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case relay.IsEnvReference(s):
		return s
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
