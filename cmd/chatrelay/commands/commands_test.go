package commands

import (
	"testing"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
	"github.com/zalando/go-keyring"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"${OPENAI_API_KEY}", "${OPENAI_API_KEY}"},
		{"short", "****"},
		{"sk-1234567890abcd", "sk-1****abcd"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyringKey(t *testing.T) {
	if k, err := keyringKey("OpenAI"); err != nil || k != relay.KeyringOpenAI {
		t.Errorf("openai -> %q, %v", k, err)
	}
	if k, err := keyringKey("discord"); err != nil || k != relay.KeyringDiscord {
		t.Errorf("discord -> %q, %v", k, err)
	}
	if _, err := keyringKey("slack"); err == nil {
		t.Error("expected error for unknown credential")
	}
}

func TestApplySecret(t *testing.T) {
	keyring.MockInit()

	field := "old"
	if err := applySecret(&field, "  ", relay.KeyringOpenAI, true); err != nil || field != "old" {
		t.Fatalf("blank value should keep field, got %q, %v", field, err)
	}

	if err := applySecret(&field, "sk-new", relay.KeyringOpenAI, false); err != nil || field != "sk-new" {
		t.Fatalf("plain store: field = %q, %v", field, err)
	}

	if err := applySecret(&field, "sk-kr", relay.KeyringOpenAI, true); err != nil {
		t.Fatal(err)
	}
	if field != "" {
		t.Errorf("keyring store should clear the field, got %q", field)
	}
	if got := relay.GetKeyring(relay.KeyringOpenAI); got != "sk-kr" {
		t.Errorf("keyring value = %q", got)
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	for _, name := range []string{"serve", "chat", "setup", "config", "health"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
