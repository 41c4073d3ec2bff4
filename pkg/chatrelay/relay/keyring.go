// keyring.go stores credentials in the operating system's native keyring
// (Linux: Secret Service, macOS: Keychain, Windows: Credential Manager).
//
// Secrets resolve in this order:
//  1. OS keyring
//  2. Environment variable (CHATRELAY_*, OPENAI_API_KEY, DISCORD_TOKEN)
//  3. .env file (loaded by godotenv)
//  4. config.yaml value
package relay

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "chatrelay"

	// KeyringOpenAI is the keyring entry holding the completion API key.
	KeyringOpenAI = "openai_api_key"

	// KeyringDiscord is the keyring entry holding the Discord bot token.
	KeyringDiscord = "discord_token"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	if err := keyring.Set(keyringService, key, value); err != nil {
		return fmt.Errorf("storing %s in keyring: %w", key, err)
	}
	return nil
}

// GetKeyring retrieves a secret from the OS keyring, or "" if absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks whether the OS keyring is usable.
func KeyringAvailable() bool {
	testKey := "__chatrelay_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}
