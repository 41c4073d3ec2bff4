// loader.go loads configuration from YAML files, expanding environment
// variables and pulling secrets from .env files, the environment or the OS keyring.
package relay

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable references in config values:
//   - ${VAR}          - simple variable
//   - ${VAR:-default} - default value if not set
//   - ${VAR:?error}   - error message if not set
//   - $VAR            - bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// .env files are loaded first and variables are expanded before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	checkFilePermissions(path)
	return cfg, nil
}

// LoadDefaultConfig returns defaults with secrets resolved from the
// environment, for running without a config file.
func LoadDefaultConfig() *Config {
	loadEnvFiles()
	cfg := DefaultConfig()
	resolveSecrets(cfg)
	return cfg
}

// ParseConfig parses YAML bytes over DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes cfg as YAML. Secrets that came from the environment
// are written back as ${VAR} references, and the previous file is kept as .bak.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.API.APIKey = sanitizeSecret(cfg.API.APIKey, "OPENAI_API_KEY", "CHATRELAY_API_KEY")
	sanitized.Discord.Token = sanitizeSecret(cfg.Discord.Token, "DISCORD_TOKEN", "CHATRELAY_DISCORD_TOKEN")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for a config file in the standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"chatrelay.yaml",
		"chatrelay.yml",
		"configs/config.yaml",
		"configs/chatrelay.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsEnvReference reports whether s is an unexpanded environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// ---------- Internal ----------

// loadEnvFiles loads .env files without overriding variables already set.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces variable references with their values. Unset
// variables without a modifier keep their placeholder; an unset ${VAR:?msg}
// is an error.
func expandEnvVars(input string) (string, error) {
	var firstErr error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, modifier, value, bare := sub[1], sub[2], sub[3], sub[4]

		if bare != "" {
			if v, ok := os.LookupEnv(bare); ok {
				return v
			}
			return match
		}

		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		switch modifier {
		case "-":
			return value
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("config error: %s - %s", name, value)
			}
			return ""
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// resolveSecrets fills secrets from the OS keyring, then the environment,
// keeping the config value only when neither provides one.
func resolveSecrets(cfg *Config) {
	cfg.API.APIKey = firstSecret(cfg.API.APIKey, KeyringOpenAI, "CHATRELAY_API_KEY", "OPENAI_API_KEY")
	cfg.Discord.Token = firstSecret(cfg.Discord.Token, KeyringDiscord, "CHATRELAY_DISCORD_TOKEN", "DISCORD_TOKEN")
}

func firstSecret(current, keyringKey string, envVars ...string) string {
	if v := GetKeyring(keyringKey); v != "" {
		return v
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	if IsEnvReference(current) {
		return ""
	}
	return current
}

// sanitizeSecret replaces a secret with a reference to the environment
// variable holding it. Values not found in the environment are kept.
func sanitizeSecret(value string, envVars ...string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	for _, name := range envVars {
		if os.Getenv(name) == value {
			return "${" + name + "}"
		}
	}
	return value
}

// checkFilePermissions warns if the config file is readable by others.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
