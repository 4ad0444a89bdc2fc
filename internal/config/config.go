package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Requests  RequestsConfig
	Integrity IntegrityConfig
	RateLimit RateLimitConfig
	Notify    NotifyConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port           int
	MaxConnections int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// RequestsConfig holds the refusal cooldowns. A zero MirrorCooldown means a
// rejected mirror request never blocks a new one.
type RequestsConfig struct {
	MirrorCooldown  time.Duration
	ContactCooldown time.Duration
}

type IntegrityConfig struct {
	MaxAuthenticity int
	MinWarningChars int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type NotifyConfig struct {
	PollInterval time.Duration
}

type AuthConfig struct {
	APIToken string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4100,
			MaxConnections: 256,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Requests: RequestsConfig{
			MirrorCooldown:  0,
			ContactCooldown: 30 * 24 * time.Hour,
		},
		Integrity: IntegrityConfig{
			MaxAuthenticity: 95,
			MinWarningChars: 40,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			Burst:             5,
		},
		Notify: NotifyConfig{
			PollInterval: 500 * time.Millisecond,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.mirror.app) and the API
// token falls back to the macOS Keychain (service: mirror, account: api_token).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/mirror/config.json
// and the token falls back to $XDG_DATA_HOME/mirror/secrets.json.
//
// Environment variables (MIRROR_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainStore{})
}

// keychain abstracts the platform secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

const (
	secretService    = "mirror"
	apiTokenAccount  = "api_token"
	apiTokenByteSize = 32
)

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Auth.APIToken == "" {
		if tok, err := kc.Get(secretService, apiTokenAccount); err == nil && tok != "" {
			cfg.Auth.APIToken = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	case c.Server.MaxConnections <= 0:
		return fmt.Errorf("invalid config: server.max_connections must be positive")
	case c.Storage.DataDir == "":
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	case c.Requests.MirrorCooldown < 0 || c.Requests.ContactCooldown < 0:
		return fmt.Errorf("invalid config: cooldowns must not be negative")
	case c.Integrity.MaxAuthenticity <= 0 || c.Integrity.MaxAuthenticity > 100:
		return fmt.Errorf("invalid config: integrity.max_authenticity must be 1-100")
	case c.Integrity.MinWarningChars <= 0:
		return fmt.Errorf("invalid config: integrity.min_warning_chars must be positive")
	case c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0:
		return fmt.Errorf("invalid config: ratelimit values must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	return nil
}

// EnsureAPIToken returns the configured API token, generating and storing a
// new one in the platform secret store on first use.
func EnsureAPIToken(cfg *Config) (string, error) {
	return ensureAPITokenWith(cfg, keychainStore{})
}

func ensureAPITokenWith(cfg *Config, kc keychain) (string, error) {
	if cfg.Auth.APIToken != "" {
		return cfg.Auth.APIToken, nil
	}
	buf := make([]byte, apiTokenByteSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	cfg.Auth.APIToken = tok
	return tok, nil
}

// keychainStore is the platform secret store.
type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
