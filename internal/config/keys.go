package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MIRROR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_connections", typ: kInt, env: "MIRROR_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MIRROR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "MIRROR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "requests.mirror_cooldown", typ: kDuration, env: "MIRROR_REQUESTS_MIRROR_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Requests.MirrorCooldown = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Requests.MirrorCooldown },
	},
	{
		key: "requests.contact_cooldown", typ: kDuration, env: "MIRROR_REQUESTS_CONTACT_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Requests.ContactCooldown = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Requests.ContactCooldown },
	},
	{
		key: "integrity.max_authenticity", typ: kInt, env: "MIRROR_INTEGRITY_MAX_AUTHENTICITY",
		apply:   func(cfg *Config, v any) { cfg.Integrity.MaxAuthenticity = v.(int) },
		extract: func(cfg Config) any { return cfg.Integrity.MaxAuthenticity },
	},
	{
		key: "integrity.min_warning_chars", typ: kInt, env: "MIRROR_INTEGRITY_MIN_WARNING_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Integrity.MinWarningChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Integrity.MinWarningChars },
	},
	{
		key: "ratelimit.requests_per_minute", typ: kInt, env: "MIRROR_RATELIMIT_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.RequestsPerMinute },
	},
	{
		key: "ratelimit.burst", typ: kInt, env: "MIRROR_RATELIMIT_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.Burst },
	},
	{
		key: "notify.poll_interval", typ: kDuration, env: "MIRROR_NOTIFY_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Notify.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Notify.PollInterval },
	},
	{
		key: "auth.api_token", typ: kString, env: "MIRROR_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.APIToken },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
