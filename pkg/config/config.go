package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Catalog  CatalogConfig  `json:"catalog"`
	Orders   OrdersConfig   `json:"orders"`
	Fallback FallbackConfig `json:"fallback"`
	Store    StoreConfig    `json:"store"`
	Flows    FlowsConfig    `json:"flows"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"CAMIBOT_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"CAMIBOT_CHANNELS_TELEGRAM_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CAMIBOT_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type WhatsAppConfig struct {
	Enabled   bool                `json:"enabled" env:"CAMIBOT_CHANNELS_WHATSAPP_ENABLED"`
	BridgeURL string              `json:"bridge_url" env:"CAMIBOT_CHANNELS_WHATSAPP_BRIDGE_URL"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CAMIBOT_CHANNELS_WHATSAPP_ALLOW_FROM"`
}

type CatalogConfig struct {
	BaseURL        string `json:"base_url" env:"CAMIBOT_CATALOG_BASE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"CAMIBOT_CATALOG_TIMEOUT_SECONDS"`
}

type OrdersConfig struct {
	BaseURL        string `json:"base_url" env:"CAMIBOT_ORDERS_BASE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"CAMIBOT_ORDERS_TIMEOUT_SECONDS"`
}

type FallbackConfig struct {
	Enabled bool   `json:"enabled" env:"CAMIBOT_FALLBACK_ENABLED"`
	APIKey  string `json:"api_key" env:"CAMIBOT_FALLBACK_API_KEY"`
	APIBase string `json:"api_base" env:"CAMIBOT_FALLBACK_API_BASE"`
	Model   string `json:"model" env:"CAMIBOT_FALLBACK_MODEL"`
}

// StoreConfig selects the session store backend. "memory" needs nothing,
// "redis" needs Addr, "postgres" needs DSN.
type StoreConfig struct {
	Backend     string `json:"backend" env:"CAMIBOT_STORE_BACKEND"`
	RedisAddr   string `json:"redis_addr" env:"CAMIBOT_STORE_REDIS_ADDR"`
	PostgresDSN string `json:"postgres_dsn" env:"CAMIBOT_STORE_POSTGRES_DSN"`
	// JournalDir persists the order journal when non-empty.
	JournalDir string `json:"journal_dir" env:"CAMIBOT_STORE_JOURNAL_DIR"`
}

type FlowsConfig struct {
	MessageDelayMS int `json:"message_delay_ms" env:"CAMIBOT_FLOWS_MESSAGE_DELAY_MS"`
	OutboxBuffer   int `json:"outbox_buffer" env:"CAMIBOT_FLOWS_OUTBOX_BUFFER"`
}

type GatewayConfig struct {
	Host   string `json:"host" env:"CAMIBOT_GATEWAY_HOST"`
	Port   int    `json:"port" env:"CAMIBOT_GATEWAY_PORT"`
	APIKey string `json:"api_key" env:"CAMIBOT_GATEWAY_API_KEY"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"CAMIBOT_LOGGING_LEVEL"`
	FileEnabled bool   `json:"file_enabled" env:"CAMIBOT_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"CAMIBOT_LOGGING_FILE_PATH"`
	MaxSizeMB   int    `json:"max_size_mb" env:"CAMIBOT_LOGGING_MAX_SIZE_MB"`
}

func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
			WhatsApp: WhatsAppConfig{
				Enabled:   false,
				BridgeURL: "ws://localhost:3001",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Catalog: CatalogConfig{
			BaseURL:        "https://challenge-api-ab2dc7622fc1.herokuapp.com",
			TimeoutSeconds: 10,
		},
		Orders: OrdersConfig{
			BaseURL:        "https://challenge-api-ab2dc7622fc1.herokuapp.com",
			TimeoutSeconds: 10,
		},
		Fallback: FallbackConfig{
			Enabled: true,
			APIKey:  "",
			APIBase: "",
			Model:   "gpt-4o-mini",
		},
		Store: StoreConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			PostgresDSN: "",
		},
		Flows: FlowsConfig{
			MessageDelayMS: 800,
			OutboxBuffer:   64,
		},
		Gateway: GatewayConfig{
			Host:   "0.0.0.0",
			Port:   3008,
			APIKey: "",
		},
		Logging: LoggingConfig{
			Level:       "INFO",
			FileEnabled: false,
			FilePath:    "~/.camibot/camibot.log",
			MaxSizeMB:   50,
		},
	}
}

// LoadConfig reads the JSON config at path (missing file falls back to
// defaults), loads a .env file when one is present, and finally applies
// CAMIBOT_* environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Best effort: .env is optional in every environment.
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Fallback.APIKey = resolveEnvRef(cfg.Fallback.APIKey)
	cfg.Fallback.APIBase = resolveEnvRef(cfg.Fallback.APIBase)
	cfg.Store.PostgresDSN = resolveEnvRef(cfg.Store.PostgresDSN)
	cfg.Gateway.APIKey = resolveEnvRef(cfg.Gateway.APIKey)

	return cfg, nil
}

// resolveEnvRef expands "$NAME" and "${NAME}" values so secrets can live in
// the environment while the config file stays committable.
func resolveEnvRef(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return v
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		key := strings.TrimSpace(s[2 : len(s)-1])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return v
	}
	if strings.HasPrefix(s, "$") && len(s) > 1 {
		key := strings.TrimSpace(s[1:])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
	}
	return v
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
