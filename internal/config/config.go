// Package config manages Sentinel configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantrail/sentinel/errs"
)

// Environment identifies the runtime environment where Sentinel operates.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
)

// BybitConfig holds venue endpoints and credentials. Credentials are only ever
// read from the environment, never from the config file.
type BybitConfig struct {
	WebsocketURL string        `yaml:"websocketUrl"`
	RESTURL      string        `yaml:"restUrl"`
	Category     string        `yaml:"category"`
	RecvWindow   int           `yaml:"recvWindow"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
	APIKey       string        `yaml:"-"`
	APISecret    string        `yaml:"-"`
}

// MonitorConfig controls the correlation engine's timing behaviour.
type MonitorConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	ReconnectDelay    time.Duration `yaml:"reconnectDelay"`
	SettleWindow      time.Duration `yaml:"settleWindow"`
	TpSlDebounce      time.Duration `yaml:"tpslDebounce"`
	SnapshotCooldown  time.Duration `yaml:"snapshotCooldown"`
	PnlAttempts       int           `yaml:"pnlAttempts"`
	PnlRetryDelay     time.Duration `yaml:"pnlRetryDelay"`
}

// JournalConfig configures the Postgres trade journal. An empty DSN disables
// journaling.
type JournalConfig struct {
	DSN string `yaml:"-"`
}

// DiscordConfig holds notification webhooks. The PnL webhook falls back to the
// primary one when unset.
type DiscordConfig struct {
	WebhookURL    string `yaml:"-"`
	PnlWebhookURL string `yaml:"-"`
}

// TelemetryConfig controls the OpenTelemetry metric exporter. An empty
// endpoint leaves the no-op provider in place.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the Sentinel configuration tree.
type Config struct {
	Environment Environment     `yaml:"environment"`
	Bybit       BybitConfig     `yaml:"bybit"`
	Monitor     MonitorConfig   `yaml:"monitor"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Journal     JournalConfig   `yaml:"-"`
	Discord     DiscordConfig   `yaml:"-"`
}

// Default returns the configuration baseline before file and env overrides.
func Default() Config {
	return Config{
		Environment: EnvProd,
		Bybit: BybitConfig{
			WebsocketURL: "wss://stream.bybit.com/v5/private",
			RESTURL:      "https://api.bybit.com",
			Category:     "linear",
			RecvWindow:   5000,
			HTTPTimeout:  10 * time.Second,
		},
		Monitor: MonitorConfig{
			HeartbeatInterval: 20 * time.Second,
			ReconnectDelay:    5 * time.Second,
			SettleWindow:      3 * time.Second,
			TpSlDebounce:      5 * time.Second,
			SnapshotCooldown:  time.Hour,
			PnlAttempts:       3,
			PnlRetryDelay:     2 * time.Second,
		},
	}
}

// LoadOrDefault reads the configuration file at path, falling back to defaults
// when it does not exist, then applies environment overrides and validates.
// The second return reports whether a file was actually loaded.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	loaded := false

	if trimmed := strings.TrimSpace(path); trimmed != "" {
		data, err := os.ReadFile(trimmed)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, false, fmt.Errorf("parse config %s: %w", trimmed, err)
			}
			loaded = true
		case os.IsNotExist(err):
		default:
			return Config{}, false, fmt.Errorf("read config %s: %w", trimmed, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, loaded, err
	}
	return cfg, loaded, nil
}

func (c *Config) applyEnv() {
	if env := strings.TrimSpace(os.Getenv("SENTINEL_ENV")); env != "" {
		c.Environment = Environment(strings.ToLower(env))
	}
	c.Bybit.APIKey = strings.TrimSpace(os.Getenv("BYBIT_API_KEY"))
	c.Bybit.APISecret = strings.TrimSpace(os.Getenv("BYBIT_API_SECRET"))
	if endpoint := strings.TrimSpace(os.Getenv("SENTINEL_OTLP_ENDPOINT")); endpoint != "" {
		c.Telemetry.OTLPEndpoint = endpoint
	}
	c.Journal.DSN = strings.TrimSpace(os.Getenv("SENTINEL_DATABASE_DSN"))
	c.Discord.WebhookURL = strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL"))
	c.Discord.PnlWebhookURL = strings.TrimSpace(os.Getenv("DISCORD_PNL_WEBHOOK_URL"))
	if c.Discord.PnlWebhookURL == "" {
		c.Discord.PnlWebhookURL = c.Discord.WebhookURL
	}
}

// Validate checks that required settings are present and timing knobs sane.
func (c Config) Validate() error {
	if c.Bybit.APIKey == "" || c.Bybit.APISecret == "" {
		return errs.New("bybit", errs.CodeAuth,
			errs.WithMessage("BYBIT_API_KEY and BYBIT_API_SECRET must be set"))
	}
	if strings.TrimSpace(c.Bybit.WebsocketURL) == "" {
		return errs.New("bybit", errs.CodeInvalid, errs.WithMessage("websocket url required"))
	}
	if strings.TrimSpace(c.Bybit.RESTURL) == "" {
		return errs.New("bybit", errs.CodeInvalid, errs.WithMessage("rest url required"))
	}
	if c.Monitor.HeartbeatInterval <= 0 {
		return errs.New("monitor", errs.CodeInvalid, errs.WithMessage("heartbeat interval must be positive"))
	}
	if c.Monitor.ReconnectDelay <= 0 {
		return errs.New("monitor", errs.CodeInvalid, errs.WithMessage("reconnect delay must be positive"))
	}
	if c.Monitor.SettleWindow <= 0 {
		return errs.New("monitor", errs.CodeInvalid, errs.WithMessage("settle window must be positive"))
	}
	if c.Monitor.TpSlDebounce <= 0 {
		return errs.New("monitor", errs.CodeInvalid, errs.WithMessage("tp/sl debounce must be positive"))
	}
	if c.Monitor.SnapshotCooldown <= 0 {
		return errs.New("monitor", errs.CodeInvalid, errs.WithMessage("snapshot cooldown must be positive"))
	}
	if c.Monitor.PnlAttempts <= 0 {
		return errs.New("monitor", errs.CodeInvalid, errs.WithMessage("pnl attempts must be positive"))
	}
	return nil
}
