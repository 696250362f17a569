package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingToken = errors.New("telegram bot token must be configured")
	ErrNoAdmins     = errors.New("admin_ids must list at least one user id")
	ErrMissingWebhookSecret = errors.New("telegram.webhook_secret must be set when webhook_url is configured")
)

const (
	DefaultMaxMessageLength = 4000
	DefaultUploadDir        = "/tmp/bot_uploads"
	DefaultCommandsFile     = "commands.json"
	DefaultShell            = "/bin/bash"
	DefaultRebootCommand    = "sudo reboot"
	DefaultListenAddress    = ":8090"
	DefaultWebhookPath      = "/telegram/webhook"
	DefaultAuditChannel     = "adminbot:audit"
)

// Config represents runtime configuration for the bot.
type Config struct {
	Telegram  TelegramConfig            `json:"telegram"`
	AdminIDs  []int64                   `json:"admin_ids"`
	Bot       BotConfig                 `json:"bot"`
	Server    ServerConfig              `json:"server"`
	Worker    WorkerConfig              `json:"worker"`
	Audit     AuditConfig               `json:"audit"`
	Databases map[string]DatabaseConfig `json:"databases"`
	Redis     RedisConfig               `json:"redis"`
	LogLevel  string                    `json:"log_level"`
}

type TelegramConfig struct {
	Token         string `json:"token"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

// Webhook reports whether updates arrive over HTTP instead of long polling.
func (t TelegramConfig) Webhook() bool {
	return t.WebhookURL != ""
}

type BotConfig struct {
	MaxMessageLength int    `json:"max_message_length"`
	UploadDir        string `json:"upload_dir"`
	CommandsFile     string `json:"commands_file"`
	Shell            string `json:"shell"`
	RebootCommand    string `json:"reboot_command"`
}

type ServerConfig struct {
	Address     string `json:"address"`
	WebhookPath string `json:"webhook_path"`
}

type WorkerConfig struct {
	MinWorkers         int `json:"min_workers"`
	MaxWorkers         int `json:"max_workers"`
	QueueSize          int `json:"queue_size"`
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
}

func (w WorkerConfig) IdleTimeout() time.Duration {
	return time.Duration(w.IdleTimeoutSeconds) * time.Second
}

type AuditConfig struct {
	// Database names an entry of Databases; empty disables the SQL sink.
	Database     string `json:"database"`
	RedisChannel string `json:"redis_channel"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Load reads configuration from path, applies environment overrides and
// defaults, and validates the result. An empty path reads config.json when
// it exists and otherwise relies on the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	explicit := path != ""
	if !explicit {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", absPath, err)
		}
		if cfg.Bot.CommandsFile != "" && !filepath.IsAbs(cfg.Bot.CommandsFile) {
			cfg.Bot.CommandsFile = filepath.Join(filepath.Dir(absPath), cfg.Bot.CommandsFile)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("ADMIN_IDS"); v != "" {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("ADMIN_IDS: %w", err)
		}
		c.AdminIDs = ids
	}
	if v := os.Getenv("ADMINBOT_MAX_MESSAGE_LENGTH"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ADMINBOT_MAX_MESSAGE_LENGTH: %w", err)
		}
		c.Bot.MaxMessageLength = n
	}
	if v := os.Getenv("ADMINBOT_UPLOAD_DIR"); v != "" {
		c.Bot.UploadDir = v
	}
	if v := os.Getenv("ADMINBOT_COMMANDS_FILE"); v != "" {
		c.Bot.CommandsFile = v
	}
	if v := os.Getenv("ADMINBOT_SHELL"); v != "" {
		c.Bot.Shell = v
	}
	if v := os.Getenv("ADMINBOT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ADMINBOT_WEBHOOK_URL"); v != "" {
		c.Telegram.WebhookURL = v
	}
	if v := os.Getenv("ADMINBOT_WEBHOOK_SECRET"); v != "" {
		c.Telegram.WebhookSecret = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Bot.MaxMessageLength <= 0 {
		c.Bot.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Bot.UploadDir == "" {
		c.Bot.UploadDir = DefaultUploadDir
	}
	if c.Bot.CommandsFile == "" {
		c.Bot.CommandsFile = DefaultCommandsFile
	}
	if c.Bot.Shell == "" {
		c.Bot.Shell = DefaultShell
	}
	if c.Bot.RebootCommand == "" {
		c.Bot.RebootCommand = DefaultRebootCommand
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultListenAddress
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = DefaultWebhookPath
	}
	if c.Worker.MinWorkers <= 0 {
		c.Worker.MinWorkers = 2
	}
	if c.Worker.MaxWorkers <= 0 {
		c.Worker.MaxWorkers = 16
	}
	if c.Worker.MaxWorkers < c.Worker.MinWorkers {
		c.Worker.MaxWorkers = c.Worker.MinWorkers
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 256
	}
	if c.Worker.IdleTimeoutSeconds <= 0 {
		c.Worker.IdleTimeoutSeconds = 30
	}
	if c.Audit.RedisChannel == "" {
		c.Audit.RedisChannel = DefaultAuditChannel
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the configuration errors that must stop startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if len(c.AdminIDs) == 0 {
		return ErrNoAdmins
	}
	if c.Telegram.Webhook() && strings.TrimSpace(c.Telegram.WebhookSecret) == "" {
		return ErrMissingWebhookSecret
	}
	if c.Audit.Database != "" {
		if _, ok := c.Databases[c.Audit.Database]; !ok {
			return fmt.Errorf("audit database %q has no entry under databases", c.Audit.Database)
		}
	}
	return nil
}

// ParseIDs parses a comma separated list of integer ids; empty items are skipped.
func ParseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
