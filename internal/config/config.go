package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	DataDir string `mapstructure:"DATA_DIR"`

	RenewalInterval     string        `mapstructure:"RENEWAL_INTERVAL"`
	RenewalIntervalMS   int64         `mapstructure:"RENEWAL_INTERVAL_MS"`
	RenewalInitialDelay time.Duration `mapstructure:"RENEWAL_INITIAL_DELAY"`
	TickTimeout         time.Duration `mapstructure:"TICK_TIMEOUT"`

	OrdersEndpoint   string        `mapstructure:"ORDERS_ENDPOINT"`
	PaymentsEndpoint string        `mapstructure:"PAYMENTS_ENDPOINT"`
	SheetsToken      string        `mapstructure:"SHEETS_TOKEN"`
	SubmitTimeout    time.Duration `mapstructure:"SUBMIT_TIMEOUT"`
	SubmitRatePerSec float64       `mapstructure:"SUBMIT_RATE_PER_SEC"`

	RenewalAmount      int     `mapstructure:"RENEWAL_AMOUNT"`
	RenewalPrice       float64 `mapstructure:"RENEWAL_PRICE"`
	GroupRenewalPrices string  `mapstructure:"GROUP_RENEWAL_PRICES"`
	CountryCode        string  `mapstructure:"COUNTRY_CODE"`

	HTTPAddr     string `mapstructure:"HTTP_ADDR"`
	AllowedCIDRs string `mapstructure:"ALLOWED_CIDRS"`

	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`

	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	BotToken         string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64         `mapstructure:"TELEGRAM_ADMIN_CHAT_ID"`
	AlertDedupWindow time.Duration `mapstructure:"ALERT_DEDUP_WINDOW"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"DATA_DIR", "RENEWAL_INTERVAL", "RENEWAL_INTERVAL_MS", "RENEWAL_INITIAL_DELAY", "TICK_TIMEOUT",
	"ORDERS_ENDPOINT", "PAYMENTS_ENDPOINT", "SHEETS_TOKEN", "SUBMIT_TIMEOUT", "SUBMIT_RATE_PER_SEC",
	"RENEWAL_AMOUNT", "RENEWAL_PRICE", "GROUP_RENEWAL_PRICES", "COUNTRY_CODE",
	"HTTP_ADDR", "ALLOWED_CIDRS",
	"DB_USER", "DB_PASSWORD", "DB_NAME", "DB_HOST", "DB_PORT",
	"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_ADMIN_CHAT_ID", "ALERT_DEDUP_WINDOW",
	"LOG_LEVEL", "LOG_FORMAT",
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}

	viper.SetDefault("DATA_DIR", "./data")
	viper.SetDefault("RENEWAL_INTERVAL_MS", 3600000)
	viper.SetDefault("RENEWAL_INITIAL_DELAY", "30s")
	viper.SetDefault("SUBMIT_TIMEOUT", "60s")
	viper.SetDefault("SUBMIT_RATE_PER_SEC", 2)
	viper.SetDefault("RENEWAL_AMOUNT", 100)
	viper.SetDefault("RENEWAL_PRICE", 12)
	viper.SetDefault("COUNTRY_CODE", "258")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("ALERT_DEDUP_WINDOW", "24h")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if cfg.OrdersEndpoint == "" {
		return nil, fmt.Errorf("ORDERS_ENDPOINT is required")
	}
	if cfg.PaymentsEndpoint == "" {
		return nil, fmt.Errorf("PAYMENTS_ENDPOINT is required")
	}
	if _, err := cfg.Interval(); err != nil {
		return nil, err
	}
	if _, err := cfg.GroupPrices(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Interval is the poll interval. RENEWAL_INTERVAL (a Go duration) wins over
// RENEWAL_INTERVAL_MS.
func (c *Config) Interval() (time.Duration, error) {
	if c.RenewalInterval != "" {
		d, err := time.ParseDuration(c.RenewalInterval)
		if err != nil {
			return 0, fmt.Errorf("invalid RENEWAL_INTERVAL %q: %w", c.RenewalInterval, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("RENEWAL_INTERVAL must be positive, got %s", d)
		}
		return d, nil
	}
	if c.RenewalIntervalMS <= 0 {
		return 0, fmt.Errorf("RENEWAL_INTERVAL_MS must be positive, got %d", c.RenewalIntervalMS)
	}
	return time.Duration(c.RenewalIntervalMS) * time.Millisecond, nil
}

// GroupPrices parses GROUP_RENEWAL_PRICES ("grupoA=12,grupoB=15.5").
func (c *Config) GroupPrices() (map[string]float64, error) {
	prices := make(map[string]float64)
	for _, pair := range strings.Split(c.GroupRenewalPrices, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		group, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(group) == "" {
			return nil, fmt.Errorf("invalid GROUP_RENEWAL_PRICES entry %q", pair)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("invalid price in GROUP_RENEWAL_PRICES entry %q", pair)
		}
		prices[strings.TrimSpace(group)] = price
	}
	return prices, nil
}

// AllowedNetworks splits ALLOWED_CIDRS.
func (c *Config) AllowedNetworks() []string {
	var out []string
	for _, entry := range strings.Split(c.AllowedCIDRs, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// DatabaseEnabled reports whether the audit mirror should connect.
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != "" && c.DBName != ""
}

// RedisEnabled reports whether alert de-duplication should use Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// TelegramEnabled reports whether operator alerts and the console run.
func (c *Config) TelegramEnabled() bool {
	return c.BotToken != "" && c.AdminChatID != 0
}
