package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid marks a configuration problem. Always fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Watcher   WatcherConfig
	Browser   BrowserConfig
	Status    StatusConfig
	Selectors SelectorsConfig
	Telegram  TelegramConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

type WatcherConfig struct {
	ProductURL           string
	ProductLabel         string
	CatalogPath          string
	Location             string
	CheckInterval        time.Duration
	CheckIntervalMax     time.Duration
	MaxChecks            int
	ContinueOnOutOfStock bool
	AutoPurchase         bool
	NoBrowser            bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type StatusConfig struct {
	FilePath      string
	BuyerFilePath string
}

// SelectorsConfig overrides the purchase actuation targets per storefront.
// Each value is a comma-separated selector list tried in order; an unset key
// keeps the built-in defaults.
type SelectorsConfig struct {
	AddToCart    []string
	OpenCart     []string
	CartItemName []string
	Checkout     []string
	Payment      []string
	Confirm      []string
}

type TelegramConfig struct {
	BotToken  string
	ChannelID string
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChannelID != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Local runs keep credentials in a .env next to the binary. Missing file
	// is fine; real deployments set the environment directly.
	godotenv.Load()

	cfg := &Config{
		Watcher: WatcherConfig{
			ProductURL:           getEnvOrDefault("PRODUCT_URL", ""),
			ProductLabel:         getEnvOrDefault("PRODUCT_LABEL", ""),
			CatalogPath:          getEnvOrDefault("CATALOG_PATH", "products.json"),
			Location:             getEnvOrDefault("LOCATION_LABEL", "Home"),
			CheckInterval:        getDurationOrDefault("CHECK_INTERVAL", 30*time.Second),
			CheckIntervalMax:     getDurationOrDefault("CHECK_INTERVAL_MAX", 0),
			MaxChecks:            getIntOrDefault("MAX_CHECKS", 0),
			ContinueOnOutOfStock: getBoolOrDefault("CONTINUE_ON_OUT_OF_STOCK", false),
			AutoPurchase:         getBoolOrDefault("AUTO_PURCHASE", true),
			NoBrowser:            getBoolOrDefault("NO_BROWSER", false),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", false),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 720),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-IN,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Kolkata"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-IN"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Status: StatusConfig{
			FilePath:      getEnvOrDefault("STATUS_FILE", "product_status.json"),
			BuyerFilePath: getEnvOrDefault("BUYER_STATUS_FILE", "buyer_status.json"),
		},
		Selectors: SelectorsConfig{
			AddToCart:    getListOrDefault("SELECTOR_ADD_TO_CART", nil),
			OpenCart:     getListOrDefault("SELECTOR_OPEN_CART", nil),
			CartItemName: getListOrDefault("SELECTOR_CART_ITEM", nil),
			Checkout:     getListOrDefault("SELECTOR_CHECKOUT", nil),
			Payment:      getListOrDefault("SELECTOR_PAYMENT", nil),
			Confirm:      getListOrDefault("SELECTOR_CONFIRM", nil),
		},
		Telegram: TelegramConfig{
			BotToken:  getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			ChannelID: getEnvOrDefault("TELEGRAM_CHANNEL_ID", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:product_status"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "restock_watcher"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Watcher.ProductURL == "" && c.Watcher.ProductLabel == "" {
		return fmt.Errorf("%w: set PRODUCT_URL or PRODUCT_LABEL", ErrInvalid)
	}
	if c.Watcher.ProductURL != "" && !strings.HasPrefix(c.Watcher.ProductURL, "http") {
		return fmt.Errorf("%w: PRODUCT_URL must start with http", ErrInvalid)
	}
	if c.Watcher.CheckInterval < time.Second {
		return fmt.Errorf("%w: CHECK_INTERVAL must be at least 1s", ErrInvalid)
	}
	if c.Watcher.CheckIntervalMax != 0 && c.Watcher.CheckIntervalMax < c.Watcher.CheckInterval {
		return fmt.Errorf("%w: CHECK_INTERVAL_MAX cannot be less than CHECK_INTERVAL", ErrInvalid)
	}
	if c.Watcher.MaxChecks < 0 {
		return fmt.Errorf("%w: MAX_CHECKS cannot be negative", ErrInvalid)
	}
	if c.Watcher.NoBrowser && c.Watcher.AutoPurchase {
		return fmt.Errorf("%w: AUTO_PURCHASE requires a real browser (unset NO_BROWSER)", ErrInvalid)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
