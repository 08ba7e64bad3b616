package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/zhouzirui/topup-bot/internal/service/purchase"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Telegram   TelegramConfig
	Bot        BotConfig
	Storefront StorefrontConfig
	Chrome     ChromeConfig
	Telemetry  TelemetryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, err
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT value: %q", cfg.Log.Format)
	}

	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// SlogLevel 把 LOG_LEVEL 转成 slog 级别。
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value %q: %w", c.Level, err)
	}
	return level, nil
}

// TelegramConfig 描述 Telegram 网关配置，BOT_TOKEN 为空时不启动。
type TelegramConfig struct {
	Token       string        `env:"BOT_TOKEN"`
	PollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"60s"`
	Debug       bool          `env:"TELEGRAM_DEBUG" envDefault:"false"`
}

// Enabled 表示是否提供了机器人令牌。
func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

// BotConfig 描述对话内容相关配置。
type BotConfig struct {
	WelcomeImagePath string `env:"WELCOME_IMAGE_PATH"`
}

// StorefrontConfig 描述充值商城的访问方式与页面约定。
type StorefrontConfig struct {
	URL                string        `env:"STOREFRONT_URL" envDefault:"https://shop.garena.my/app"`
	StepTimeout        time.Duration `env:"STOREFRONT_STEP_TIMEOUT" envDefault:"10s"`
	PollInterval       time.Duration `env:"STOREFRONT_POLL_INTERVAL" envDefault:"250ms"`
	LoginTypingDelay   time.Duration `env:"STOREFRONT_LOGIN_TYPING_DELAY" envDefault:"100ms"`
	VoucherTypingDelay time.Duration `env:"STOREFRONT_VOUCHER_TYPING_DELAY" envDefault:"50ms"`
	Selectors          purchase.Selectors
}

// ExecutorOptions 转换为执行器参数。
func (c StorefrontConfig) ExecutorOptions() purchase.Options {
	return purchase.Options{
		EntryURL:           c.URL,
		StepTimeout:        c.StepTimeout,
		PollInterval:       c.PollInterval,
		LoginTypingDelay:   c.LoginTypingDelay,
		VoucherTypingDelay: c.VoucherTypingDelay,
		Selectors:          c.Selectors,
	}
}

// ChromeConfig 描述浏览器启动方式。
type ChromeConfig struct {
	Headless  bool   `env:"CHROME_HEADLESS" envDefault:"true"`
	ExecPath  string `env:"CHROME_PATH"`
	RemoteURL string `env:"CHROME_REMOTE_URL"`
}

// ChromeOptions 转换为 chromedp 适配器参数。
func (c ChromeConfig) ChromeOptions() purchase.ChromeOptions {
	return purchase.ChromeOptions{
		Headless:  c.Headless,
		ExecPath:  c.ExecPath,
		RemoteURL: c.RemoteURL,
	}
}

// TelemetryConfig 描述链路追踪导出配置。
type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"topup-bot"`
}

// Active 表示是否需要导出追踪数据。
func (c TelemetryConfig) Active() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}
