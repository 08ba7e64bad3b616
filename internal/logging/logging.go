package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/zhouzirui/topup-bot/internal/config"
)

// Setup 按配置创建默认 logger。组件 logger 在构造时从默认 logger 派生，
// 因此必须在构造服务之前调用。
func Setup(cfg config.LogConfig) error {
	logger, err := New(os.Stdout, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// New 创建写入 w 的 logger。
func New(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
