package logger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/fulfillment/internal/config"
)

// Module exposes a configured Zap logger to the Fx container.
var Module = fx.Provide(New)

// New builds the process logger; the buffered output is flushed on stop.
func New(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	logger, err := Build(cfg.Observability)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stderr/stdout cannot be synced on some platforms.
			_ = logger.Sync()
			return nil
		},
	})

	return logger, nil
}

// Build returns a JSON production logger, or a colored development logger
// when the encoding is "console". Every entry carries the service name,
// version and environment.
func Build(obs config.Observability, opts ...zap.Option) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(obs.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if obs.LogEncoding == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Encoding = "json"
		zapCfg.EncoderConfig.TimeKey = "ts"
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
		zapCfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
		zapCfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, err
	}

	return logger.With(
		zap.String("service", obs.ServiceName),
		zap.String("version", obs.ServiceVersion),
		zap.String("environment", obs.Environment),
	), nil
}
