// Package logging builds the zap loggers used by the CLI and the server.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Verbose bool
	JSON    bool
	// Name, when set, names the root logger, e.g. "server".
	Name string
	// OutputPaths defaults to stderr so stdout stays reserved for transcripts.
	OutputPaths []string
}

func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	if !opts.JSON {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.TimeKey = ""
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeCaller = nil
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = outputs
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !opts.Verbose

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}
	return logger, nil
}
