package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/manifest"
)

// Log file names; FileName prefixes them on workers.
const (
	SystemLog = "system.log"
	AccessLog = "http-access.log"
)

func ProvideLogger() *zap.Logger { return NewLog(SystemLog) }

// ProvideLoggerMiddleware builds the access log and seeds the body
// allowlist from the manifest.
func ProvideLoggerMiddleware(cfg manifest.Config) *Middleware {
	AddBodyLogPaths(cfg.Server.LogBodyPaths...)
	return NewMiddleware(NewLog(AccessLog))
}

var Module = fx.Options(
	fx.Provide(ProvideLogger, ProvideLoggerMiddleware),
)
