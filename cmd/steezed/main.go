package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/serverfx"
)

func main() {
	registerBuiltins()

	fx.New(
		serverfx.Module(serverfx.DefaultOptions()),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	).Run()
}
